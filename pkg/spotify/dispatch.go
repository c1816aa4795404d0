// Playlist search dispatch helpers: query construction from the user's two
// preferences and partitioning of the provider's result list into the main
// playlist plus suggestions. Both are pure functions so the search flow can
// be verified without any network traffic.

package spotify

import "errors"

// SearchLimit is the number of playlists requested per search: one main
// result plus up to four suggestions.
const SearchLimit = 5

// ErrNoResults indicates the provider answered successfully but returned an
// empty playlist list.
var ErrNoResults = errors.New("no playlists found")

// Playlist is a catalog search result item. Fields are passed through to the
// rendering layer without further interpretation.
type Playlist struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Owner       Owner        `json:"owner"`
	Images      []Image      `json:"images"`
	ExternalURL ExternalURLs `json:"external_urls"`
	URI         string       `json:"uri"`
}

// Owner identifies who published a playlist.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Image is an artwork resource attached to a playlist.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// ExternalURLs holds links out of the API, typically to the Spotify web
// player.
type ExternalURLs struct {
	Spotify string `json:"spotify"`
}

// BuildQuery joins the language and mood preferences with the literal word
// "playlist" to form the free text search query.
func BuildQuery(language, mood string) string {
	return language + " " + mood + " playlist"
}

// Partition splits a search result list into the primary playlist (the first
// item) and the remaining suggestions, preserving provider order.
// ErrNoResults is returned for an empty list.
func Partition(items []Playlist) (Playlist, []Playlist, error) {
	if len(items) == 0 {
		return Playlist{}, nil, ErrNoResults
	}
	return items[0], items[1:], nil
}

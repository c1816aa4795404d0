// Search endpoints. The HTML handler drives the final step of the flow:
// store the submitted mood, build the query from the two preferences and
// render the primary playlist with up to four suggestions. The JSON variant
// serves the same search to API clients. Results are never cached; identical
// queries always re-hit the provider.

package handlers

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"Mood-Playlist-Go/pkg/spotify"
)

// searchResult is the data handed to the player template.
type searchResult struct {
	Language    string
	Mood        string
	Primary     spotify.Playlist
	Suggestions []spotify.Playlist
}

// Search handles the mood form submission. The mood is stored alongside the
// language; with both present a single playlist search runs against the
// provider and the results are rendered. Missing preferences silently
// restart the collection flow.
func (app *Application) Search(w http.ResponseWriter, r *http.Request) {
	s, tok, ok := app.requireToken(w, r)
	if !ok {
		return
	}
	if mood := r.FormValue("mood"); mood != "" {
		s.Mood = mood
		if err := app.Sessions.Put(r.Context(), s); err != nil {
			app.logger().WithError(err).Error("persist mood")
		}
	}
	if s.Language == "" || s.Mood == "" {
		http.Redirect(w, r, "/language", http.StatusFound)
		return
	}

	query := spotify.BuildQuery(s.Language, s.Mood)
	items, err := app.Spotify.SearchPlaylists(r.Context(), tok, query, spotify.SearchLimit)
	if err != nil {
		app.Metrics.ObserveSearch("failure")
		app.logger().WithError(err).Error("playlist search")
		http.Error(w, "An error occurred while searching for playlists", http.StatusInternalServerError)
		return
	}
	primary, suggestions, err := spotify.Partition(items)
	if err != nil {
		app.Metrics.ObserveSearch("empty")
		fmt.Fprintf(w, "No playlists found for '%s'", template.HTMLEscapeString(query))
		return
	}
	app.Metrics.ObserveSearch("success")

	tmpl, err := template.ParseFiles("ui/templates/player.html")
	if err != nil {
		http.Error(w, "An error occurred while loading the template", http.StatusInternalServerError)
		return
	}
	data := searchResult{Language: s.Language, Mood: s.Mood, Primary: primary, Suggestions: suggestions}
	if err := tmpl.Execute(w, data); err != nil {
		app.logger().WithError(err).Error("render player template")
		http.Error(w, "An error occurred while rendering the template", http.StatusInternalServerError)
	}
}

// SearchJSON is the API variant of Search. The request body may carry
// language and mood overrides; values present in the body replace the stored
// preferences for this and subsequent searches.
func (app *Application) SearchJSON(w http.ResponseWriter, r *http.Request) {
	s := app.sessionFromRequest(w, r)
	tok, err := app.Tokens.GetValidToken(r.Context(), s)
	if err != nil {
		respondJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		Language string `json:"language"`
		Mood     string `json:"mood"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Language != "" {
		s.Language = req.Language
	}
	if req.Mood != "" {
		s.Mood = req.Mood
	}
	if s.Language == "" || s.Mood == "" {
		respondJSONError(w, http.StatusBadRequest, "language and mood are required")
		return
	}
	if err := app.Sessions.Put(r.Context(), s); err != nil {
		app.logger().WithError(err).Error("persist preferences")
	}

	query := spotify.BuildQuery(s.Language, s.Mood)
	items, err := app.Spotify.SearchPlaylists(r.Context(), tok, query, spotify.SearchLimit)
	if err != nil {
		app.Metrics.ObserveSearch("failure")
		app.logger().WithError(err).Error("playlist search")
		respondJSONError(w, http.StatusBadGateway, "search failed")
		return
	}
	primary, suggestions, err := spotify.Partition(items)
	if errors.Is(err, spotify.ErrNoResults) {
		app.Metrics.ObserveSearch("empty")
		respondJSONError(w, http.StatusNotFound, "no playlists found")
		return
	}
	app.Metrics.ObserveSearch("success")
	respondJSON(w, http.StatusOK, struct {
		Query       string             `json:"query"`
		Primary     spotify.Playlist   `json:"primary"`
		Suggestions []spotify.Playlist `json:"suggestions"`
	}{Query: query, Primary: primary, Suggestions: suggestions})
}

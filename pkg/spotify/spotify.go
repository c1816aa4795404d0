// Package spotify implements the Spotify Web API calls used by the web
// application: building the authorization URL, exchanging an authorization
// code, refreshing an access token and searching the catalog for playlists.
// Token endpoint requests follow the provider's documented wire format (HTTP
// Basic client credentials with a form encoded body) so the token lifecycle
// stays fully under the caller's control rather than being hidden inside an
// auto-refreshing client.
//
// The profile lookup reuses the official client library. That library does
// not accept a context so cancellation is checked explicitly before the call.

package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	libspotify "github.com/zmb3/spotify"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// AuthURL is Spotify's user consent endpoint.
	AuthURL = "https://accounts.spotify.com/authorize"
	// TokenURL is the endpoint for both code exchange and token refresh.
	TokenURL = "https://accounts.spotify.com/api/token"
	// SearchURL is the catalog search endpoint.
	SearchURL = "https://api.spotify.com/v1/search"

	// DefaultLifetime is assumed when the token endpoint omits expires_in.
	DefaultLifetime = 3600
)

// Scopes requested during authorization.
var Scopes = []string{
	"user-read-playback-state",
	"user-modify-playback-state",
	"streaming",
}

// TokenSet is the credential material returned by the token endpoint.
// RefreshToken is only populated on the authorization-code exchange; the
// refresh grant keeps the stored refresh token instead.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// Client talks to the Spotify accounts service and Web API. The endpoint
// fields default to the production URLs and can be overridden so tests can
// point the client at a local server.
type Client struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	TokenEndpoint  string
	SearchEndpoint string

	HTTPClient *http.Client
	Limiter    *rate.Limiter
}

// NewClient returns a Client configured for the production Spotify endpoints.
// Outbound calls are rate limited well below the provider's documented
// ceiling so a misbehaving flow cannot hammer the API.
func NewClient(clientID, clientSecret, redirectURL string) *Client {
	return &Client{
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		RedirectURL:    redirectURL,
		TokenEndpoint:  TokenURL,
		SearchEndpoint: SearchURL,
		HTTPClient:     http.DefaultClient,
		Limiter:        rate.NewLimiter(rate.Limit(10), 10),
	}
}

// AuthCodeURL builds the consent page redirect URL carrying the client ID,
// response type "code", the redirect URI, the scope list and the supplied
// CSRF state value.
func (c *Client) AuthCodeURL(state string) string {
	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  AuthURL,
			TokenURL: c.TokenEndpoint,
		},
	}
	return cfg.AuthCodeURL(state)
}

// wait blocks until the rate limiter admits another outbound call.
func (c *Client) wait(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}
	return c.Limiter.Wait(ctx)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Exchange trades an authorization code for a token set using the
// authorization_code grant.
func (c *Client) Exchange(ctx context.Context, code string) (TokenSet, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.RedirectURL},
	}
	return c.postToken(ctx, form)
}

// Refresh mints a new access token from the stored refresh token using the
// refresh_token grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return c.postToken(ctx, form)
}

// postToken performs a token endpoint request and parses the response. A
// missing expires_in falls back to DefaultLifetime.
func (c *Client) postToken(ctx context.Context, form url.Values) (TokenSet, error) {
	if err := c.wait(ctx); err != nil {
		return TokenSet{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenSet{}, err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return TokenSet{}, fmt.Errorf("token endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TokenSet{}, fmt.Errorf("token endpoint: status %d", resp.StatusCode)
	}

	var tr struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return TokenSet{}, fmt.Errorf("token endpoint: decode response: %w", err)
	}
	if tr.AccessToken == "" {
		return TokenSet{}, fmt.Errorf("token endpoint: response contained no access token")
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = DefaultLifetime
	}
	return TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
	}, nil
}

// SearchPlaylists queries the catalog for playlists matching query and
// returns up to limit items in provider order.
func (c *Client) SearchPlaylists(ctx context.Context, accessToken, query string, limit int) ([]Playlist, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{
		"q":     {query},
		"type":  {"playlist"},
		"limit": {strconv.Itoa(limit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SearchEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search: status %d", resp.StatusCode)
	}

	var body struct {
		Playlists struct {
			Items []Playlist `json:"items"`
		} `json:"playlists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}
	return body.Playlists.Items, nil
}

// UserProfile identifies the Spotify account a session belongs to.
type UserProfile struct {
	ID          string
	DisplayName string
}

// CurrentUser fetches the authenticated user's profile via the official
// client library. Cancellation is honoured by checking the context before
// the call since the wrapped library does not accept one.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	auth := libspotify.NewAuthenticator(c.RedirectURL)
	auth.SetAuthInfo(c.ClientID, c.ClientSecret)
	client := auth.NewClient(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	u, err := client.CurrentUser()
	if err != nil {
		return nil, err
	}
	return &UserProfile{ID: u.ID, DisplayName: u.DisplayName}, nil
}

// This file contains the Application struct shared by all handlers and the
// page handlers for the preference collection flow: home, language selection
// and mood selection. The pages are deliberately plain HTML forms; the flow
// is home -> login -> language -> mood -> search results.

package handlers

import (
	"context"
	"fmt"
	"html"
	"net/http"

	"github.com/sirupsen/logrus"

	"Mood-Playlist-Go/pkg/metrics"
	"Mood-Playlist-Go/pkg/session"
	"Mood-Playlist-Go/pkg/spotify"
	"Mood-Playlist-Go/pkg/token"
)

// Provider captures the Spotify operations used by the handlers. It is
// satisfied by *spotify.Client and replaced by fakes in tests.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (spotify.TokenSet, error)
	SearchPlaylists(ctx context.Context, accessToken, query string, limit int) ([]spotify.Playlist, error)
	CurrentUser(ctx context.Context, accessToken string) (*spotify.UserProfile, error)
}

// Application bundles the dependencies used by the HTTP handlers.
type Application struct {
	Sessions session.Store
	Spotify  Provider
	Tokens   *token.Manager
	SignKey  []byte
	Log      *logrus.Logger
	Metrics  *metrics.Metrics
}

// logger returns the configured logger, falling back to the logrus standard
// logger so handlers never need a nil check.
func (app *Application) logger() *logrus.Logger {
	if app.Log != nil {
		return app.Log
	}
	return logrus.StandardLogger()
}

// Home greets the visitor. Authenticated users are pointed at the preference
// flow, everyone else at the Spotify login.
func (app *Application) Home(w http.ResponseWriter, r *http.Request) {
	s := app.sessionFromRequest(w, r)
	if s.Authenticated() {
		name := s.DisplayName
		if name == "" {
			name = s.UserID
		}
		fmt.Fprintf(w, `
			<h1>Mood Playlist</h1>
			<p>Signed in as %s.</p>
			<p><a href="/language">Find a playlist</a> or <a href="/logout">log out</a>.</p>
		`, html.EscapeString(name))
		return
	}
	fmt.Fprint(w, `
		<h1>Mood Playlist</h1>
		<p>Find a playlist matching your language and mood.</p>
		<p><a href="/login">Log in with Spotify</a></p>
	`)
}

// Language shows the first preference form. Visitors without a usable token
// are sent to the login flow.
func (app *Application) Language(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := app.requireToken(w, r); !ok {
		return
	}
	fmt.Fprint(w, `
		<h1>Which language?</h1>
		<form action="/set_language" method="post">
			<input type="text" name="language" placeholder="e.g. spanish">
			<button type="submit">Next</button>
		</form>
	`)
}

// SetLanguage stores the submitted language verbatim and advances to the
// mood step. Resubmission overwrites the previous choice.
func (app *Application) SetLanguage(w http.ResponseWriter, r *http.Request) {
	s := app.sessionFromRequest(w, r)
	s.Language = r.FormValue("language")
	if err := app.Sessions.Put(r.Context(), s); err != nil {
		app.logger().WithError(err).Error("persist language")
		http.Error(w, "failed to save preference", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/mood", http.StatusFound)
}

// Mood shows the second preference form. It requires a usable token and a
// previously chosen language.
func (app *Application) Mood(w http.ResponseWriter, r *http.Request) {
	s, _, ok := app.requireToken(w, r)
	if !ok {
		return
	}
	if s.Language == "" {
		http.Redirect(w, r, "/language", http.StatusFound)
		return
	}
	fmt.Fprint(w, `
		<h1>What mood are you in?</h1>
		<form action="/search" method="post">
			<input type="text" name="mood" placeholder="e.g. happy">
			<button type="submit">Search</button>
		</form>
	`)
}

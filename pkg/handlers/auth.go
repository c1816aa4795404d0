// Package handlers contains HTTP handlers for Mood-Playlist-Go. This file
// groups authentication related helpers and endpoints: the OAuth login and
// callback handlers, logout and the signed session cookie plumbing. The
// browser only holds an HMAC signed session identifier; the session record
// itself lives in the server side store. The authorization redirect carries a
// random state value signed into a cookie and checked on callback.

package handlers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"

	"Mood-Playlist-Go/pkg/session"
)

const (
	sessionCookie = "session_id"
	stateCookie   = "oauth_state"
)

// signValue computes an HMAC signature for value and appends it using the
// format value|signature. The signature is base64 URL encoded so it can be
// safely stored in cookies.
func signValue(value string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(value))
	sig := mac.Sum(nil)
	return value + "|" + base64.RawURLEncoding.EncodeToString(sig)
}

// verifyValue checks the HMAC signature appended to signed. It returns the
// original value and true when the signature matches the provided key.
func verifyValue(signed string, key []byte) (string, bool) {
	parts := strings.Split(signed, "|")
	if len(parts) != 2 {
		return "", false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(parts[0]))
	expected := mac.Sum(nil)
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || !hmac.Equal(expected, sig) {
		return "", false
	}
	return parts[0], true
}

// sessionIDCookie builds the signed session identifier cookie.
func (app *Application) sessionIDCookie(id string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    signValue(id, app.SignKey),
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// sessionFromRequest resolves the caller's session from the signed cookie. A
// missing, tampered or unknown identifier yields a fresh empty session whose
// cookie is set on the response; the record itself is only persisted once a
// handler mutates it.
func (app *Application) sessionFromRequest(w http.ResponseWriter, r *http.Request) *session.Session {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if id, ok := verifyValue(c.Value, app.SignKey); ok {
			if s, err := app.Sessions.Get(r.Context(), id); err == nil {
				return s
			}
		}
	}
	s := session.New()
	http.SetCookie(w, app.sessionIDCookie(s.ID, r.TLS != nil))
	return s
}

// requireToken loads the caller's session and ensures it holds a usable
// access token, refreshing an expired one on the way. When the session is
// unauthenticated (or the single refresh attempt fails) the caller is
// redirected to /login and false is returned. A refreshed token is persisted
// before the handler continues.
func (app *Application) requireToken(w http.ResponseWriter, r *http.Request) (*session.Session, string, bool) {
	s := app.sessionFromRequest(w, r)
	prev := s.AccessToken
	tok, err := app.Tokens.GetValidToken(r.Context(), s)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return nil, "", false
	}
	if tok != prev {
		if err := app.Sessions.Put(r.Context(), s); err != nil {
			app.logger().WithError(err).Error("persist refreshed session")
		}
	}
	return s, tok, true
}

// Login begins the OAuth flow by redirecting the user to the provider's
// consent page with a signed state value stored in a cookie.
func (app *Application) Login(w http.ResponseWriter, r *http.Request) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}
	state := base64.RawURLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    signValue(state, app.SignKey),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, app.Spotify.AuthCodeURL(state), http.StatusFound)
}

// OAuthCallback completes the OAuth flow. A callback without a code sends
// the user back to the start silently. The code is exchanged for tokens
// which populate the session together with the user's profile, then the flow
// advances to the language page.
func (app *Application) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	c, err := r.Cookie(stateCookie)
	if err != nil {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	state, ok := verifyValue(c.Value, app.SignKey)
	if !ok || r.URL.Query().Get("state") != state {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})

	ts, err := app.Spotify.Exchange(r.Context(), code)
	if err != nil {
		app.logger().WithError(err).Error("authorization code exchange")
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	s := app.sessionFromRequest(w, r)
	app.Tokens.Grant(s, ts)
	if u, err := app.Spotify.CurrentUser(r.Context(), ts.AccessToken); err == nil {
		s.UserID = u.ID
		s.DisplayName = u.DisplayName
	} else {
		app.logger().WithError(err).Warn("fetch user profile")
	}
	if err := app.Sessions.Put(r.Context(), s); err != nil {
		app.logger().WithError(err).Error("persist session")
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	app.Metrics.ObserveLogin()
	http.Redirect(w, r, "/language", http.StatusFound)
}

// Logout destroys the server side session and expires the cookie so the user
// must re-authenticate from scratch.
func (app *Application) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if id, ok := verifyValue(c.Value, app.SignKey); ok {
			if err := app.Sessions.Delete(r.Context(), id); err != nil {
				app.logger().WithError(err).Error("delete session")
			}
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

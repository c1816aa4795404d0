// Package session defines the per-client session record and the store that
// persists it server side. The browser only ever holds a signed session
// identifier; all credentials and preferences live in the store. The package
// is intentionally small: one record type, one store interface and a SQLite
// implementation used by the web application.

package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Store.Get when no session exists for the
// supplied identifier.
var ErrNotFound = errors.New("session not found")

// Session holds the state for a single browser client: the Spotify
// credentials obtained during authorization, the two playlist preferences and
// the user's profile identity. ExpiresAt is an absolute unix timestamp in
// seconds; a zero value means the provider never reported a lifetime and the
// access token is treated as still usable.
type Session struct {
	ID           string `json:"-"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	Language     string `json:"language,omitempty"`
	Mood         string `json:"mood,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
}

// New returns an empty session with a freshly generated identifier.
func New() *Session {
	return &Session{ID: uuid.NewString()}
}

// Authenticated reports whether the session holds an access token at all.
// Callers must still check expiry before using it.
func (s *Session) Authenticated() bool {
	return s.AccessToken != ""
}

// Expired reports whether the access token deadline has passed. A session
// without a recorded deadline is never considered expired.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != 0 && s.ExpiresAt <= now.Unix()
}

// Store persists sessions keyed by their identifier. Implementations must
// treat Put as an upsert so repeated saves of the same session replace the
// stored record.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

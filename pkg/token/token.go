// Package token implements the access token lifecycle for a session:
// deciding whether the stored token is still usable and exchanging the
// refresh token for a new one when it is not. A failed refresh is terminal
// for the request; the caller sends the user back through the authorization
// flow. There are no retries and no backoff.
//
// Per session the credential moves through three states: unauthenticated
// (no access token), valid (token present with a future or unreported
// deadline) and expired. A successful refresh returns an expired session to
// valid; a rejected refresh leaves it unauthenticated from the caller's
// perspective.

package token

import (
	"context"
	"errors"
	"time"

	"Mood-Playlist-Go/pkg/metrics"
	"Mood-Playlist-Go/pkg/session"
	"Mood-Playlist-Go/pkg/spotify"
)

// ErrNoToken signals that the session holds no usable access token and the
// user must authorize again.
var ErrNoToken = errors.New("no usable access token")

// ErrNoRefreshToken is returned when a refresh is attempted on a session
// that never completed authorization.
var ErrNoRefreshToken = errors.New("no refresh token")

// Refresher exchanges a refresh token for a new token set at the provider's
// token endpoint. It is satisfied by *spotify.Client and replaced by a fake
// in tests.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (spotify.TokenSet, error)
}

// Manager decides whether a session's access token can be used and performs
// the single refresh attempt when it cannot. Now is injectable for tests and
// defaults to time.Now.
type Manager struct {
	Provider Refresher
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// GetValidToken returns an access token that can be presented to the
// provider. Sessions without a token fail immediately with ErrNoToken and no
// network call. Tokens whose deadline has not passed (or was never reported)
// are returned unchanged. An expired token triggers exactly one refresh; on
// success the new token is returned and the session mutated, on failure
// ErrNoToken is returned with the session's credential fields untouched.
func (m *Manager) GetValidToken(ctx context.Context, s *session.Session) (string, error) {
	if !s.Authenticated() {
		return "", ErrNoToken
	}
	if !s.Expired(m.now()) {
		return s.AccessToken, nil
	}
	if err := m.RefreshAccessToken(ctx, s); err != nil {
		return "", ErrNoToken
	}
	return s.AccessToken, nil
}

// RefreshAccessToken exchanges the session's refresh token for a new access
// token. It fails without a network call when no refresh token is present.
// On success the session's access token and deadline are replaced; the
// refresh token is deliberately kept even if the provider returned a new one.
// On failure the session is left untouched.
func (m *Manager) RefreshAccessToken(ctx context.Context, s *session.Session) error {
	if s.RefreshToken == "" {
		return ErrNoRefreshToken
	}
	ts, err := m.Provider.Refresh(ctx, s.RefreshToken)
	m.Metrics.ObserveRefresh(err)
	if err != nil {
		return err
	}
	s.AccessToken = ts.AccessToken
	s.ExpiresAt = m.now().Add(time.Duration(ts.ExpiresIn) * time.Second).Unix()
	return nil
}

// Grant installs a freshly exchanged token set on the session, including the
// refresh token. Called once when the authorization code exchange completes.
func (m *Manager) Grant(s *session.Session, ts spotify.TokenSet) {
	s.AccessToken = ts.AccessToken
	s.RefreshToken = ts.RefreshToken
	s.ExpiresAt = m.now().Add(time.Duration(ts.ExpiresIn) * time.Second).Unix()
}

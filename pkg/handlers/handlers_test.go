package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"Mood-Playlist-Go/pkg/session"
	"Mood-Playlist-Go/pkg/spotify"
	"Mood-Playlist-Go/pkg/token"
)

// TestMain changes the working directory so templates resolve correctly when
// tests are run from the package directory.
func TestMain(m *testing.M) {
	os.Chdir("../..")
	os.Exit(m.Run())
}

// fakeProvider implements both the handlers Provider interface and the token
// package's Refresher so one fake drives the whole flow. Call counts let
// tests assert exactly which provider endpoints a request would hit.
type fakeProvider struct {
	exchangeCalls int
	lastCode      string
	exchangeTS    spotify.TokenSet
	exchangeErr   error

	refreshCalls int
	refreshTS    spotify.TokenSet
	refreshErr   error

	searchCalls int
	lastQuery   string
	lastLimit   int
	items       []spotify.Playlist
	searchErr   error

	profile    *spotify.UserProfile
	profileErr error
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeProvider) Exchange(ctx context.Context, code string) (spotify.TokenSet, error) {
	f.exchangeCalls++
	f.lastCode = code
	return f.exchangeTS, f.exchangeErr
}

func (f *fakeProvider) Refresh(ctx context.Context, refreshToken string) (spotify.TokenSet, error) {
	f.refreshCalls++
	return f.refreshTS, f.refreshErr
}

func (f *fakeProvider) SearchPlaylists(ctx context.Context, accessToken, query string, limit int) ([]spotify.Playlist, error) {
	f.searchCalls++
	f.lastQuery = query
	f.lastLimit = limit
	return f.items, f.searchErr
}

func (f *fakeProvider) CurrentUser(ctx context.Context, accessToken string) (*spotify.UserProfile, error) {
	if f.profile == nil {
		if f.profileErr != nil {
			return nil, f.profileErr
		}
		return nil, errors.New("no profile configured")
	}
	return f.profile, nil
}

func newTestApp(t *testing.T) (*Application, *fakeProvider, *session.SQLiteStore) {
	t.Helper()
	st, err := session.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	fp := &fakeProvider{
		exchangeTS: spotify.TokenSet{AccessToken: "acc", RefreshToken: "ref", ExpiresIn: 3600},
		profile:    &spotify.UserProfile{ID: "user1", DisplayName: "Test User"},
	}
	app := &Application{
		Sessions: st,
		Spotify:  fp,
		Tokens:   &token.Manager{Provider: fp},
		SignKey:  []byte("test-signing-key"),
		Log:      log,
	}
	return app, fp, st
}

// newTestMux registers the same routes as cmd/web.
func newTestMux(app *Application) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", app.Home)
	mux.HandleFunc("/login", app.Login)
	mux.HandleFunc("/callback", app.OAuthCallback)
	mux.HandleFunc("/language", app.Language)
	mux.HandleFunc("/set_language", app.SetLanguage)
	mux.HandleFunc("/mood", app.Mood)
	mux.HandleFunc("/search", app.Search)
	mux.HandleFunc("/api/search", app.SearchJSON)
	mux.HandleFunc("/logout", app.Logout)
	return mux
}

// authedSession stores an authenticated session and returns it together with
// the signed cookie a browser would present.
func authedSession(t *testing.T, app *Application, st *session.SQLiteStore) (*session.Session, *http.Cookie) {
	t.Helper()
	s := session.New()
	s.AccessToken = "tok"
	s.RefreshToken = "ref"
	s.ExpiresAt = time.Now().Add(time.Hour).Unix()
	if err := st.Put(context.Background(), s); err != nil {
		t.Fatalf("put session: %v", err)
	}
	return s, &http.Cookie{Name: sessionCookie, Value: signValue(s.ID, app.SignKey)}
}

func TestSignValueRoundTrip(t *testing.T) {
	key := []byte("k")
	signed := signValue("hello", key)
	got, ok := verifyValue(signed, key)
	if !ok || got != "hello" {
		t.Fatalf("verify failed: %q %v", got, ok)
	}
	if _, ok := verifyValue(signed+"x", key); ok {
		t.Error("tampered value verified")
	}
	if _, ok := verifyValue(signed, []byte("other")); ok {
		t.Error("wrong key verified")
	}
}

func TestLanguageRedirectsWhenUnauthenticated(t *testing.T) {
	app, fp, _ := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/language", nil)
	rr := httptest.NewRecorder()

	app.Language(rr, req)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if fp.refreshCalls != 0 {
		t.Errorf("unexpected refresh calls: %d", fp.refreshCalls)
	}
}

func TestCallbackMissingCode(t *testing.T) {
	app, fp, _ := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/callback", nil)
	rr := httptest.NewRecorder()

	app.OAuthCallback(rr, req)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect home, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if fp.exchangeCalls != 0 {
		t.Errorf("token endpoint called without code: %d", fp.exchangeCalls)
	}
}

func TestCallbackStateMismatch(t *testing.T) {
	app, fp, _ := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=evil", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: signValue("good", app.SignKey)})
	rr := httptest.NewRecorder()

	app.OAuthCallback(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if fp.exchangeCalls != 0 {
		t.Errorf("token endpoint called despite state mismatch: %d", fp.exchangeCalls)
	}
}

func TestLoginRedirectsToConsentPage(t *testing.T) {
	app, _, _ := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	rr := httptest.NewRecorder()

	app.Login(rr, req)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	loc, err := url.Parse(rr.Header().Get("Location"))
	if err != nil || loc.Host != "accounts.example.com" {
		t.Fatalf("unexpected location %q", rr.Header().Get("Location"))
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("no state in consent URL")
	}
	var signed string
	for _, c := range rr.Result().Cookies() {
		if c.Name == stateCookie {
			signed = c.Value
		}
	}
	if v, ok := verifyValue(signed, app.SignKey); !ok || v != state {
		t.Errorf("state cookie %q does not match URL state %q", signed, state)
	}
}

func TestMoodRequiresLanguage(t *testing.T) {
	app, _, st := newTestApp(t)
	_, cookie := authedSession(t, app, st)
	req := httptest.NewRequest(http.MethodGet, "/mood", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()

	app.Mood(rr, req)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/language" {
		t.Fatalf("expected redirect to /language, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestSearchWithoutPreferences(t *testing.T) {
	app, fp, st := newTestApp(t)
	_, cookie := authedSession(t, app, st)
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()

	app.Search(rr, req)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/language" {
		t.Fatalf("expected redirect to /language, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if fp.searchCalls != 0 {
		t.Errorf("search endpoint called without preferences: %d", fp.searchCalls)
	}
}

func TestSearchProviderFailure(t *testing.T) {
	app, fp, st := newTestApp(t)
	s, cookie := authedSession(t, app, st)
	s.Language = "french"
	if err := st.Put(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	fp.searchErr = errors.New("boom")

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader("mood=calm"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()

	app.Search(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "searching for playlists") {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}
}

func TestSearchNoResults(t *testing.T) {
	app, _, st := newTestApp(t)
	s, cookie := authedSession(t, app, st)
	s.Language = "french"
	if err := st.Put(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader("mood=calm"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()

	app.Search(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "No playlists found for 'french calm playlist'") {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}
}

func TestExpiredTokenRefreshedOnce(t *testing.T) {
	app, fp, st := newTestApp(t)
	s, cookie := authedSession(t, app, st)
	s.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := st.Put(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	fp.refreshTS = spotify.TokenSet{AccessToken: "minted", ExpiresIn: 3600}

	req := httptest.NewRequest(http.MethodGet, "/language", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()

	app.Language(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if fp.refreshCalls != 1 {
		t.Errorf("expected exactly one refresh, got %d", fp.refreshCalls)
	}
	got, err := st.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "minted" {
		t.Errorf("refreshed token not persisted: %q", got.AccessToken)
	}
}

func TestRefreshFailureRedirectsToLogin(t *testing.T) {
	app, fp, st := newTestApp(t)
	s, cookie := authedSession(t, app, st)
	s.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := st.Put(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	fp.refreshErr = errors.New("invalid_grant")

	req := httptest.NewRequest(http.MethodGet, "/language", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()

	app.Language(rr, req)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if fp.refreshCalls != 1 {
		t.Errorf("expected exactly one refresh attempt, got %d", fp.refreshCalls)
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	app, fp, st := newTestApp(t)
	s, cookie := authedSession(t, app, st)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	app.Logout(rr, req)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect home, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if _, err := st.Get(context.Background(), s.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("session still stored after logout: %v", err)
	}

	// A later protected request with the stale cookie behaves like a new
	// unauthenticated visitor and triggers no refresh.
	req = httptest.NewRequest(http.MethodGet, "/language", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	app.Language(rr, req)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if fp.refreshCalls != 0 {
		t.Errorf("unexpected refresh calls after logout: %d", fp.refreshCalls)
	}
}

func TestSearchJSON(t *testing.T) {
	app, fp, st := newTestApp(t)
	_, cookie := authedSession(t, app, st)
	fp.items = []spotify.Playlist{{ID: "1", Name: "First"}, {ID: "2", Name: "Second"}}

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"language":"german","mood":"upbeat"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()

	app.SearchJSON(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if fp.lastQuery != "german upbeat playlist" || fp.lastLimit != spotify.SearchLimit {
		t.Errorf("unexpected search call: %q limit %d", fp.lastQuery, fp.lastLimit)
	}
	var out struct {
		Query       string             `json:"query"`
		Primary     spotify.Playlist   `json:"primary"`
		Suggestions []spotify.Playlist `json:"suggestions"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Primary.ID != "1" || len(out.Suggestions) != 1 || out.Suggestions[0].ID != "2" {
		t.Errorf("unexpected partition: %+v", out)
	}
}

func TestSearchJSONUnauthenticated(t *testing.T) {
	app, _, _ := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"language":"a","mood":"b"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	app.SearchJSON(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

// TestFlowEndToEnd drives the full documented flow: login redirect, code
// exchange, preference collection and the final search, all against the
// registered routes with a cookie jar standing in for the browser.
func TestFlowEndToEnd(t *testing.T) {
	app, fp, _ := newTestApp(t)
	fp.items = []spotify.Playlist{
		{ID: "p0", Name: "Main Mix"},
		{ID: "p1", Name: "Alt One"},
		{ID: "p2", Name: "Alt Two"},
	}
	srv := httptest.NewServer(newTestMux(app))
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	get := func(path string) *http.Response {
		t.Helper()
		resp, err := client.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		return resp
	}
	postForm := func(path string, form url.Values) *http.Response {
		t.Helper()
		resp, err := client.PostForm(srv.URL+path, form)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		return resp
	}

	// Login hands out the consent redirect with a state value.
	resp := get("/login")
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	state := loc.Query().Get("state")

	// The provider calls back with a code; the exchange populates the
	// session and advances to the language page.
	resp = get("/callback?code=valid-code&state=" + url.QueryEscape(state))
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/language" {
		t.Fatalf("callback: %d -> %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if fp.exchangeCalls != 1 || fp.lastCode != "valid-code" {
		t.Fatalf("exchange calls %d, code %q", fp.exchangeCalls, fp.lastCode)
	}

	resp = get("/language")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "set_language") {
		t.Fatalf("language page: %d %s", resp.StatusCode, body)
	}

	resp = postForm("/set_language", url.Values{"language": {"french"}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/mood" {
		t.Fatalf("set_language: %d -> %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp = get("/mood")
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "mood") {
		t.Fatalf("mood page: %d %s", resp.StatusCode, body)
	}

	resp = postForm("/search", url.Values{"mood": {"calm"}})
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search: %d %s", resp.StatusCode, body)
	}
	if fp.lastQuery != "french calm playlist" || fp.lastLimit != 5 {
		t.Errorf("search called with %q limit %d", fp.lastQuery, fp.lastLimit)
	}
	page := string(body)
	if !strings.Contains(page, "Main Mix") {
		t.Errorf("primary playlist missing from page: %s", page)
	}
	if !strings.Contains(page, "Alt One") || !strings.Contains(page, "Alt Two") {
		t.Errorf("suggestions missing from page: %s", page)
	}
	if fp.refreshCalls != 0 {
		t.Errorf("unexpected refresh during fresh-token flow: %d", fp.refreshCalls)
	}

	// Logout clears everything; the next protected page bounces to login.
	resp = get("/logout")
	resp.Body.Close()
	resp = get("/language")
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/login" {
		t.Fatalf("post-logout language page: %d -> %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

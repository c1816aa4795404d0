// Command web initializes the Mood-Playlist-Go application and starts the
// HTTP server. Configuration is provided via environment variables for the
// Spotify API credentials, the callback URL, the cookie signing key and the
// session database location. The server listens on port 4000 and serves the
// HTML flow, a JSON search API and Prometheus metrics.

package main

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"Mood-Playlist-Go/pkg/handlers"
	"Mood-Playlist-Go/pkg/metrics"
	"Mood-Playlist-Go/pkg/session"
	"Mood-Playlist-Go/pkg/spotify"
	"Mood-Playlist-Go/pkg/token"
)

// main configures application dependencies and starts the HTTP server.
func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Spotify credentials are required for the OAuth flow; without them the
	// application cannot talk to the provider so we exit early.
	clientID := os.Getenv("SPOTIFY_CLIENT_ID")
	clientSecret := os.Getenv("SPOTIFY_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		log.Fatal("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set")
	}
	// SPOTIFY_REDIRECT_URL must match the callback configured in the Spotify
	// developer dashboard. When unset we fall back to the local development
	// address.
	redirectURL := os.Getenv("SPOTIFY_REDIRECT_URL")
	if redirectURL == "" {
		redirectURL = "http://localhost:4000/callback"
	}
	signingKey := os.Getenv("SIGNING_KEY")
	if signingKey == "" {
		log.Fatal("SIGNING_KEY must be set")
	}
	// DATABASE_PATH allows the session database file to be customised. It
	// defaults to a file named sessions.db in the working directory.
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "sessions.db"
	}

	store, err := session.NewSQLiteStore(dbPath)
	if err != nil {
		log.WithError(err).Fatal("session store init")
	}
	defer store.Close()

	sc := spotify.NewClient(clientID, clientSecret, redirectURL)
	m := metrics.New(prometheus.DefaultRegisterer)

	app := &handlers.Application{
		Sessions: store,
		Spotify:  sc,
		Tokens:   &token.Manager{Provider: sc, Metrics: m},
		SignKey:  []byte(signingKey),
		Log:      log,
		Metrics:  m,
	}

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
	mux.Handle("/metrics", promhttp.Handler())

	log.Info("listening on :4000")
	if err := http.ListenAndServe(":4000", handlers.SecurityHeaders(mux)); err != nil {
		log.WithError(err).Fatal("http server error")
	}
}

// Package metrics provides Prometheus observability for the application:
// token refresh outcomes, search outcomes and completed logins. All methods
// are nil-safe so components can run without metrics in tests.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered by New.
type Metrics struct {
	TokenRefreshes *prometheus.CounterVec
	Searches       *prometheus.CounterVec
	Logins         prometheus.Counter
}

// New registers the application's collectors with reg. The server passes
// prometheus.DefaultRegisterer; tests pass a fresh registry so repeated
// construction does not panic on duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		TokenRefreshes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "moodplaylist_token_refreshes_total",
			Help: "Token refresh attempts against the provider by result",
		}, []string{"result"}),
		Searches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "moodplaylist_searches_total",
			Help: "Playlist searches by result",
		}, []string{"result"}),
		Logins: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "moodplaylist_logins_total",
			Help: "Completed authorization code exchanges",
		}),
	}
}

// ObserveRefresh records one token refresh attempt.
func (m *Metrics) ObserveRefresh(err error) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(result(err)).Inc()
}

// ObserveSearch records one playlist search with an explicit result label:
// "success", "empty" or "failure".
func (m *Metrics) ObserveSearch(res string) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(res).Inc()
}

// ObserveLogin records a completed login.
func (m *Metrics) ObserveLogin() {
	if m == nil {
		return
	}
	m.Logins.Inc()
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

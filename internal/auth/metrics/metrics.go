// Package metrics exposes the Prometheus instrumentation for the session
// core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for authentication counters.
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid"
	OutcomeRevoked     = "revoked"
	OutcomeReuse       = "reuse_detected"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// Metrics bundles the counters recorded by the auth service and HTTP layer.
type Metrics struct {
	registry *prometheus.Registry

	Logins        *prometheus.CounterVec
	Refreshes     *prometheus.CounterVec
	ReuseDetected prometheus.Counter
	RateLimited   *prometheus.CounterVec
}

// New builds a Metrics with its own registry, pre-registering the standard
// Go and process collectors alongside the auth counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authd",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authd",
			Name:      "refreshes_total",
			Help:      "Refresh token rotations by outcome.",
		}, []string{"outcome"}),
		ReuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authd",
			Name:      "refresh_reuse_detected_total",
			Help:      "Rotated refresh tokens presented a second time.",
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authd",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the attempt limiter, by operation.",
		}, []string{"operation"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Logins,
		m.Refreshes,
		m.ReuseDetected,
		m.RateLimited,
	)
	return m
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

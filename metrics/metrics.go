package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the application. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ViewsTotal             prometheus.Counter
	ReactionsToggledTotal  *prometheus.CounterVec
	RateLimitExceededTotal *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, along with the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ViewsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_post_views_total",
			Help: "Total number of counted post views",
		}),
		ReactionsToggledTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_reactions_toggled_total",
				Help: "Total number of reaction toggles",
			},
			[]string{"type", "action"},
		),
		RateLimitExceededTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_rate_limit_exceeded_total",
				Help: "Total number of requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),
	}
}

// ViewRecorded counts one post view.
func (m *Metrics) ViewRecorded() {
	if m == nil {
		return
	}
	m.ViewsTotal.Inc()
}

// ReactionToggled counts one reaction toggle.
func (m *Metrics) ReactionToggled(reactionType, action string) {
	if m == nil {
		return
	}
	m.ReactionsToggledTotal.WithLabelValues(reactionType, action).Inc()
}

// RateLimited counts one request rejected by the named limiter.
func (m *Metrics) RateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitExceededTotal.WithLabelValues(limiter).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

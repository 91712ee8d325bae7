package manager

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the ambient observability surface SPEC_FULL.md adds on top
// of spec.md's table (not excluded by any Non-goal): a request counter, an
// action-duration histogram and a live-actors gauge, exported in Prometheus
// text format at GET /metrics. NewMetrics registers them; nothing in this
// module records into them, so they report zero values.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	ActionDuration  *prometheus.HistogramVec
	LiveActorsGauge prometheus.Gauge
}

// NewMetrics registers the runtime's metrics against reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests) or
// prometheus.DefaultRegisterer to use the global one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actorhost",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests served by the manager, by route and status class.",
		}, []string{"route", "status_class"}),
		ActionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "actorhost",
			Name:      "action_duration_seconds",
			Help:      "Time spent executing a single action, by actor name and action name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"actor_name", "action"}),
		LiveActorsGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "actorhost",
			Name:      "live_actors",
			Help:      "Number of actor instances currently loaded on this node.",
		}),
	}
}

// Handler returns the http.Handler that exposes metrics in Prometheus
// text format, mounted at GET /metrics by cmd/actorhost.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

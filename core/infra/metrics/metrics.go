// Package metrics exposes Prometheus collectors for the API gateway and the
// upstream orchestrator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every collector name.
const Namespace = "brandguard"

// GatewayMetrics captures request metrics for the API gateway.
type GatewayMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// UpstreamMetrics captures evaluate/fix call outcomes. Outcome is "ok" or a
// failure kind such as UPSTREAM_TIMEOUT.
type UpstreamMetrics interface {
	ObserveCall(operation, outcome string, durationSeconds float64)
}

// Noop implements every metrics interface without emitting anything.
type Noop struct{}

func (Noop) ObserveRequest(string, string, string, float64) {}
func (Noop) ObserveCall(string, string, float64)            {}

type gatewayProm struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewGatewayProm registers HTTP request collectors on reg.
func NewGatewayProm(reg prometheus.Registerer) GatewayMetrics {
	g := &gatewayProm{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(g.requests, g.latency)
	return g
}

func (g *gatewayProm) ObserveRequest(method, route, status string, durationSeconds float64) {
	g.requests.WithLabelValues(method, route, status).Inc()
	g.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

type upstreamProm struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewUpstreamProm registers upstream call collectors on reg.
func NewUpstreamProm(reg prometheus.Registerer) UpstreamMetrics {
	u := &upstreamProm{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "upstream_calls_total",
			Help:      "Upstream evaluate/fix calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "upstream_call_duration_seconds",
			Help:      "Upstream call latency by operation",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"operation"}),
	}
	reg.MustRegister(u.calls, u.duration)
	return u
}

func (u *upstreamProm) ObserveCall(operation, outcome string, durationSeconds float64) {
	u.calls.WithLabelValues(operation, outcome).Inc()
	u.duration.WithLabelValues(operation).Observe(durationSeconds)
}

// Handler returns an HTTP handler for /metrics backed by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Package metrics provides Prometheus metrics for the bridge.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request and handshake latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the bridge.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpgradesRejected  *prometheus.CounterVec
	HandshakeDuration *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	SessionsActive  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	BridgeErrors    prometheus.Counter
	MessagesRelayed *prometheus.CounterVec
	BytesRelayed    *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsbridge_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wsbridge_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wsbridge_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpgradesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsbridge_upgrades_rejected_total",
			Help: "Inbound requests dropped by the upgrade gatekeeper, by reason.",
		}, []string{"reason"}),

		HandshakeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wsbridge_upstream_handshake_duration_seconds",
			Help:    "Time to dial the target and read its handshake response.",
			Buckets: defaultBuckets,
		}, []string{"outcome"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsbridge_upstream_responses_total",
			Help: "Target handshake responses by status code.",
		}, []string{"status_code"}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wsbridge_sessions_active",
			Help: "Number of upgraded sessions currently relaying.",
		}),

		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsbridge_sessions_total",
			Help: "Total upgraded sessions opened.",
		}),

		BridgeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsbridge_bridge_errors_total",
			Help: "Bridges terminated by an error.",
		}),

		MessagesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsbridge_messages_relayed_total",
			Help: "Frames relayed in message mode, by direction and kind.",
		}, []string{"direction", "kind"}),

		BytesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsbridge_bytes_relayed_total",
			Help: "Payload bytes relayed, by direction.",
		}, []string{"direction"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpgradesRejected,
		m.HandshakeDuration,
		m.UpstreamResponses,
		m.SessionsActive,
		m.SessionsTotal,
		m.BridgeErrors,
		m.MessagesRelayed,
		m.BytesRelayed,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
var knownPrefixes = []string{"/healthz", "/proxy/status", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
// Every path outside the operational routes is bridged and labelled "bridge".
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "bridge"
}

// Package metrics holds the Prometheus collectors for install sessions and provisioning
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the otad collectors.
	Registry = prometheus.NewRegistry()

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "otad",
			Subsystem: "session",
			Name:      "active",
			Help:      "Current number of running install sessions.",
		},
	)

	sessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otad",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Total number of install session status transitions.",
		},
		[]string{"state"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otad",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of requests served by install sessions.",
		},
		[]string{"route", "status"},
	)

	payloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "otad",
			Subsystem: "payload",
			Name:      "bytes_total",
			Help:      "Total number of IPA payload bytes streamed.",
		},
	)

	provisionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otad",
			Subsystem: "provision",
			Name:      "runs_total",
			Help:      "Total number of certificate provisioning runs.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		sessionsActive,
		sessionTransitions,
		httpRequests,
		payloadBytes,
		provisionRuns,
	)
}

// Handler returns an HTTP handler exposing the otad registry
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SessionStarted records a newly running session
func SessionStarted() { sessionsActive.Inc() }

// SessionStopped records a session shutdown
func SessionStopped() { sessionsActive.Dec() }

// RecordTransition records a status change
func RecordTransition(state string) {
	sessionTransitions.WithLabelValues(state).Inc()
}

// RecordRequest records a served request
func RecordRequest(route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// RecordPayloadBytes adds to the streamed payload byte count
func RecordPayloadBytes(n int64) {
	if n > 0 {
		payloadBytes.Add(float64(n))
	}
}

// RecordProvision records the outcome of a provisioning run
func RecordProvision(err error) {
	result := "success"
	if err != nil {
		result = "fallback"
	}
	provisionRuns.WithLabelValues(result).Inc()
}

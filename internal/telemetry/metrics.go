// Package telemetry exposes the node's Prometheus metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	FramesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lowapp",
			Name:      "frames_sent_total",
			Help:      "Frames handed to the radio, by message type.",
		},
		[]string{"type"},
	)

	FramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lowapp",
			Name:      "frames_received_total",
			Help:      "Frames accepted by the codec, by message type.",
		},
		[]string{"type"},
	)

	FramesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lowapp",
			Name:      "frames_rejected_total",
			Help:      "Frames dropped on receive, by reason.",
		},
		[]string{"reason"},
	)

	AckOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lowapp",
			Name:      "ack_outcomes_total",
			Help:      "Result of acknowledgement reconciliation.",
		},
		[]string{"outcome"},
	)

	TxFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lowapp",
			Name:      "tx_failures_total",
			Help:      "Transmissions that did not complete, by reason.",
		},
		[]string{"reason"},
	)

	TxRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lowapp",
			Name:      "tx_retries_total",
			Help:      "Standard frame transmission retries.",
		},
	)

	StateEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lowapp",
			Name:      "state_entries_total",
			Help:      "State machine transitions, by entered state.",
		},
		[]string{"state"},
	)

	QueueDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lowapp",
			Name:      "queue_drops_total",
			Help:      "Items dropped because a queue was full.",
		},
		[]string{"queue"},
	)

	SequenceEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lowapp",
			Name:      "sequence_events_total",
			Help:      "Inbound sequence classification other than a match.",
		},
		[]string{"relation"},
	)

	Faults = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lowapp",
			Name:      "faults_total",
			Help:      "Internal inconsistencies recovered by the state machine.",
		},
	)

	Connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lowapp",
			Name:      "connected",
			Help:      "1 while the node is connected to the group.",
		},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lowapp",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP API requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lowapp",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP API requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lowapp",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version).",
		},
		[]string{"version"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "lowapp",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		FramesSent, FramesReceived, FramesRejected, AckOutcomes,
		TxFailures, TxRetries, StateEntries, QueueDrops, SequenceEvents,
		Faults, Connected, RequestsTotal, RequestDuration, buildInfo, uptime,
	)
}

// MetricsHandler exposes /metrics
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// SetConnected records the connection state
func SetConnected(connected bool) {
	if connected {
		Connected.Set(1)
	} else {
		Connected.Set(0)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided
// "op" label.
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}

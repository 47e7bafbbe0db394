// Package metrics exposes the panel's Prometheus collectors. Everything is
// registered on the default registry and served from /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miaomiaowu_http_requests_total",
			Help: "Total API requests by method, route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "miaomiaowu_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miaomiaowu_subscription_syncs_total",
			Help: "Subscription sync passes by outcome",
		},
		[]string{"outcome"},
	)
	probePollFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miaomiaowu_probe_poll_failures_total",
			Help: "Failed controller polls per probe",
		},
		[]string{"probe"},
	)
	editSessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "miaomiaowu_edit_sessions_open",
			Help: "Currently open document edit sessions",
		},
	)
	relayConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miaomiaowu_relay_connections_total",
			Help: "Connections handled by the relay listeners",
		},
		[]string{"protocol"},
	)
	relayBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miaomiaowu_relay_bytes_total",
			Help: "Bytes moved through the relay by protocol and direction",
		},
		[]string{"protocol", "direction"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, syncRuns, probePollFailures, editSessionsOpen, relayConnections, relayBytes)
}

// ObserveHTTPRequest records one finished API request.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// CountSyncRun records a sync pass outcome, "ok" or "error".
func CountSyncRun(outcome string) {
	syncRuns.WithLabelValues(outcome).Inc()
}

// CountProbePollFailure records one failed controller poll.
func CountProbePollFailure(probeName string) {
	probePollFailures.WithLabelValues(probeName).Inc()
}

// EditSessionOpened and EditSessionClosed track the session gauge.
func EditSessionOpened() { editSessionsOpen.Inc() }

func EditSessionClosed() { editSessionsOpen.Dec() }

// CountRelayConnection records one relay connection and its byte counts.
func CountRelayConnection(protocol string, sent, received int64) {
	relayConnections.WithLabelValues(protocol).Inc()
	relayBytes.WithLabelValues(protocol, "sent").Add(float64(sent))
	relayBytes.WithLabelValues(protocol, "received").Add(float64(received))
}

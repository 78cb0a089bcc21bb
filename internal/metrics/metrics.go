// Package metrics exposes Prometheus collectors for the engagement relay.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded for fire-and-forget requests.
const (
	FireOK          = "ok"
	FireRejected    = "rejected"
	FireFailed      = "failed"
	FireRateLimited = "rate_limited"
	FireSaturated   = "saturated"
	FireMalformed   = "malformed"
	FireClosed      = "closed"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of relay HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Histogram of relay HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 5, 60, 600},
		},
		[]string{"method", "route"},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engagement_sessions_active",
			Help: "Number of mounted engagement sessions.",
		},
	)

	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_sessions_total",
			Help: "Sessions mounted, labeled by page transport.",
		},
		[]string{"transport"},
	)

	sessionsEndedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_sessions_ended_total",
			Help: "Sessions torn down, labeled by reason.",
		},
		[]string{"reason"},
	)

	signalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_signals_total",
			Help: "Page signals received, labeled by type and result.",
		},
		[]string{"type", "result"},
	)

	fireRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_fire_requests_total",
			Help: "Fire-and-forget collector requests, labeled by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	beaconsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engagement_beacons_rejected_total",
			Help: "Beacon payloads that could not be serialized.",
		},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the relay HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SessionMounted records a new session for transport ("ws" or "rest").
func SessionMounted(transport string) {
	sessionsTotal.WithLabelValues(transport).Inc()
	sessionsActive.Inc()
}

// SessionEnded records a teardown for reason.
func SessionEnded(reason string) {
	sessionsEndedTotal.WithLabelValues(reason).Inc()
	sessionsActive.Dec()
}

// ObserveSignal records a page signal and whether it was accepted.
func ObserveSignal(signalType string, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	signalsTotal.WithLabelValues(signalType, result).Inc()
}

// ObserveFire records the outcome of a fire-and-forget request.
func ObserveFire(endpoint, outcome string) {
	fireRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveBeaconRejected counts a beacon dropped before queueing.
func ObserveBeaconRejected() {
	beaconsRejectedTotal.Inc()
}

// OutboxStats is the read-only view of the outbox exported as metrics.
type OutboxStats interface {
	Pending() int
	Dropped() int64
	Delivered() int64
}

// RegisterOutbox exports stats through reg. A nil reg uses the default registerer.
func RegisterOutbox(reg prometheus.Registerer, stats OutboxStats) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "engagement_outbox_pending",
			Help: "Envelopes waiting in the outbox buffer.",
		}, func() float64 { return float64(stats.Pending()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "engagement_outbox_dropped_total",
			Help: "Envelopes dropped for backpressure or after shutdown.",
		}, func() float64 { return float64(stats.Dropped()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "engagement_outbox_delivered_total",
			Help: "Envelopes handed to the outbox sinks.",
		}, func() float64 { return float64(stats.Delivered()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register outbox collector: %w", err)
		}
	}
	return nil
}

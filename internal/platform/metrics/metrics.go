// Package metrics defines the Prometheus instruments of the service.
// Every recording method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bankcards"

// Metrics provides observability for transfers, card lifecycle changes and HTTP traffic.
type Metrics struct {
	registry *prometheus.Registry

	// Transfer outcomes: "completed" or the error kind that rejected the transfer
	TransferOutcome *prometheus.CounterVec

	// End-to-end transfer latency including lock waits
	TransferDuration prometheus.Histogram

	// Transfers and lifecycle updates that lost a lock race
	LockConflicts prometheus.Counter

	// Card lifecycle operations by operation name
	CardOperations *prometheus.CounterVec

	// Cards moved to EXPIRED by the background sweep
	CardsExpired prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates a Metrics instance registered on its own registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TransferOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Total transfer attempts by outcome",
		}, []string{"outcome"}),

		TransferDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Duration of transfers including lock acquisition",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		LockConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_conflicts_total",
			Help:      "Operations aborted because card locks could not be acquired",
		}),

		CardOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "card_operations_total",
			Help:      "Card lifecycle operations by operation",
		}, []string{"operation"}), // create, update, block, activate, delete, block_request

		CardsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cards_expired_total",
			Help:      "Cards marked EXPIRED by the expiry sweep",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code",
		}, []string{"method", "route", "status"}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveTransfer records a transfer attempt and its duration.
func (m *Metrics) ObserveTransfer(outcome string, d time.Duration) {
	if m != nil {
		m.TransferOutcome.WithLabelValues(outcome).Inc()
		m.TransferDuration.Observe(d.Seconds())
	}
}

// IncrementLockConflicts records an operation that lost a lock race.
func (m *Metrics) IncrementLockConflicts() {
	if m != nil {
		m.LockConflicts.Inc()
	}
}

// IncrementCardOperation records a successful lifecycle operation.
func (m *Metrics) IncrementCardOperation(operation string) {
	if m != nil {
		m.CardOperations.WithLabelValues(operation).Inc()
	}
}

// AddCardsExpired records cards moved to EXPIRED by one sweep run.
func (m *Metrics) AddCardsExpired(n int) {
	if m != nil && n > 0 {
		m.CardsExpired.Add(float64(n))
	}
}

// ObserveHTTPRequest records a served HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
	}
}

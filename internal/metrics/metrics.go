// Package metrics exposes checkout counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Purchase outcomes used as the "outcome" label.
const (
	OutcomeCompleted      = "completed"
	OutcomeReplayed       = "replayed"
	OutcomeSoldOut        = "sold_out"
	OutcomeInvalid        = "invalid"
	OutcomeNotFound       = "not_found"
	OutcomeConflict       = "conflict"
	OutcomePersistence    = "persistence_failed"
	OutcomePassGeneration = "pass_generation_failed"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	purchases        *prometheus.CounterVec
	purchaseDuration prometheus.Histogram
	unitsSold        prometheus.Counter
	releases         *prometheus.CounterVec
	leakedUnits      prometheus.Counter
	staleReleased    prometheus.Counter
	publishFailures  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		purchases: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_purchases_total",
				Help: "Purchase attempts by outcome",
			},
			[]string{"outcome"},
		),
		purchaseDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "checkout_purchase_duration_seconds",
				Help:    "Latency of purchase calls",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
		unitsSold: f.NewCounter(
			prometheus.CounterOpts{
				Name: "checkout_units_sold_total",
				Help: "Ticket units sold through completed purchases",
			},
		),
		releases: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inventory_releases_total",
				Help: "Compensating inventory releases by result",
			},
			[]string{"reason", "result"},
		),
		leakedUnits: f.NewCounter(
			prometheus.CounterOpts{
				Name: "inventory_leaked_units_total",
				Help: "Reserved units whose release failed and stay unsellable until swept",
			},
		),
		staleReleased: f.NewCounter(
			prometheus.CounterOpts{
				Name: "inventory_stale_reservations_released_total",
				Help: "Held reservations reclaimed by the sweeper",
			},
		),
		publishFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "checkout_event_publish_failures_total",
				Help: "Transaction events that could not be published",
			},
		),
	}
}

func (m *Metrics) ObservePurchase(outcome string, quantity int, d time.Duration) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(outcome).Inc()
	m.purchaseDuration.Observe(d.Seconds())
	if outcome == OutcomeCompleted {
		m.unitsSold.Add(float64(quantity))
	}
}

func (m *Metrics) ObserveRelease(reason string, quantity int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.releases.WithLabelValues(reason, "failed").Inc()
		m.leakedUnits.Add(float64(quantity))
		return
	}
	m.releases.WithLabelValues(reason, "ok").Inc()
}

func (m *Metrics) ObserveStaleReleased(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.staleReleased.Add(float64(n))
}

func (m *Metrics) ObservePublishFailure() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

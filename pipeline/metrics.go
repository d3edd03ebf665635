package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the polling pipeline.
type Metrics struct {
	CyclesTotal          prometheus.Counter
	DeliveredTotal       prometheus.Counter
	SkippedTotal         prometheus.Counter
	FailedTotal          prometheus.Counter
	TenantCycleFailures  prometheus.Counter
	CycleDurationSeconds prometheus.Histogram
}

// NewMetrics registers and returns pipeline collectors on the given registerer.
// A nil registerer uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "receiptflow_cycles_total",
			Help: "Total number of polling cycles run",
		}),
		DeliveredTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "receiptflow_receipts_delivered_total",
			Help: "Total number of receipts delivered",
		}),
		SkippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "receiptflow_receipts_skipped_total",
			Help: "Total number of items permanently skipped",
		}),
		FailedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "receiptflow_receipts_failed_total",
			Help: "Total number of recoverable item failures deferred to a later cycle",
		}),
		TenantCycleFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "receiptflow_tenant_cycle_failures_total",
			Help: "Total number of tenant cycles aborted before completion",
		}),
		CycleDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "receiptflow_cycle_duration_seconds",
			Help:    "Duration of full polling cycles in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 120, 300},
		}),
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "maintenance_scheduler"

// Metrics holds all prometheus metrics of the engine.
type Metrics struct {
	OccurrencesCreated   prometheus.Counter
	OccurrencesCompleted prometheus.Counter
	OccurrencesCancelled prometheus.Counter
	OccurrencesOverdue   prometheus.Counter
	ChainsExhausted      prometheus.Counter
	CodesAllocated       *prometheus.CounterVec
	SweepDuration        prometheus.Histogram
	SweepFailures        prometheus.Counter
	ErrorsCount          *prometheus.CounterVec
}

// New registers the engine metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OccurrencesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occurrences_created_total",
			Help:      "The total number of schedule occurrences created",
		}),
		OccurrencesCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occurrences_completed_total",
			Help:      "The total number of schedule occurrences completed",
		}),
		OccurrencesCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occurrences_cancelled_total",
			Help:      "The total number of schedule occurrences cancelled, cascades included",
		}),
		OccurrencesOverdue: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occurrences_overdue_total",
			Help:      "The total number of occurrences the sweeper marked overdue",
		}),
		ChainsExhausted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chains_exhausted_total",
			Help:      "The total number of plan chains that reached their recurrence limit",
		}),
		CodesAllocated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_codes_allocated_total",
			Help:      "The total number of sequence codes allocated",
		}, []string{"entity_type"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Time taken by one overdue sweep",
			Buckets:   prometheus.DefBuckets,
		}),
		SweepFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_item_failures_total",
			Help:      "The total number of occurrences a sweep failed to update",
		}),
		ErrorsCount: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "The total number of errors",
		}, []string{"operation"}),
	}
}

// NewNoop returns metrics registered against a private registry.
func NewNoop() *Metrics {
	return New(prometheus.NewRegistry())
}

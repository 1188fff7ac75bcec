package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for directory calls and duplicate scans.
type Metrics struct {
	// Latency of directory operations by op: "fetch", "create", "update", "delete", "duplicates"
	OperationLatency *prometheus.HistogramVec

	// Failed directory operations by op and error category
	OperationErrors *prometheus.CounterVec

	// Contacts returned per feed fetch
	ContactsFetched prometheus.Histogram

	// Pairs reported per duplicate scan
	DuplicatePairs prometheus.Histogram
}

// New registers the directory metrics with the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the directory metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contactdir_directory_operation_duration_seconds",
			Help:    "Duration of directory operations against the remote address book",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),

		OperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contactdir_directory_operation_errors_total",
			Help: "Failed directory operations by operation and error category",
		}, []string{"op", "category"}),

		ContactsFetched: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contactdir_directory_contacts_fetched",
			Help:    "Number of contacts returned by a full feed fetch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),

		DuplicatePairs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contactdir_duplicate_pairs_found",
			Help:    "Number of duplicate pairs reported by a scan",
			Buckets: prometheus.ExponentialBuckets(1, 4, 6),
		}),
	}
}

// ObserveOperation records the duration of a directory operation.
func (m *Metrics) ObserveOperation(op string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

// IncrementError records a failed directory operation.
func (m *Metrics) IncrementError(op, category string) {
	if m != nil {
		m.OperationErrors.WithLabelValues(op, category).Inc()
	}
}

// ObserveContactsFetched records the size of a fetched contact set.
func (m *Metrics) ObserveContactsFetched(n int) {
	if m != nil {
		m.ContactsFetched.Observe(float64(n))
	}
}

// ObserveDuplicatePairs records how many pairs a scan reported.
func (m *Metrics) ObserveDuplicatePairs(n int) {
	if m != nil {
		m.DuplicatePairs.Observe(float64(n))
	}
}

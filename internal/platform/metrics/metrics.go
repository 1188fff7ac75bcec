package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-wide HTTP metrics.
type Metrics struct {
	// Request latency by chi route pattern, method and status class
	RequestDuration *prometheus.HistogramVec

	// Requests rejected by the admin token guard
	AdminTokenRejections prometheus.Counter
}

// New creates and registers the HTTP metrics with the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the HTTP metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contactdir_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		AdminTokenRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactdir_admin_token_rejections_total",
			Help: "Total number of requests rejected for a missing or wrong admin token",
		}),
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route, method, status string, d time.Duration) {
	if m != nil {
		m.RequestDuration.WithLabelValues(route, method, status).Observe(d.Seconds())
	}
}

// IncrementAdminTokenRejections counts a rejected admin request.
func (m *Metrics) IncrementAdminTokenRejections() {
	if m != nil {
		m.AdminTokenRejections.Inc()
	}
}

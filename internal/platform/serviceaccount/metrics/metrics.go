package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks access-token minting.
type Metrics struct {
	// Token exchanges by outcome: "success", "error"
	Refreshes *prometheus.CounterVec

	// Token requests answered from the cache
	CacheHits prometheus.Counter
}

// New registers the token metrics with the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the token metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contactdir_token_refreshes_total",
			Help: "Access token exchanges against the token endpoint by outcome",
		}, []string{"outcome"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactdir_token_cache_hits_total",
			Help: "Access token requests served from the cache",
		}),
	}
}

// IncrementRefresh records a token exchange.
func (m *Metrics) IncrementRefresh(outcome string) {
	if m != nil {
		m.Refreshes.WithLabelValues(outcome).Inc()
	}
}

// IncrementCacheHit records a cache hit.
func (m *Metrics) IncrementCacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

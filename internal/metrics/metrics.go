package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the daemon's prometheus collectors. A nil *Metrics is a
// valid no-op recorder, so components can take it optionally.
type Metrics struct {
	cycles           *prometheus.CounterVec
	profilesCreated  prometheus.Counter
	refreshBatchSize prometheus.Histogram
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netsel_cycles_total",
			Help: "Evaluation cycles by outcome.",
		}, []string{"outcome"}),
		profilesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netsel_profiles_created_total",
			Help: "Ephemeral profiles created from recommendations.",
		}),
		refreshBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "netsel_refresh_batch_size",
			Help:    "Unscored networks per score refresh batch.",
			Buckets: prometheus.LinearBuckets(1, 4, 8),
		}),
	}
	reg.MustRegister(m.cycles, m.profilesCreated, m.refreshBatchSize)
	return m
}

// CycleFinished counts one evaluation cycle with its outcome label.
func (m *Metrics) CycleFinished(outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
}

// ProfileCreated counts one ephemeral promotion.
func (m *Metrics) ProfileCreated() {
	if m == nil {
		return
	}
	m.profilesCreated.Inc()
}

// RefreshBatch records the size of one submitted score refresh batch.
func (m *Metrics) RefreshBatch(n int) {
	if m == nil {
		return
	}
	m.refreshBatchSize.Observe(float64(n))
}

package batch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors updated by an Aggregator. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	OperationsStaged *prometheus.CounterVec
	BatchesAllocated prometheus.Counter
	BatchCommits     *prometheus.CounterVec
	CommitLatency    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsStaged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "godb",
			Subsystem: "bulk",
			Name:      "operations_staged_total",
			Help:      "Operations staged into batch handles, by kind.",
		}, []string{"op"}),
		BatchesAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "godb",
			Subsystem: "bulk",
			Name:      "batches_allocated_total",
			Help:      "Batch handles obtained from the connection.",
		}),
		BatchCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "godb",
			Subsystem: "bulk",
			Name:      "batch_commits_total",
			Help:      "Underlying batch handle commits, by outcome.",
		}, []string{"outcome"}),
		CommitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "godb",
			Subsystem: "bulk",
			Name:      "commit_duration_seconds",
			Help:      "Wall time of a fan-out commit across all handles.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.OperationsStaged, m.BatchesAllocated, m.BatchCommits, m.CommitLatency)
	}
	return m
}

func (m *Metrics) staged(op string) {
	if m == nil {
		return
	}
	m.OperationsStaged.WithLabelValues(op).Inc()
}

func (m *Metrics) allocated() {
	if m == nil {
		return
	}
	m.BatchesAllocated.Inc()
}

func (m *Metrics) committed(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.BatchCommits.WithLabelValues("failure").Inc()
		return
	}
	m.BatchCommits.WithLabelValues("success").Inc()
}

func (m *Metrics) timer() *prometheus.Timer {
	if m == nil {
		return nil
	}
	return prometheus.NewTimer(m.CommitLatency)
}

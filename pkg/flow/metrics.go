package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes recorded by Metrics.
const (
	OutcomeCompleted  = "completed"
	OutcomeDeadlocked = "deadlocked"
	OutcomeCancelled  = "cancelled"
)

// Metrics collects engine counters into a Prometheus registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	runs      *prometheus.CounterVec
	nodes     *prometheus.CounterVec
	durations *prometheus.HistogramVec
	waveSize  prometheus.Gauge
}

// NewMetrics registers the engine collectors with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nodeflow",
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Finished runs by outcome.",
		}, []string{"outcome"}),
		nodes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nodeflow",
			Subsystem: "engine",
			Name:      "node_activations_total",
			Help:      "Node activations by kind and final status.",
		}, []string{"kind", "status"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nodeflow",
			Subsystem: "engine",
			Name:      "node_duration_seconds",
			Help:      "Node execution time by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		waveSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "nodeflow",
			Subsystem: "engine",
			Name:      "wave_size",
			Help:      "Size of the most recent scheduling wave.",
		}),
	}
}

func (m *Metrics) runFinished(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) nodeObserved(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.nodes.WithLabelValues(kind, status).Inc()
	m.durations.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) waveObserved(size int) {
	if m == nil {
		return
	}
	m.waveSize.Set(float64(size))
}

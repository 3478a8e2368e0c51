package metrics

import (
	"time"

	"driving-school-admin/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ImportRuns       *prometheus.CounterVec
	ImportOutcomes   *prometheus.CounterVec
	ImportDuration   prometheus.Histogram
	ForcedApplies    prometheus.Counter
	PendingConflicts prometheus.Gauge
}

// New registers the import collectors on reg. Tests pass a fresh
// prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ImportRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "school_import_runs_total",
			Help: "Import runs by mode and result",
		}, []string{"mode", "result"}),
		ImportOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "school_import_outcomes_total",
			Help: "Row outcomes produced by imports",
		}, []string{"category", "status"}),
		ImportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "school_import_duration_seconds",
			Help:    "Wall time of a complete import run",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		ForcedApplies: factory.NewCounter(prometheus.CounterOpts{
			Name: "school_import_forced_applies_total",
			Help: "Conflicts force-applied by an operator",
		}),
		PendingConflicts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "school_import_last_run_pending_conflicts",
			Help: "Conflicts left for review by the most recent import",
		}),
	}
}

func (m *Metrics) ObserveRun(session *model.Session, err error, took time.Duration) {
	if m == nil {
		return
	}

	mode := "normal"
	if session != nil && session.Sandbox {
		mode = "sandbox"
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.ImportRuns.WithLabelValues(mode, result).Inc()
	m.ImportDuration.Observe(took.Seconds())

	if session != nil {
		m.PendingConflicts.Set(float64(len(session.Conflicts)))
	}
}

func (m *Metrics) ObserveOutcome(category model.Category, status model.OutcomeStatus) {
	if m == nil {
		return
	}
	m.ImportOutcomes.WithLabelValues(string(category), string(status)).Inc()
}

func (m *Metrics) IncrementForcedApplies() {
	if m == nil {
		return
	}
	m.ForcedApplies.Inc()
}

package xsort

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the RunMerger-side counters named in SPEC_FULL.md §3's
// domain-stack table: merge passes and runs merged, registered against a
// caller-supplied *prometheus.Registry rather than the global registry so
// that multiple engines in one process do not collide, following
// _examples/dd0wney-graphdb/pkg/metrics/init_storage.go's
// promauto.With(registry) pattern.
type Metrics struct {
	mergePasses   prometheus.Counter
	runsMerged    prometheus.Counter
	groupsCarried prometheus.Counter
}

// NewMetrics registers the merger counters against reg. A nil reg (the
// common case in tests and in the small-input path) yields a nil
// *Metrics; every observer method below is nil-safe.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &Metrics{
		mergePasses: f.NewCounter(prometheus.CounterOpts{
			Name: "xsort_merge_passes_total",
			Help: "Number of recursive-merge passes executed.",
		}),
		runsMerged: f.NewCounter(prometheus.CounterOpts{
			Name: "xsort_runs_merged_total",
			Help: "Number of runs consumed by non-trivial (size > 1) merge groups.",
		}),
		groupsCarried: f.NewCounter(prometheus.CounterOpts{
			Name: "xsort_merge_groups_carried_total",
			Help: "Number of singleton merge groups carried over without re-reading.",
		}),
	}
}

func (m *Metrics) observePass() {
	if m != nil {
		m.mergePasses.Inc()
	}
}

func (m *Metrics) observeRunsMerged(n int) {
	if m != nil {
		m.runsMerged.Add(float64(n))
	}
}

func (m *Metrics) observeGroupCarried() {
	if m != nil {
		m.groupsCarried.Inc()
	}
}

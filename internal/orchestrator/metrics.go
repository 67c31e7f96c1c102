package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/krisavpn/fleetctl/internal/fleet"
)

// Metrics exposes reconciliation counters. All methods are nil-safe so the
// orchestrator can run without a registry in tests.
type Metrics struct {
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	deltaNodes    *prometheus.GaugeVec
	probeFailures prometheus.Counter
}

// NewMetrics registers reconciliation metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetctl_runs_total",
			Help: "Reconciliation runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetctl_run_duration_seconds",
			Help:    "Wall-clock duration of reconciliation runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		deltaNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetctl_delta_nodes",
			Help: "Node counts in the most recent delta, by action.",
		}, []string{"action"}),
		probeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetctl_probe_failures_total",
			Help: "Connectivity probes that exhausted their retry budget.",
		}),
	}
	reg.MustRegister(m.runsTotal, m.runDuration, m.deltaNodes, m.probeFailures)
	return m
}

func (m *Metrics) observeRun(mode Mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(mode.String(), outcome).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) observeDelta(d fleet.Delta) {
	if m == nil {
		return
	}
	m.deltaNodes.WithLabelValues("create").Set(float64(len(d.ToCreate)))
	m.deltaNodes.WithLabelValues("destroy").Set(float64(len(d.ToDestroy)))
	m.deltaNodes.WithLabelValues("replace").Set(float64(len(d.ToReplace)))
	m.deltaNodes.WithLabelValues("unchanged").Set(float64(len(d.Unchanged)))
}

func (m *Metrics) observeProbeFailure() {
	if m == nil {
		return
	}
	m.probeFailures.Inc()
}

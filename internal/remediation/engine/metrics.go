package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters for remediation runs. Each Metrics owns its
// registry so that a process (or a test) can create several.
//
// Metrics:
//   - opsguard_runs_total{status}
//   - opsguard_reproduce_attempts_total
//   - opsguard_fix_attempts_total
//   - opsguard_patch_lines{direction}
//   - opsguard_run_duration_seconds
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal              *prometheus.CounterVec
	ReproduceAttemptsTotal prometheus.Counter
	FixAttemptsTotal       prometheus.Counter
	PatchLines             *prometheus.GaugeVec
	RunDuration            prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsguard_runs_total",
				Help: "Remediation runs by terminal status",
			},
			[]string{"status"},
		),
		ReproduceAttemptsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "opsguard_reproduce_attempts_total",
			Help: "Reproduction runs that exited cleanly",
		}),
		FixAttemptsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "opsguard_fix_attempts_total",
			Help: "Failed patch rounds",
		}),
		PatchLines: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "opsguard_patch_lines",
				Help: "Lines added and removed by the last applied patch",
			},
			[]string{"direction"},
		),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "opsguard_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
	}
}

func (m *Metrics) observe(s *RunState, added, removed int, elapsed time.Duration) {
	if m == nil || s == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(s.Status)).Inc()
	m.ReproduceAttemptsTotal.Add(float64(s.ReproduceAttempts))
	m.FixAttemptsTotal.Add(float64(s.FixAttempts))
	m.PatchLines.WithLabelValues("added").Set(float64(added))
	m.PatchLines.WithLabelValues("removed").Set(float64(removed))
	m.RunDuration.Set(elapsed.Seconds())
}

// WriteTextfile writes the metrics in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

package promexporter

import (
	"github.com/pior/emc/loadgen"
	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics holds the outcome of loadgen runs
type RunMetrics struct {
	active       *prometheus.GaugeVec
	runsTotal    *prometheus.CounterVec
	itemsTotal   *prometheus.CounterVec
	bytesTotal   *prometheus.CounterVec
	workerErrors *prometheus.CounterVec
	duration     *prometheus.GaugeVec
	itemRate     *prometheus.GaugeVec
	byteRate     *prometheus.GaugeVec
}

// NewRunMetrics creates and registers all run metrics
func NewRunMetrics(registry *prometheus.Registry) *RunMetrics {
	m := &RunMetrics{
		active: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "emc_run_active",
				Help: "Whether a task is currently running (0=no, 1=yes)",
			},
			[]string{"task"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emc_runs_total",
				Help: "Total number of task runs",
			},
			[]string{"task", "status"}, // completed, interrupted, failed
		),
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emc_run_items_total",
				Help: "Items transferred by completed units of work",
			},
			[]string{"task"},
		),
		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emc_run_bytes_total",
				Help: "Key and value bytes transferred by completed units of work",
			},
			[]string{"task"},
		),
		workerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emc_run_worker_errors_total",
				Help: "Workers stopped by an error",
			},
			[]string{"task"},
		),
		duration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "emc_run_duration_seconds",
				Help: "Duration of the last run",
			},
			[]string{"task"},
		),
		itemRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "emc_run_items_per_second",
				Help: "Net item rate of the last run",
			},
			[]string{"task"},
		),
		byteRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "emc_run_bytes_per_second",
				Help: "Net byte rate of the last run",
			},
			[]string{"task"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.active,
		m.runsTotal,
		m.itemsTotal,
		m.bytesTotal,
		m.workerErrors,
		m.duration,
		m.itemRate,
		m.byteRate,
	)

	return m
}

// SetActive sets whether task is currently running
func (m *RunMetrics) SetActive(task string, active bool) {
	if active {
		m.active.WithLabelValues(task).Set(1)
	} else {
		m.active.WithLabelValues(task).Set(0)
	}
}

// RecordFailure records a run that could not complete its pre or post phase
func (m *RunMetrics) RecordFailure(task string) {
	m.runsTotal.WithLabelValues(task, "failed").Inc()
}

// RecordReport records a finished run
func (m *RunMetrics) RecordReport(r loadgen.Report) {
	status := "completed"
	if r.Interrupted {
		status = "interrupted"
	}
	m.runsTotal.WithLabelValues(r.Task, status).Inc()
	m.itemsTotal.WithLabelValues(r.Task).Add(float64(r.Total.Items))
	m.bytesTotal.WithLabelValues(r.Task).Add(float64(r.Total.Bytes))
	m.workerErrors.WithLabelValues(r.Task).Add(float64(len(r.Errors)))
	m.duration.WithLabelValues(r.Task).Set(r.Duration.Seconds())
	m.itemRate.WithLabelValues(r.Task).Set(r.ItemRate())
	m.byteRate.WithLabelValues(r.Task).Set(r.ByteRate())
}

package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of one scheduler run.
const (
	RunOutcomeOK      = "ok"
	RunOutcomeFailed  = "failed"
	RunOutcomeTimeout = "timeout"
)

// SchedulerMetrics tracks the periodic sync loop of the worker.
type SchedulerMetrics struct {
	runs               *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	lastSuccess        *prometheus.GaugeVec
	accountErrors      *prometheus.CounterVec
	accountsDeferred   *prometheus.CounterVec
	documentsProcessed *prometheus.CounterVec
	tickLag            prometheus.Histogram
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler metrics.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func constLabels(cfg Config) prometheus.Labels {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "ledgerbridge"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	return prometheus.Labels{"service": service, "env": env}
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)
	counter := func(name, help string, vars ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerbridge", Subsystem: "scheduler", Name: name, Help: help, ConstLabels: labels,
		}, vars)
	}

	m := &SchedulerMetrics{
		runs:               counter("runs_total", "Scheduler runs by job and outcome.", "job", "outcome"),
		accountErrors:      counter("account_errors_total", "Account runs that failed, by error class.", "job", "class"),
		accountsDeferred:   counter("accounts_deferred_total", "Accounts skipped because another process was syncing them.", "job"),
		documentsProcessed: counter("documents_processed_total", "Documents attempted by scheduled runs.", "job", "doc_type"),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledgerbridge", Subsystem: "scheduler", Name: "run_duration_seconds",
			Help:        "Wall time of one scheduler run.",
			Buckets:     []float64{1, 5, 10, 30, 60, 120, 300, 600, 900, 1800},
			ConstLabels: labels,
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ledgerbridge", Subsystem: "scheduler", Name: "last_success_timestamp_seconds",
			Help:        "Unix time of the last run that finished without errors.",
			ConstLabels: labels,
		}, []string{"job"}),
		tickLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ledgerbridge", Subsystem: "scheduler", Name: "tick_lag_seconds",
			Help:        "Delay between the planned and the actual start of a run.",
			Buckets:     []float64{0.1, 1, 5, 15, 60, 300, 900},
			ConstLabels: labels,
		}),
	}
	registerer.MustRegister(
		m.runs,
		m.runDuration,
		m.lastSuccess,
		m.accountErrors,
		m.accountsDeferred,
		m.documentsProcessed,
		m.tickLag,
	)
	return m
}

// ObserveRun counts a finished run and its duration.
func (m *SchedulerMetrics) ObserveRun(job, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job, outcome).Inc()
	m.runDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

func (m *SchedulerMetrics) SetLastSuccess(job string, at time.Time) {
	if m == nil {
		return
	}
	m.lastSuccess.WithLabelValues(job).Set(float64(at.Unix()))
}

func (m *SchedulerMetrics) IncAccountError(job, class string) {
	if m == nil {
		return
	}
	m.accountErrors.WithLabelValues(job, class).Inc()
}

func (m *SchedulerMetrics) IncAccountDeferred(job string) {
	if m == nil {
		return
	}
	m.accountsDeferred.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) AddDocumentsProcessed(job, docType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.documentsProcessed.WithLabelValues(job, docType).Add(float64(n))
}

func (m *SchedulerMetrics) ObserveTickLag(lag time.Duration) {
	if m == nil || lag <= 0 {
		return
	}
	m.tickLag.Observe(lag.Seconds())
}

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics tracks per-document migration outcomes.
type SyncMetrics struct {
	documents        *prometheus.CounterVec
	duplicateRetries *prometheus.CounterVec
	documentErrors   *prometheus.CounterVec
	cursorAdvances   *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

// Sync returns the singleton sync metrics registry.
func Sync() *SyncMetrics {
	return SyncWithConfig(Config{})
}

// SyncWithConfig returns the singleton sync metrics registry using config labels.
func SyncWithConfig(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = newSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

// ResetSyncMetricsForTest resets the sync metrics singleton for tests.
func ResetSyncMetricsForTest() {
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
}

func newSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	documents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ledgerbridge_sync_documents_total",
		Help:        "Documents that reached a final state, by type and state.",
		ConstLabels: labels,
	}, []string{"doc_type", "state"})
	duplicateRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ledgerbridge_sync_duplicate_retries_total",
		Help:        "Entry resubmissions after a duplicate-key response.",
		ConstLabels: labels,
	}, []string{"doc_type"})
	documentErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ledgerbridge_sync_document_errors_total",
		Help:        "Per-document failures by stage and error class.",
		ConstLabels: labels,
	}, []string{"stage", "error_type"})
	cursorAdvances := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ledgerbridge_sync_cursor_advances_total",
		Help:        "Cursor advances by document type.",
		ConstLabels: labels,
	}, []string{"doc_type"})
	batchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "ledgerbridge_sync_batch_duration_seconds",
		Help:        "Duration of one account and document type batch.",
		Buckets:     []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		ConstLabels: labels,
	}, []string{"doc_type"})

	registerer.MustRegister(documents, duplicateRetries, documentErrors, cursorAdvances, batchDuration)

	return &SyncMetrics{
		documents:        documents,
		duplicateRetries: duplicateRetries,
		documentErrors:   documentErrors,
		cursorAdvances:   cursorAdvances,
		batchDuration:    batchDuration,
	}
}

func (m *SyncMetrics) IncDocument(docType, state string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(docType, state).Inc()
}

func (m *SyncMetrics) IncDuplicateRetry(docType string) {
	if m == nil {
		return
	}
	m.duplicateRetries.WithLabelValues(docType).Inc()
}

// IncDocumentError records a failure; errorType comes from the caller's classifier.
func (m *SyncMetrics) IncDocumentError(stage, errorType string) {
	if m == nil {
		return
	}
	m.documentErrors.WithLabelValues(stage, errorType).Inc()
}

func (m *SyncMetrics) IncCursorAdvance(docType string) {
	if m == nil {
		return
	}
	m.cursorAdvances.WithLabelValues(docType).Inc()
}

func (m *SyncMetrics) ObserveBatchDuration(docType string, d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.WithLabelValues(docType).Observe(d.Seconds())
}

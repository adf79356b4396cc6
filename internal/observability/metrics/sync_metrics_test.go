package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSyncMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSyncMetrics(registry, Config{ServiceName: "ledgerbridge", Environment: "test"})

	m.IncDocument("invoice", "submitted")
	m.IncDocument("invoice", "submitted")
	m.IncDuplicateRetry("purchase")
	m.IncDocumentError("submitting", "upstream")
	m.IncCursorAdvance("invoice")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.documents.WithLabelValues("invoice", "submitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.duplicateRetries.WithLabelValues("purchase")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documentErrors.WithLabelValues("submitting", "upstream")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cursorAdvances.WithLabelValues("invoice")))
}

func TestNilSyncMetricsIsSafe(t *testing.T) {
	var m *SyncMetrics
	m.IncDocument("invoice", "failed")
	m.IncDuplicateRetry("invoice")
	m.ObserveBatchDuration("invoice", 0)
}

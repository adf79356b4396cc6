package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerMetricsRecordRuns(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "ledgerbridge", Environment: "test"})

	m.ObserveRun("sync_accounts", RunOutcomeOK, 3*time.Second)
	m.ObserveRun("sync_accounts", RunOutcomeTimeout, 10*time.Minute)
	m.IncAccountError("sync_accounts", "upstream")
	m.IncAccountDeferred("sync_accounts")
	m.AddDocumentsProcessed("sync_accounts", "invoice", 15)
	m.AddDocumentsProcessed("sync_accounts", "invoice", 0)
	m.SetLastSuccess("sync_accounts", time.Unix(1751328000, 0))
	m.ObserveTickLag(-time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sync_accounts", RunOutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sync_accounts", RunOutcomeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.accountErrors.WithLabelValues("sync_accounts", "upstream")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.accountsDeferred.WithLabelValues("sync_accounts")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.documentsProcessed.WithLabelValues("sync_accounts", "invoice")))
	assert.Equal(t, 1751328000.0, testutil.ToFloat64(m.lastSuccess.WithLabelValues("sync_accounts")))
	var lag dto.Metric
	require.NoError(t, m.tickLag.Write(&lag))
	assert.Zero(t, lag.GetHistogram().GetSampleCount())
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.ObserveRun("job", RunOutcomeFailed, time.Second)
	m.IncAccountError("job", "auth")
	m.IncAccountDeferred("job")
	m.AddDocumentsProcessed("job", "invoice", 1)
	m.SetLastSuccess("job", time.Now())
	m.ObserveTickLag(time.Second)
}

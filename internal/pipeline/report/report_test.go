package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/smallbiznis/ledgerbridge/internal/pipeline/runlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteWorkbook(t *testing.T) {
	at := time.Date(2025, 6, 23, 8, 0, 0, 0, time.UTC)
	runs := []runlog.DocumentRun{
		{ID: 1, AccountName: "Frutas", DocType: "invoice", SourceID: "a", CursorPosition: 3, DocumentNumber: 120, State: "pdf-uploaded", StartedAt: at, FinishedAt: at},
		{ID: 2, AccountName: "Frutas", DocType: "invoice", SourceID: "b", CursorPosition: 4, State: "failed", Error: "resolve customer: boom", StartedAt: at, FinishedAt: at},
		{ID: 3, AccountName: "Frutas", DocType: "purchase", SourceID: "c", CursorPosition: 0, DocumentNumber: 121, State: "abandoned", DuplicateRetries: 3, StartedAt: at, FinishedAt: at},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, runs, time.UTC))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(runsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, runColumns, rows[0])
	assert.Equal(t, "a", rows[1][3])
	assert.Equal(t, "120", rows[1][5])
	assert.Equal(t, "resolve customer: boom", rows[2][8])
	assert.Equal(t, "2025-06-23 08:00:00", rows[3][9])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.Len(t, summary, 5)
	assert.Equal(t, []string{"invoice", "failed", "1"}, summary[1])
	assert.Equal(t, []string{"purchase", "abandoned", "1"}, summary[3])
	assert.Equal(t, []string{"", "Total", "3"}, summary[4])
}

func TestWriteRequiresWriter(t *testing.T) {
	assert.ErrorIs(t, Write(nil, nil, nil), ErrNoWriter)
}

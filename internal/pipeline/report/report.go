package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/smallbiznis/ledgerbridge/internal/pipeline/runlog"
	"github.com/xuri/excelize/v2"
)

const (
	runsSheet    = "Documentos"
	summarySheet = "Resumen"
	timeLayout   = "2006-01-02 15:04:05"
)

var ErrNoWriter = errors.New("report_no_writer")

var runColumns = []string{
	"ID", "Cuenta", "Tipo", "Documento origen", "Posición cursor", "Documento",
	"Estado", "Reintentos duplicado", "Error", "Inicio", "Fin",
}

// Write renders runs as an xlsx workbook with a per-document sheet and a
// per-state summary.
func Write(w io.Writer, runs []runlog.DocumentRun, loc *time.Location) error {
	if w == nil {
		return ErrNoWriter
	}
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", runsSheet); err != nil {
		return err
	}
	if err := writeRuns(f, runs, loc); err != nil {
		return err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	if err := writeSummary(f, runs); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}

func writeRuns(f *excelize.File, runs []runlog.DocumentRun, loc *time.Location) error {
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for i, title := range runColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(runsSheet, cell, title); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(runColumns), 1)
	if err := f.SetCellStyle(runsSheet, "A1", last, header); err != nil {
		return err
	}

	for i, run := range runs {
		row := []any{
			run.ID.String(),
			run.AccountName,
			run.DocType,
			run.SourceID,
			run.CursorPosition,
			run.DocumentNumber,
			run.State,
			run.DuplicateRetries,
			run.Error,
			run.StartedAt.In(loc).Format(timeLayout),
			run.FinishedAt.In(loc).Format(timeLayout),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(runsSheet, cell, &row); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	return f.SetPanes(runsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeSummary(f *excelize.File, runs []runlog.DocumentRun) error {
	type key struct{ docType, state string }
	counts := map[key]int{}
	for _, run := range runs {
		counts[key{run.DocType, run.State}]++
	}
	keys := make([]key, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].docType != keys[j].docType {
			return keys[i].docType < keys[j].docType
		}
		return keys[i].state < keys[j].state
	})

	if err := f.SetSheetRow(summarySheet, "A1", &[]any{"Tipo", "Estado", "Documentos"}); err != nil {
		return err
	}
	for i, k := range keys {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(summarySheet, cell, &[]any{k.docType, k.state, counts[k]}); err != nil {
			return err
		}
	}
	totalRow := len(keys) + 2
	if err := f.SetCellValue(summarySheet, fmt.Sprintf("B%d", totalRow), "Total"); err != nil {
		return err
	}
	return f.SetCellValue(summarySheet, fmt.Sprintf("C%d", totalRow), len(runs))
}

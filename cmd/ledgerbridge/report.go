package main

import (
	"fmt"
	"os"
	"time"

	accountdomain "github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/config"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline/report"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline/runlog"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:     "report",
	Short:   "Export the document run ledger of an account to xlsx",
	Example: `  ledgerbridge report --account "Hermanos Pastor SL" --out pastor.xlsx --since 2025-01-01`,
	RunE:    runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("account", "", "Account id or company name")
	reportCmd.Flags().String("out", "", "Destination .xlsx file")
	reportCmd.Flags().String("doc-type", "", "Only this document type")
	reportCmd.Flags().String("since", "", "Only runs started on or after this date (YYYY-MM-DD)")
	_ = reportCmd.MarkFlagRequired("account")
	_ = reportCmd.MarkFlagRequired("out")
}

func runReport(cmd *cobra.Command, _ []string) error {
	ref, _ := cmd.Flags().GetString("account")
	out, _ := cmd.Flags().GetString("out")
	docType, _ := cmd.Flags().GetString("doc-type")
	sinceStr, _ := cmd.Flags().GetString("since")

	var since time.Time
	if sinceStr != "" {
		parsed, err := time.Parse(time.DateOnly, sinceStr)
		if err != nil {
			return fmt.Errorf("invalid --since date, use YYYY-MM-DD: %w", err)
		}
		since = parsed
	}

	ctx := cmd.Context()
	var (
		cfg      config.Config
		accounts accountdomain.Service
		runs     *runlog.Recorder
	)
	stop, err := startApp(ctx, &cfg, &accounts, &runs)
	if err != nil {
		return err
	}
	defer stop()

	account, err := resolveAccount(ctx, accounts, ref)
	if err != nil {
		return err
	}
	rows, err := runs.List(ctx, account.ID, runlog.ListFilter{DocType: docType, Since: since})
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Sync.Timezone)
	if err != nil {
		loc = time.UTC
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := report.Write(f, rows, loc); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d runs to %s\n", len(rows), out)
	return nil
}

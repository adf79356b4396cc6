package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	accountdomain "github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/observability/metrics"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync batch for every account, or for one account",
	Example: `  # All configured accounts
  ledgerbridge run

  # One account, by id or company name
  ledgerbridge run --account "Hermanos Pastor SL"`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("account", "", "Account id or company name (default: all accounts)")
}

func runSync(cmd *cobra.Command, _ []string) error {
	ref, _ := cmd.Flags().GetString("account")
	ctx := cmd.Context()

	var (
		runner   *pipeline.Runner
		accounts accountdomain.Service
		pusher   *metrics.RunPusher
	)
	stop, err := startApp(ctx, &runner, &accounts, &pusher)
	if err != nil {
		return err
	}
	defer stop()

	var results []pipeline.BatchResult
	if ref == "" {
		results, err = runner.ProcessAllAccounts(ctx)
	} else {
		account, resolveErr := resolveAccount(ctx, accounts, ref)
		if resolveErr != nil {
			return resolveErr
		}
		results, err = runner.ProcessAccount(ctx, account)
	}
	printResults(cmd.OutOrStdout(), results)
	// a one-shot run is never scraped, so its counters are pushed instead
	pusher.Flush(context.WithoutCancel(ctx))
	return err
}

func printResults(w io.Writer, results []pipeline.BatchResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tTYPE\tLISTED\tPROCESSED\tSUBMITTED\tABANDONED\tFAILED\tCURSOR\tDURATION")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d -> %d\t%s\n",
			r.AccountName, r.DocType, r.Listed, r.Processed, r.Submitted, r.Abandoned, r.Failed,
			r.CursorStart, r.CursorEnd, r.Duration)
	}
	_ = tw.Flush()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ledgerbridge",
	Short: "Operator tooling for the Holded to Cegid invoice migration",
	Long: `ledgerbridge moves invoices, estimates and purchases from Holded into
Cegid accounting entries.

Configuration is read from the environment (and a .env file when present),
the same way the worker and dashboard processes read it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerbridge: %v\n", err)
		stop()
		os.Exit(1)
	}
}

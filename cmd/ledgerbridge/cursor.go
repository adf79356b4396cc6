package main

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	accountdomain "github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/offset"
	"github.com/spf13/cobra"
)

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Inspect or correct the per-account document cursors",
}

var cursorGetCmd = &cobra.Command{
	Use:   "get <account>",
	Short: "Print the cursor of every document type of an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runCursorGet,
}

var cursorSetCmd = &cobra.Command{
	Use:     "set <account> <doc-type> <value>",
	Short:   "Overwrite the cursor of one document type",
	Example: `  ledgerbridge cursor set "Hermanos Pastor SL" invoice 15`,
	Args:    cobra.ExactArgs(3),
	RunE:    runCursorSet,
}

func init() {
	rootCmd.AddCommand(cursorCmd)
	cursorCmd.AddCommand(cursorGetCmd)
	cursorCmd.AddCommand(cursorSetCmd)
}

func runCursorGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var accounts accountdomain.Service
	stop, err := startApp(ctx, &accounts)
	if err != nil {
		return err
	}
	defer stop()

	account, err := resolveAccount(ctx, accounts, args[0])
	if err != nil {
		return err
	}
	cursors, err := accounts.Cursors(ctx, account.ID)
	if err != nil {
		return err
	}

	docTypes := make([]string, 0, len(cursors))
	for docType := range cursors {
		docTypes = append(docTypes, docType)
	}
	sort.Strings(docTypes)
	out := cmd.OutOrStdout()
	for _, docType := range docTypes {
		fmt.Fprintf(out, "%s\t%d\n", docType, cursors[docType])
	}
	return nil
}

func runCursorSet(cmd *cobra.Command, args []string) error {
	docType := strings.ToLower(strings.TrimSpace(args[1]))
	value, err := strconv.ParseInt(strings.TrimSpace(args[2]), 10, 64)
	if err != nil || value < 0 {
		return fmt.Errorf("cursor value must be a non-negative integer: %q", args[2])
	}

	ctx := cmd.Context()
	var (
		accounts accountdomain.Service
		offsets  offset.Store
	)
	stop, err := startApp(ctx, &accounts, &offsets)
	if err != nil {
		return err
	}
	defer stop()

	account, err := resolveAccount(ctx, accounts, args[0])
	if err != nil {
		return err
	}
	if !slices.Contains(account.DocTypes, docType) {
		return fmt.Errorf("account %q does not sync %q documents", account.Name, docType)
	}

	previous := offsets.GetCursor(ctx, account.ID, docType)
	if err := offsets.SetCursor(ctx, account.ID, docType, value); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d -> %d\n", account.Name, docType, previous, value)
	return nil
}

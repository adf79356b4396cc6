package main

import (
	"fmt"
	"os"

	"github.com/smallbiznis/ledgerbridge/internal/account"
	accountdomain "github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage the configured company accounts",
}

var accountsImportCmd = &cobra.Command{
	Use:   "import <file.yml>",
	Short: "Create or update accounts from a YAML file",
	Long: `Create or update accounts from a YAML file. Accounts are matched by name.

  accounts:
    - name: Hermanos Pastor SL
      holded_api_key: ...
      cegid_company_code: E001
      mode: legacy
      doc_types: [invoice, purchase]
      document_counter: 120`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountsImport,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsImportCmd)
}

func readAccountsFile(path string) (config.AccountsFile, error) {
	var file config.AccountsFile
	raw, err := os.ReadFile(path)
	if err != nil {
		return file, err
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return file, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := config.ValidateAccountsFile(file); err != nil {
		return file, err
	}
	return file, nil
}

func runAccountsImport(cmd *cobra.Command, args []string) error {
	file, err := readAccountsFile(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var accounts accountdomain.Service
	stop, err := startApp(ctx, &accounts)
	if err != nil {
		return err
	}
	defer stop()

	created, err := accounts.Import(ctx, account.SeedRequests(file))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d accounts (%d new)\n", len(file.Accounts), created)
	return nil
}

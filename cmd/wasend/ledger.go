package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	ledgerScope    string
	ledgerClearAll bool
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Dedup ledger commands",
}

var ledgerCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count recipients recorded as sent",
	RunE:  runLedgerCount,
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export the ledger to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerExport,
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget sent recipients for a scope (or all scopes with --all)",
	RunE:  runLedgerClear,
}

func init() {
	ledgerCountCmd.Flags().StringVar(&ledgerScope, "scope", "", "Limit to one campaign scope")
	ledgerClearCmd.Flags().StringVar(&ledgerScope, "scope", "", "Campaign scope to clear")
	ledgerClearCmd.Flags().BoolVar(&ledgerClearAll, "all", false, "Clear every scope")

	ledgerCmd.AddCommand(ledgerCountCmd, ledgerExportCmd, ledgerClearCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func runLedgerCount(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	if ledgerScope != "" {
		fmt.Printf("%d recipient(s) recorded in scope %s\n",
			application.Ledger().Count(ledgerScope), ledgerScope)
		return nil
	}
	fmt.Printf("%d recipient(s) recorded across all scopes\n", application.Ledger().CountAll())
	return nil
}

func runLedgerExport(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Ledger().Export(args[0]); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Printf("Ledger exported to %s\n", args[0])
	return nil
}

func runLedgerClear(cmd *cobra.Command, args []string) error {
	if ledgerScope == "" && !ledgerClearAll {
		return fmt.Errorf("pass --scope <scope> or --all")
	}

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	if ledgerClearAll {
		if err := application.Ledger().ClearAll(); err != nil {
			return fmt.Errorf("clear failed: %w", err)
		}
		fmt.Println("Ledger cleared (all scopes)")
		return nil
	}

	if err := application.Ledger().Clear(ledgerScope); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	fmt.Printf("Ledger cleared for scope %s\n", ledgerScope)
	return nil
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ndomo/wasend/internal/phone"
)

var pingNumber string

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send a connectivity test message through the gateway",
	RunE:  runPing,
}

func init() {
	pingCmd.Flags().StringVar(&pingNumber, "to", "", "Recipient for the test message (default provider.test_number)")
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireProvider(); err != nil {
		return err
	}

	to := pingNumber
	if to == "" {
		to = cfg.Provider.TestNumber
	}
	if to == "" {
		return fmt.Errorf("pass --to or set provider.test_number in the config")
	}
	normalized, err := phone.Normalize(to)
	if err != nil {
		return fmt.Errorf("invalid test number: %w", err)
	}

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := application.Client().Ping(ctx, phone.ForProvider(normalized)); err != nil {
		return fmt.Errorf("gateway check failed: %w", err)
	}
	fmt.Println("Gateway connection OK")
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ndomo/wasend/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control API server",
	Long: `Serve the control API (status, sessions, pause/resume/cancel,
Prometheus metrics) without starting a campaign.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.API.Enabled = true

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Close()

	return application.Serve(context.Background())
}

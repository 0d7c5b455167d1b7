package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ndomo/wasend/internal/app"
	"github.com/ndomo/wasend/internal/pacing"
)

var pacingCmd = &cobra.Command{
	Use:   "pacing",
	Short: "Pacing policy commands",
}

var pacingStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current limits, usage and risk",
	RunE:  runPacingStatus,
}

var pacingRecommendCmd = &cobra.Command{
	Use:   "recommend <total>",
	Short: "Analyze a planned campaign of the given size",
	Args:  cobra.ExactArgs(1),
	RunE:  runPacingRecommend,
}

var pacingInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a pacing override file with the current settings",
	RunE:  runPacingInit,
}

func init() {
	pacingCmd.AddCommand(pacingStatusCmd, pacingRecommendCmd, pacingInitCmd)
	rootCmd.AddCommand(pacingCmd)
}

func runPacingStatus(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	policy := application.Policy()
	cfg := policy.Config()
	usage := policy.Usage()
	risk, factors := policy.Risk()
	decision := policy.CanSend()

	fmt.Printf("Pattern:        %s\n", cfg.BehaviorPattern)
	fmt.Printf("Delays:         %s - %s\n", cfg.MinDelay, cfg.MaxDelay)
	fmt.Printf("Today:          %s\n", formatUsage(usage.SentToday, usage.DailyLimit))
	fmt.Printf("This hour:      %s\n", formatUsage(usage.SentThisHour, usage.HourlyLimit))
	if cfg.RespectWorkingHours {
		fmt.Printf("Working hours:  %02d:00 - %02d:00\n", cfg.WorkingHoursStart, cfg.WorkingHoursEnd)
	}
	fmt.Printf("Weekends:       restricted=%t\n", cfg.WeekendRestricted)
	fmt.Printf("Risk:           %s\n", risk)
	if len(factors) > 0 {
		fmt.Printf("Risk factors:   %s\n", strings.Join(factors, ", "))
	}
	if decision.Allowed {
		fmt.Println("Sending:        allowed now")
	} else {
		fmt.Printf("Sending:        blocked (%s), retry in %s\n",
			decision.Reason, decision.RetryAfter.Round(time.Second))
	}
	if cfg.ExpertMode {
		fmt.Println("Expert mode:    ON, all limits bypassed")
	}
	return nil
}

func runPacingRecommend(cmd *cobra.Command, args []string) error {
	var total int
	if _, err := fmt.Sscanf(args[0], "%d", &total); err != nil || total < 1 {
		return fmt.Errorf("total must be a positive number, got %q", args[0])
	}

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	rec := application.Policy().Recommend(total)

	fmt.Printf("Planned messages:  %d\n", rec.TotalMessages)
	fmt.Printf("Risk level:        %s\n", rec.RiskLevel)
	fmt.Printf("Estimated runtime: %s\n", rec.EstimatedDuration.Round(time.Second))
	fmt.Printf("Suggested batch:   %d\n", rec.RecommendedBatch)
	fmt.Printf("Optimal start:     %s\n", rec.OptimalStart)
	if rec.DistributeOverDays {
		fmt.Println("Consider splitting this campaign over several days.")
	}
	for _, s := range rec.Suggestions {
		fmt.Printf("Hint: %s\n", s)
	}
	return nil
}

func runPacingInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	path := filepath.Join(cfg.Storage.DataDir, app.PacingFile)
	if err := pacing.SaveConfig(path, cfg.Pacing); err != nil {
		return fmt.Errorf("failed to write pacing override: %w", err)
	}
	fmt.Printf("Pacing override written to %s\n", path)
	return nil
}

func formatUsage(sent, limit int) string {
	if limit <= 0 {
		return fmt.Sprintf("%d sent (unlimited)", sent)
	}
	return fmt.Sprintf("%d / %d", sent, limit)
}

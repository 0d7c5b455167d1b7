package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ndomo/wasend/internal/app"
	"github.com/ndomo/wasend/internal/bulk"
	"github.com/ndomo/wasend/internal/config"
	"github.com/ndomo/wasend/internal/ledger"
	"github.com/ndomo/wasend/internal/session"
)

var (
	runMessage    string
	runAttachment string
	runScope      string
	runResume     string
	runExpert     bool
	runPool       int
	runRate       float64
	runDryRun     bool
)

var runCmd = &cobra.Command{
	Use:   "run <task-file>",
	Short: "Run a campaign from a task file",
	Long: `Run a campaign from a CSV (phone[,message[,attachment]]) or a plain
list of phone numbers. Recipients already recorded in the dedup ledger for
the campaign scope are skipped. Ctrl+C cancels gracefully; a second Ctrl+C
aborts.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runMessage, "message", "m", "", "Message body for rows without one")
	runCmd.Flags().StringVarP(&runAttachment, "attachment", "a", "", "Attachment path for rows without one")
	runCmd.Flags().StringVar(&runScope, "scope", "", "Dedup scope (default: derived from the task file content)")
	runCmd.Flags().StringVar(&runResume, "resume", "", "Resume a checkpointed session by id")
	runCmd.Flags().BoolVar(&runExpert, "expert", false, "Bypass all pacing limits (dangerous)")
	runCmd.Flags().IntVar(&runPool, "pool", 0, "Concurrent workers (2-3, requires --expert)")
	runCmd.Flags().Float64Var(&runRate, "rate", 1, "Messages per second cap in pool mode")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Plan the campaign without sending")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	taskFile := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireProvider(); err != nil {
		return err
	}
	if runExpert {
		cfg.Pacing.ExpertMode = true
	}

	tasks, err := bulk.LoadTasks(taskFile, runMessage, runAttachment)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("task file %s contains no recipients", taskFile)
	}
	for _, t := range tasks {
		if t.Body == "" {
			return fmt.Errorf("no message for %s (set one with -m or a CSV column)", t.Identifier)
		}
	}

	scope := runScope
	if scope == "" {
		hash, err := ledger.SourceHash(taskFile)
		if err != nil {
			return fmt.Errorf("failed to derive campaign scope: %w", err)
		}
		scope = "src-" + hash[:12]
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Close()

	if runDryRun {
		return printPlan(application, cfg, tasks, scope)
	}

	runner := application.Runner()
	runner.OnProgress = func(st session.Stats) {
		fmt.Printf("[%d/%d] sent=%d failed=%d (%.1f%%)\n",
			st.Completed, st.Total, st.Successful, st.Failed, st.Progress)
	}
	runner.OnStatus = func(stage string) {
		fmt.Printf("-- %s\n", stage)
	}

	sess, err := application.RunCampaign(context.Background(), tasks, bulk.Options{
		Scope:             scope,
		ResumeID:          runResume,
		PoolWorkers:       runPool,
		MessagesPerSecond: runRate,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(summaryOf(sess))
	if sess.Cancelled {
		fmt.Printf("Resume with: wasend run %s --resume %s\n", taskFile, sess.ID)
	}
	return nil
}

func printPlan(application *app.App, cfg *config.Config, tasks []bulk.Task, scope string) error {
	rec := application.Policy().Recommend(len(tasks))

	fmt.Printf("Campaign plan (scope %s)\n", scope)
	fmt.Printf("  Recipients:        %d\n", rec.TotalMessages)
	fmt.Printf("  Already sent:      %d\n", application.Ledger().Count(scope))
	fmt.Printf("  Risk level:        %s\n", rec.RiskLevel)
	if len(rec.RiskFactors) > 0 {
		fmt.Printf("  Risk factors:      %s\n", strings.Join(rec.RiskFactors, ", "))
	}
	fmt.Printf("  Estimated runtime: %s\n", rec.EstimatedDuration.Round(time.Second))
	fmt.Printf("  Suggested batch:   %d\n", rec.RecommendedBatch)
	fmt.Printf("  Optimal start:     %s\n", rec.OptimalStart)
	if rec.DistributeOverDays {
		fmt.Println("  Consider splitting this campaign over several days.")
	}
	for _, s := range rec.Suggestions {
		fmt.Printf("  Hint: %s\n", s)
	}
	return nil
}

func summaryOf(sess *session.Session) string {
	state := "completed"
	if sess.Cancelled {
		state = "cancelled"
	}
	return fmt.Sprintf("Campaign %s %s: %d/%d delivered, %d failed",
		sess.ID, state, sess.Successful, sess.TotalMessages, sess.Failed)
}

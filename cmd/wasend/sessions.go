package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCleanupMaxAge time.Duration

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Campaign session commands",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored campaign sessions",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session_id>",
	Short: "Show session details",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old session files",
	RunE:  runSessionsCleanup,
}

func init() {
	sessionsCleanupCmd.Flags().DurationVar(&sessionsCleanupMaxAge, "max-age", 30*24*time.Hour, "Delete sessions older than this")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsCleanupCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	summaries, err := application.Sessions().ListAll()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Println("No sessions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTARTED\tTOTAL\tSENT\tFAILED\tSTATE")
	for _, s := range summaries {
		state := "interrupted"
		switch {
		case s.Cancelled:
			state = "cancelled"
		case s.Completed >= s.TotalMessages:
			state = "completed"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			s.ID,
			time.Unix(s.StartTime, 0).Format("2006-01-02 15:04"),
			s.TotalMessages,
			s.Successful,
			s.Failed,
			state,
		)
	}
	return w.Flush()
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	sess, err := application.Sessions().Load(args[0])
	if err != nil {
		return err
	}
	st := sess.ComputeStats(time.Now())

	fmt.Printf("Session:   %s\n", sess.ID)
	fmt.Printf("Started:   %s\n", time.Unix(sess.StartTime, 0).Format(time.RFC1123))
	fmt.Printf("Progress:  %d/%d (%.1f%%)\n", sess.Completed, sess.TotalMessages, st.Progress)
	fmt.Printf("Sent:      %d\n", sess.Successful)
	fmt.Printf("Failed:    %d\n", sess.Failed)
	fmt.Printf("Batch:     %d\n", sess.CurrentBatch)
	fmt.Printf("Cancelled: %t\n", sess.Cancelled)
	if len(st.TopErrors) > 0 {
		fmt.Println("Top errors:")
		for msg, count := range st.TopErrors {
			fmt.Printf("  %dx %s\n", count, msg)
		}
	}
	return nil
}

func runSessionsCleanup(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	n, err := application.Sessions().CleanupOlderThan(sessionsCleanupMaxAge)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Printf("Deleted %d session(s) older than %s\n", n, sessionsCleanupMaxAge)
	return nil
}

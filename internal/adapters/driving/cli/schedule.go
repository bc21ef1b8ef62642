package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run background jobs",
	Long: `Run the scheduled jobs until interrupted:

  process-queue       ingest pending documents (scheduler.queue_schedule)
  cleanup-temp-files  remove stale temporary downloads (scheduler.cleanup_schedule)`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run a scheduled task once",
	Long: fmt.Sprintf(`Run one task immediately and record its result.

Tasks: %s, %s`, domain.TaskIDProcessQueue, domain.TaskIDCleanupTempFiles),
	Args: cobra.ExactArgs(1),
	RunE: runScheduleNow,
}

func init() {
	scheduleCmd.AddCommand(scheduleRunCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	scheduler, err := schedulerService()
	if err != nil {
		return err
	}

	cmd.Println("Scheduler running. Press Ctrl+C to stop.")
	if err := scheduler.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler stopped: %w", err)
	}
	return nil
}

func runScheduleNow(cmd *cobra.Command, args []string) error {
	scheduler, err := schedulerService()
	if err != nil {
		return err
	}

	if err := scheduler.RunNow(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("task %s failed: %w", args[0], err)
	}
	cmd.Printf("Task %s completed\n", args[0])
	return nil
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/romiluz13/memory-engineering/pkg/guard"
	"github.com/romiluz13/memory-engineering/pkg/store"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Track task executions and catch call loops",
}

var taskRecordCmd = &cobra.Command{
	Use:   "record <name>",
	Short: "Record one call against a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRecord,
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <name>",
	Short: "Mark a task complete",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDone,
}

var taskFailCmd = &cobra.Command{
	Use:   "fail <name>",
	Short: "Mark a task failed",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskFail,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show a task's execution state",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStatus,
}

var taskStep string

func init() {
	taskDoneCmd.Flags().StringVar(&taskStep, "step", "", "completed step to record")
	taskFailCmd.Flags().StringVar(&taskStep, "step", "", "completed step to record")
	taskCmd.AddCommand(taskRecordCmd, taskDoneCmd, taskFailCmd, taskStatusCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskRecord(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	tracker := guard.NewTracker(e.store, e.logger())
	obs, err := tracker.Record(cmd.Context(), projectID, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Execution %s, call %d\n", obs.State.ExecutionID, obs.State.CallCount)
	if obs.Repeated {
		fmt.Printf("Warning: called %d times in the last %s. Check the task status before retrying.\n",
			obs.State.CallCount, guard.RepeatWindow)
	}
	return nil
}

func runTaskDone(cmd *cobra.Command, args []string) error {
	return advanceTask(cmd, args[0], store.StatusComplete)
}

func runTaskFail(cmd *cobra.Command, args []string) error {
	return advanceTask(cmd, args[0], store.StatusFailed)
}

func advanceTask(cmd *cobra.Command, taskName, status string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	tracker := guard.NewTracker(e.store, e.logger())
	state, err := tracker.Advance(cmd.Context(), projectID, taskName, status, taskStep)
	if err != nil {
		return err
	}
	fmt.Printf("Task %s is now %s\n", taskName, state.Status)
	return nil
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	tracker := guard.NewTracker(e.store, e.logger())
	state, err := tracker.Status(cmd.Context(), projectID, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Task: %s\n", state.TaskName)
	fmt.Printf("Execution: %s\n", state.ExecutionID)
	fmt.Printf("Status: %s\n", state.Status)
	fmt.Printf("Calls: %d (last %s)\n", state.CallCount, state.LastCalled.Format("2006-01-02 15:04:05"))
	if len(state.CompletedSteps) > 0 {
		fmt.Printf("Completed steps:\n  %s\n", strings.Join(state.CompletedSteps, "\n  "))
	}
	return nil
}

package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ferrule/maestro/internal/orchestrator"
	"github.com/ferrule/maestro/pkg/models"
)

var (
	runPriority string
	runContext  []string
	runDetach   bool
)

var runCmd = &cobra.Command{
	Use:   "run <task description>",
	Short: "Submit a task and follow it to completion",
	Long: `Submit a free-text task to the orchestration engine.

By default the command follows the task's state changes and exits when
it reaches a terminal status. With --detach it prints the task ID and
returns; the task pauses at its next checkpoint and can be continued
with 'maestro resume <id>'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runPriority, "priority", "p", "normal", "Task priority (low, normal, high)")
	runCmd.Flags().StringArrayVarP(&runContext, "context", "c", nil, "Context entry as key=value (repeatable)")
	runCmd.Flags().BoolVarP(&runDetach, "detach", "d", false, "Submit and return without waiting")
}

func runRun(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")

	taskContext, err := parseContext(runContext)
	if err != nil {
		return err
	}

	b, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer b.close()

	taskID, err := b.orch.Submit(description, taskContext, models.Priority(runPriority))
	if err != nil {
		return err
	}
	fmt.Printf("Submitted task %s\n", color.CyanString(taskID))

	if runDetach {
		// The deferred close pauses the task at its next checkpoint, so
		// the record stays resumable instead of stranded as running.
		fmt.Printf("Detaching; resume with 'maestro resume %s'\n", taskID)
		return nil
	}

	for event := range b.orch.Events() {
		if event.TaskID != taskID {
			continue
		}
		switch event.Type {
		case orchestrator.EventPlanned:
			fmt.Printf("%s planned: %s\n", color.YellowString("•"), event.Message)
		case orchestrator.EventRunning:
			fmt.Printf("%s running\n", color.YellowString("•"))
		case orchestrator.EventCompleted:
			fmt.Printf("%s %s\n", color.GreenString("✓"), event.Message)
			return printResult(b.orch, taskID)
		case orchestrator.EventFailed:
			fmt.Printf("%s failed: %s\n", color.RedString("✗"), event.Message)
			return printResult(b.orch, taskID)
		case orchestrator.EventPaused:
			fmt.Printf("%s paused\n", color.YellowString("•"))
			return nil
		}
	}
	return nil
}

// printResult shows the final snapshot of a finished task.
func printResult(orch *orchestrator.Orchestrator, taskID string) error {
	snap, err := orch.Status(taskID)
	if err != nil {
		return err
	}

	if snap.Status == models.TaskStatusFailed {
		fmt.Printf("\nFailed subtask: %s\nReason: %s\n", snap.FailedSubtaskID, snap.FailureReason)
		return nil
	}
	if snap.Result != nil {
		fmt.Printf("\n%s\n", snap.Result.Summary)
	}
	return nil
}

// parseContext converts key=value flags into a context map.
func parseContext(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("context entry %q is not key=value", entry)
		}
		out[key] = value
	}
	return out, nil
}

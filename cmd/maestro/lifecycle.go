package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ferrule/maestro/internal/orchestrator"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <task-id>",
	Short: "Pause a running task at the next wave boundary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := buildOrchestrator()
		if err != nil {
			return err
		}
		defer b.close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := b.orch.Pause(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("%s task %s paused\n", color.GreenString("✓"), args[0])
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <task-id>",
	Short: "Resume a paused task from its persisted step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := buildOrchestrator()
		if err != nil {
			return err
		}
		defer b.close()

		taskID := args[0]
		if err := b.orch.Resume(taskID); err != nil {
			return err
		}
		fmt.Printf("%s task %s resumed\n", color.GreenString("✓"), taskID)

		// Resuming from the CLI waits for the task to settle again, since
		// the process would otherwise exit before any work happens.
		for event := range b.orch.Events() {
			if event.TaskID != taskID {
				continue
			}
			switch event.Type {
			case orchestrator.EventCompleted:
				fmt.Printf("%s %s\n", color.GreenString("✓"), event.Message)
				return nil
			case orchestrator.EventFailed:
				fmt.Printf("%s failed: %s\n", color.RedString("✗"), event.Message)
				return nil
			case orchestrator.EventPaused:
				fmt.Printf("%s paused\n", color.YellowString("•"))
				return nil
			}
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := buildOrchestrator()
		if err != nil {
			return err
		}
		defer b.close()

		if err := b.orch.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("%s task %s deleted\n", color.GreenString("✓"), args[0])
		return nil
	},
}

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ferrule/maestro/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show a task's progress, or list all tasks",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	b, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer b.close()

	if len(args) == 0 {
		return listTasks(b)
	}
	return showTask(b, args[0])
}

// listTasks prints a one-line overview per known task, newest first.
func listTasks(b *buildContext) error {
	records, err := b.orch.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No tasks.")
		return nil
	}

	for _, rec := range records {
		desc := rec.Description
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		fmt.Printf("%s  %-10s  step %d/%d  %s\n",
			color.CyanString(rec.TaskID[:8]), statusColor(rec.Status),
			rec.CurrentStep, rec.TotalSteps, desc)
	}
	return nil
}

// showTask prints the full snapshot of one task.
func showTask(b *buildContext, taskID string) error {
	snap, err := b.orch.Status(taskID)
	if err != nil {
		return err
	}

	fmt.Printf("Task:     %s\n", snap.TaskID)
	fmt.Printf("Status:   %s\n", statusColor(snap.Status))
	if snap.Tier != "" {
		fmt.Printf("Tier:     %s\n", snap.Tier)
	}
	fmt.Printf("Progress: step %d/%d (%.0f%%)\n", snap.CurrentStep, snap.TotalSteps, snap.ProgressPercent)

	if len(snap.Subtasks) > 0 {
		fmt.Println("\nSubtasks:")
		for _, st := range snap.Subtasks {
			fmt.Println(subtaskLine(st))
		}
	}

	if snap.Status == models.TaskStatusFailed {
		fmt.Printf("\nFailed subtask: %s\nReason: %s\n", snap.FailedSubtaskID, snap.FailureReason)
	}
	if snap.Result != nil {
		fmt.Printf("\nResult: %s\n", snap.Result.Summary)
	}

	if len(snap.RecentLog) > 0 {
		fmt.Println("\nRecent log:")
		for _, entry := range snap.RecentLog {
			fmt.Printf("  %s  %s\n", entry.Timestamp.Format("15:04:05"), entry.Message)
		}
	}
	return nil
}

// subtaskLine formats one subtask row for showTask.
func subtaskLine(st *models.Subtask) string {
	line := fmt.Sprintf("  %s %s", subtaskGlyph(st.Status), st.Description)
	if st.AssignedAgent != "" {
		line += fmt.Sprintf(" [%s]", st.AssignedAgent)
	}
	if st.Error != "" {
		line += ": " + st.Error
	}
	return line
}

func statusColor(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString(string(s))
	case models.TaskStatusFailed:
		return color.RedString(string(s))
	case models.TaskStatusRunning, models.TaskStatusPlanning:
		return color.YellowString(string(s))
	case models.TaskStatusPaused:
		return color.MagentaString(string(s))
	default:
		return string(s)
	}
}

func subtaskGlyph(s models.SubtaskStatus) string {
	switch s {
	case models.SubtaskStatusCompleted:
		return color.GreenString("✓")
	case models.SubtaskStatusFailed:
		return color.RedString("✗")
	case models.SubtaskStatusSkipped:
		return color.YellowString("⊘")
	case models.SubtaskStatusRunning:
		return color.CyanString("▸")
	default:
		return "·"
	}
}

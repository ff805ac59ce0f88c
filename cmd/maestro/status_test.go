package main

import (
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/ferrule/maestro/pkg/models"
)

func TestSubtaskLineFormatting(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name string
		st   *models.Subtask
		want string
	}{
		{
			name: "completed with agent",
			st: &models.Subtask{
				Description:   "analyze the dataset",
				AssignedAgent: "researcher",
				Status:        models.SubtaskStatusCompleted,
			},
			want: "  ✓ analyze the dataset [researcher]",
		},
		{
			name: "failed with error",
			st: &models.Subtask{
				Description:   "create the report",
				AssignedAgent: "writer",
				Status:        models.SubtaskStatusFailed,
				Error:         "provider unavailable",
			},
			want: "  ✗ create the report [writer]: provider unavailable",
		},
		{
			name: "pending without agent",
			st: &models.Subtask{
				Description: "synthesize results",
				Status:      models.SubtaskStatusPending,
			},
			want: "  · synthesize results",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := subtaskLine(tt.st)
			if got != tt.want {
				t.Errorf("subtaskLine() = %q, want %q", got, tt.want)
			}
			if strings.Contains(got, "\u2014") {
				t.Errorf("subtaskLine() = %q, contains an em dash", got)
			}
		})
	}
}

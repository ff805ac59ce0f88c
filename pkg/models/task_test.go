package models

import "testing"

func TestTaskStatusValid(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusPending, true},
		{TaskStatusPlanning, true},
		{TaskStatusRunning, true},
		{TaskStatusPaused, true},
		{TaskStatusCompleted, true},
		{TaskStatusFailed, true},
		{TaskStatus("unknown"), false},
		{TaskStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("Valid(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	terminal := []TaskStatus{TaskStatusCompleted, TaskStatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	nonTerminal := []TaskStatus{TaskStatusPending, TaskStatusPlanning, TaskStatusRunning, TaskStatusPaused}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{"pending to planning", TaskStatusPending, TaskStatusPlanning, true},
		{"pending to failed", TaskStatusPending, TaskStatusFailed, true},
		{"pending to completed", TaskStatusPending, TaskStatusCompleted, false},
		{"planning to running", TaskStatusPlanning, TaskStatusRunning, true},
		{"planning to paused", TaskStatusPlanning, TaskStatusPaused, false},
		{"running to paused", TaskStatusRunning, TaskStatusPaused, true},
		{"running to completed", TaskStatusRunning, TaskStatusCompleted, true},
		{"running to failed", TaskStatusRunning, TaskStatusFailed, true},
		{"paused to running", TaskStatusPaused, TaskStatusRunning, true},
		{"paused to completed", TaskStatusPaused, TaskStatusCompleted, false},
		{"completed is immutable", TaskStatusCompleted, TaskStatusRunning, false},
		{"failed is immutable", TaskStatusFailed, TaskStatusPending, false},
		{"no backward to pending", TaskStatusRunning, TaskStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestPriorityValid(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityNormal, PriorityHigh} {
		if !p.Valid() {
			t.Errorf("expected %s to be valid", p)
		}
	}
	if Priority("urgent").Valid() {
		t.Error("expected unknown priority to be invalid")
	}
}

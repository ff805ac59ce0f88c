package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been accepted but not planned.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusPlanning indicates the task is being classified and decomposed.
	TaskStatusPlanning TaskStatus = "planning"
	// TaskStatusRunning indicates subtasks are executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusPaused indicates execution is halted at a wave boundary.
	TaskStatusPaused TaskStatus = "paused"
	// TaskStatusCompleted indicates the task finished with a synthesized result.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task terminated without a usable result.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusPlanning, TaskStatusRunning,
		TaskStatusPaused, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is immutable once set.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransitionTo reports whether a task may move from s to next.
// Transitions are forward-only except running <-> paused.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case TaskStatusPending:
		return next == TaskStatusPlanning || next == TaskStatusFailed
	case TaskStatusPlanning:
		return next == TaskStatusRunning || next == TaskStatusFailed
	case TaskStatusRunning:
		return next == TaskStatusPaused || next == TaskStatusCompleted || next == TaskStatusFailed
	case TaskStatusPaused:
		return next == TaskStatusRunning || next == TaskStatusFailed
	default:
		return false
	}
}

// Priority is the ordinal scheduling priority of a task.
type Priority string

const (
	// PriorityLow is below-normal priority.
	PriorityLow Priority = "low"
	// PriorityNormal is the default priority.
	PriorityNormal Priority = "normal"
	// PriorityHigh is above-normal priority.
	PriorityHigh Priority = "high"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	default:
		return false
	}
}

// Task represents one end-to-end unit of orchestrated work.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description is the free-text request submitted by the caller.
	Description string `json:"description"`
	// Context is an opaque key/value bag supplied by the caller.
	Context map[string]string `json:"context,omitempty"`
	// Priority is the scheduling priority.
	Priority Priority `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Tier is the complexity tier assigned during classification.
	Tier Tier `json:"tier,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

package models

import "encoding/json"

// SubtaskStatus represents the current state of a subtask.
type SubtaskStatus string

const (
	// SubtaskStatusPending indicates unmet dependencies remain.
	SubtaskStatusPending SubtaskStatus = "pending"
	// SubtaskStatusReady indicates every dependency has completed.
	SubtaskStatusReady SubtaskStatus = "ready"
	// SubtaskStatusRunning indicates the assigned agent is executing.
	SubtaskStatusRunning SubtaskStatus = "running"
	// SubtaskStatusCompleted indicates execution succeeded.
	SubtaskStatusCompleted SubtaskStatus = "completed"
	// SubtaskStatusFailed indicates execution failed after retries.
	SubtaskStatusFailed SubtaskStatus = "failed"
	// SubtaskStatusSkipped indicates a dependency failed so this never ran.
	SubtaskStatusSkipped SubtaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s SubtaskStatus) Valid() bool {
	switch s {
	case SubtaskStatusPending, SubtaskStatusReady, SubtaskStatusRunning,
		SubtaskStatusCompleted, SubtaskStatusFailed, SubtaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if the subtask will not change state again.
func (s SubtaskStatus) Terminal() bool {
	return s == SubtaskStatusCompleted || s == SubtaskStatusFailed || s == SubtaskStatusSkipped
}

// Subtask represents one decomposed, independently executable piece of a Task.
type Subtask struct {
	// ID is the unique identifier for this subtask.
	ID string `json:"id"`
	// ParentTaskID is the task this subtask was decomposed from.
	ParentTaskID string `json:"parent_task_id"`
	// Description is the work this subtask performs.
	Description string `json:"description"`
	// RequiredCapabilities lists capability names needed to execute.
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	// DependsOn lists subtask IDs that must complete before this one runs.
	DependsOn []string `json:"depends_on,omitempty"`
	// AssignedAgent is the agent selected during assignment, empty until then.
	AssignedAgent string `json:"assigned_agent,omitempty"`
	// Status is the current state of the subtask.
	Status SubtaskStatus `json:"status"`
	// Result is the opaque payload produced on completion.
	Result json.RawMessage `json:"result,omitempty"`
	// Error holds the failure message if the subtask failed.
	Error string `json:"error,omitempty"`
	// Attempts is the number of execution attempts made.
	Attempts int `json:"attempts,omitempty"`
	// Synthesis marks the fan-in subtask appended to multi-subtask plans.
	Synthesis bool `json:"synthesis,omitempty"`
}

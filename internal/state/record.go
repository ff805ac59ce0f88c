package state

import (
	"time"

	"github.com/ferrule/maestro/pkg/models"
)

// TaskRecord is the durable execution state of one task. The record is the
// single source of truth: the orchestrator keeps nothing in memory that is
// not reconstructable from it, which is what makes pause/resume survive a
// process restart.
type TaskRecord struct {
	TaskID      string            `json:"task_id"`
	Description string            `json:"description"`
	Context     map[string]string `json:"context,omitempty"`
	Priority    models.Priority   `json:"priority"`
	Status      models.TaskStatus `json:"status"`
	Tier        models.Tier       `json:"tier,omitempty"`

	// Subtasks is the decomposed plan, including per-subtask status,
	// assignment, and result payloads.
	Subtasks []*models.Subtask `json:"subtasks,omitempty"`
	// CompletedSubtaskIDs records completion order.
	CompletedSubtaskIDs []string `json:"completed_subtask_ids,omitempty"`

	// PauseRequested asks the executing worker to pause at its next wave
	// boundary. Set when pause is requested by a process that does not
	// hold the task's lease; cleared when the pause takes effect or the
	// task resumes.
	PauseRequested bool `json:"pause_requested,omitempty"`

	// CurrentStep counts finished waves; TotalSteps is the wave count of
	// the plan. CurrentStep never decreases.
	CurrentStep int `json:"current_step"`
	TotalSteps  int `json:"total_steps"`

	// Result is set when the task completes.
	Result *models.FinalResult `json:"result,omitempty"`
	// FailedSubtaskID and FailureReason identify the failure for callers
	// when Status is failed.
	FailedSubtaskID string `json:"failed_subtask_id,omitempty"`
	FailureReason   string `json:"failure_reason,omitempty"`

	// Log is the ordered execution log.
	Log []models.LogEntry `json:"log,omitempty"`

	// ExecutionSeconds accumulates wall-clock execution time across runs.
	ExecutionSeconds float64 `json:"execution_seconds,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subtask returns the subtask with the given ID, or nil.
func (r *TaskRecord) Subtask(id string) *models.Subtask {
	for _, st := range r.Subtasks {
		if st.ID == id {
			return st
		}
	}
	return nil
}

// MarkSubtaskCompleted appends to the ordered completion set, ignoring
// duplicates (a resumed run may replay a checkpoint).
func (r *TaskRecord) MarkSubtaskCompleted(id string) {
	for _, done := range r.CompletedSubtaskIDs {
		if done == id {
			return
		}
	}
	r.CompletedSubtaskIDs = append(r.CompletedSubtaskIDs, id)
}

// AppendLog adds a timestamped entry to the execution log.
func (r *TaskRecord) AppendLog(message string) {
	r.Log = append(r.Log, models.LogEntry{Timestamp: time.Now().UTC(), Message: message})
}

// Progress returns completion as a percentage of waves finished.
func (r *TaskRecord) Progress() float64 {
	if r.TotalSteps <= 0 {
		if r.Status == models.TaskStatusCompleted {
			return 100.0
		}
		return 0.0
	}
	pct := float64(r.CurrentStep) / float64(r.TotalSteps) * 100.0
	if pct > 100.0 {
		pct = 100.0
	}
	return pct
}

// RecentLog returns up to n of the newest log entries, oldest first.
func (r *TaskRecord) RecentLog(n int) []models.LogEntry {
	if n <= 0 || len(r.Log) <= n {
		return r.Log
	}
	return r.Log[len(r.Log)-n:]
}

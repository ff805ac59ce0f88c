package models

import (
	"encoding/json"
	"time"
)

// FinalResult is the synthesized output of a completed task.
type FinalResult struct {
	// Summary is the natural-language synthesis of all subtask results.
	Summary string `json:"summary"`
	// Results maps subtask ID to its raw result payload.
	Results map[string]json.RawMessage `json:"results"`
	// Degraded is true when the deterministic fallback produced the summary.
	Degraded bool `json:"degraded,omitempty"`
}

// LogEntry is one timestamped line in a task's execution log.
type LogEntry struct {
	// Timestamp is when the entry was recorded.
	Timestamp time.Time `json:"timestamp"`
	// Message is the log text.
	Message string `json:"message"`
}

// Package synth combines subtask results into one final structured result.
// Synthesis is total: a task that reached this stage always gets a result,
// falling back to a deterministic merge when the completion service cannot
// produce a summary.
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ferrule/maestro/internal/llm"
	"github.com/ferrule/maestro/pkg/models"
)

// FallbackSummary is the summary used when the completion service fails or
// returns unusable output.
const FallbackSummary = "completed with partial synthesis"

// Synthesizer produces the final result of a task.
type Synthesizer struct {
	completer llm.Completer
}

// New creates a Synthesizer. A nil completer always produces the
// deterministic fallback.
func New(completer llm.Completer) *Synthesizer {
	return &Synthesizer{completer: completer}
}

// Synthesize merges all non-skipped subtask results keyed by subtask ID and
// attaches a best-effort natural-language summary. The Degraded flag marks
// results whose summary came from the fallback.
func (s *Synthesizer) Synthesize(ctx context.Context, description string, subtasks []*models.Subtask) *models.FinalResult {
	results := make(map[string]json.RawMessage)
	for _, st := range subtasks {
		if st.Status == models.SubtaskStatusSkipped || st.Result == nil {
			continue
		}
		results[st.ID] = st.Result
	}

	final := &models.FinalResult{Results: results}

	summary, err := s.summarize(ctx, description, subtasks)
	if err != nil {
		final.Summary = FallbackSummary
		final.Degraded = true
		return final
	}
	final.Summary = summary
	return final
}

// summarize asks the completion service for a short summary of the results.
func (s *Synthesizer) summarize(ctx context.Context, description string, subtasks []*models.Subtask) (string, error) {
	if s.completer == nil {
		return "", fmt.Errorf("no completion service configured")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the outcome of this task in a short paragraph.\n\nTask: %s\n\nSubtask results:\n", description)
	for _, st := range subtasks {
		if st.Status == models.SubtaskStatusSkipped || st.Result == nil {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", st.Description, string(st.Result))
	}
	b.WriteString("\nReply with the summary text only.")

	summary, err := s.completer.Complete(ctx, b.String())
	if err != nil {
		return "", err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("empty summary from completion service")
	}
	return summary, nil
}

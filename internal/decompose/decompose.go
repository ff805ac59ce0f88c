// Package decompose splits a classified task into an ordered set of
// subtasks. Decomposition is a deterministic function of the tier and the
// capability hints: the same inputs always yield the same subtask shape, so
// execution plans are reproducible in tests.
package decompose

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ferrule/maestro/pkg/models"
)

// subtaskTemplates maps a capability hint to the description template for
// its subtask. %s is the original task description.
var subtaskTemplates = map[string]string{
	"search":  "Gather information needed for: %s",
	"analyze": "Analyze the gathered material for: %s",
	"compute": "Perform the calculations required by: %s",
	"create":  "Produce the deliverable requested by: %s",
}

// genericTemplate is used for capability hints without a dedicated template.
const genericTemplate = "Apply the %q capability to: %s"

// synthesisCapability is the capability of the fan-in subtask appended to
// every multi-subtask plan.
const synthesisCapability = "synthesize"

// Decompose produces the subtasks for a task given its classification.
//
// Simple tier yields a single subtask equal to the task. Higher tiers yield
// one subtask per distinct capability hint plus a final synthesis subtask
// depending on all of them, so every fan-out terminates in a single fan-in.
// A non-simple tier with no usable hints degrades to the simple shape: a
// task always has at least one subtask.
func Decompose(task *models.Task, tier models.Tier, capabilityHints []string) []*models.Subtask {
	hints := dedupe(capabilityHints)

	if tier == models.TierSimple || len(hints) == 0 {
		return []*models.Subtask{singleSubtask(task, hints)}
	}

	// The synthesis step is appended structurally; a synthesize hint would
	// duplicate it.
	var workHints []string
	for _, h := range hints {
		if h != synthesisCapability {
			workHints = append(workHints, h)
		}
	}
	if len(workHints) == 0 {
		return []*models.Subtask{singleSubtask(task, hints)}
	}

	subtasks := make([]*models.Subtask, 0, len(workHints)+1)
	for _, hint := range workHints {
		subtasks = append(subtasks, &models.Subtask{
			ID:                   uuid.New().String(),
			ParentTaskID:         task.ID,
			Description:          describe(hint, task.Description),
			RequiredCapabilities: []string{hint},
			Status:               models.SubtaskStatusPending,
		})
	}

	if len(subtasks) == 1 {
		// A single work subtask needs no fan-in.
		return subtasks
	}

	deps := make([]string, len(subtasks))
	for i, st := range subtasks {
		deps[i] = st.ID
	}
	subtasks = append(subtasks, &models.Subtask{
		ID:                   uuid.New().String(),
		ParentTaskID:         task.ID,
		Description:          fmt.Sprintf("Synthesize all results into a final answer for: %s", task.Description),
		RequiredCapabilities: []string{synthesisCapability},
		DependsOn:            deps,
		Status:               models.SubtaskStatusPending,
		Synthesis:            true,
	})

	return subtasks
}

// singleSubtask builds the one-subtask plan used for simple tiers and
// degraded decompositions.
func singleSubtask(task *models.Task, hints []string) *models.Subtask {
	caps := hints
	if len(caps) == 0 {
		caps = nil
	}
	return &models.Subtask{
		ID:                   uuid.New().String(),
		ParentTaskID:         task.ID,
		Description:          task.Description,
		RequiredCapabilities: caps,
		Status:               models.SubtaskStatusPending,
	}
}

// describe renders the subtask description for a capability hint.
func describe(hint, taskDescription string) string {
	if tmpl, ok := subtaskTemplates[hint]; ok {
		return fmt.Sprintf(tmpl, taskDescription)
	}
	return fmt.Sprintf(genericTemplate, hint, taskDescription)
}

// dedupe lowercases hints and removes empties and duplicates, preserving
// first-mention order.
func dedupe(hints []string) []string {
	seen := make(map[string]bool, len(hints))
	var out []string
	for _, h := range hints {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

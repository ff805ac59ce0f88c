package assign

import (
	"fmt"

	"github.com/ferrule/maestro/pkg/models"
)

// Result is the outcome of assigning one execution plan.
type Result struct {
	// Assignments maps subtask ID to the selected agent ID.
	Assignments map[string]string
	// Degraded lists log-worthy assignments where no agent covered a
	// required capability and the coordinator absorbed the subtask.
	Degraded []string
}

// Assign selects an agent for every subtask. The agent whose specialties
// intersect the subtask's required capabilities with the largest
// intersection wins; ties break by lexical agent ID order. Subtasks no
// agent covers fall back to the coordinator so assignment is total: quality
// degrades, the operation never hard-fails.
func Assign(subtasks []*models.Subtask, agents []*models.Agent) (Result, error) {
	if len(agents) == 0 {
		return Result{}, fmt.Errorf("assign: empty agent roster")
	}

	res := Result{Assignments: make(map[string]string, len(subtasks))}
	coordinator := coordinatorOf(agents)

	for _, st := range subtasks {
		best, overlap := bestAgent(st, agents)
		if overlap == 0 {
			res.Assignments[st.ID] = coordinator.ID
			res.Degraded = append(res.Degraded,
				fmt.Sprintf("no agent covers %v for subtask %s; assigned to %s", st.RequiredCapabilities, st.ID, coordinator.ID))
			continue
		}
		res.Assignments[st.ID] = best.ID
	}

	return res, nil
}

// bestAgent returns the agent with the largest specialty overlap and the
// overlap size. Agents are scanned in input order; callers pass a slice
// sorted by ID so the lexically-first agent wins ties.
func bestAgent(st *models.Subtask, agents []*models.Agent) (*models.Agent, int) {
	var best *models.Agent
	bestOverlap := 0

	for _, a := range agents {
		overlap := 0
		for _, cap := range st.RequiredCapabilities {
			if a.CanHandle(cap) {
				overlap++
			}
		}
		if overlap > bestOverlap {
			best = a
			bestOverlap = overlap
		}
	}
	return best, bestOverlap
}

// coordinatorOf picks the fallback agent from a sorted slice.
func coordinatorOf(agents []*models.Agent) *models.Agent {
	for _, a := range agents {
		if a.Role == models.RoleCoordinator {
			return a
		}
	}
	return agents[0]
}

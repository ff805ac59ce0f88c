package decompose

import (
	"fmt"
	"strings"

	"github.com/ferrule/maestro/pkg/models"
)

// ValidateNoCycles checks that there are no circular dependencies among
// subtasks. The decomposer only produces fan-in edges, but the execution
// engine re-validates rather than trusting that invariant blindly.
func ValidateNoCycles(subtasks []*models.Subtask) error {
	byID := make(map[string]*models.Subtask, len(subtasks))
	for _, st := range subtasks {
		byID[st.ID] = st
	}

	state := make(map[string]int) // 0=unvisited, 1=visiting, 2=visited

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		if state[id] == 2 {
			return nil
		}
		if state[id] == 1 {
			cycleStart := 0
			for i, p := range path {
				if p == id {
					cycleStart = i
					break
				}
			}
			cycle := append(path[cycleStart:], id)
			return fmt.Errorf("circular dependency detected: %s", strings.Join(cycle, " -> "))
		}

		state[id] = 1
		if st := byID[id]; st != nil {
			for _, depID := range st.DependsOn {
				if err := visit(depID, append(path, id)); err != nil {
					return err
				}
			}
		}
		state[id] = 2
		return nil
	}

	for _, st := range subtasks {
		if state[st.ID] == 0 {
			if err := visit(st.ID, nil); err != nil {
				return err
			}
		}
	}

	return nil
}

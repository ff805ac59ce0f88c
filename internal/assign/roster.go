// Package assign maps subtasks to agents. Agents are data: a roster of
// specialty declarations, not code branches keyed on agent names.
package assign

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ferrule/maestro/pkg/models"
)

// rosterFile is the YAML structure of a roster file.
type rosterFile struct {
	Agents []rosterAgent `yaml:"agents"`
}

type rosterAgent struct {
	ID          string   `yaml:"id"`
	Specialties []string `yaml:"specialties"`
	Role        string   `yaml:"role"`
}

// Roster is a read-mostly set of agents. Executions take an immutable
// snapshot so roster reloads never race a running assignment.
type Roster struct {
	mu     sync.RWMutex
	agents []*models.Agent
}

// DefaultRoster returns the built-in roster: one specialist per default
// capability plus a coordinator that absorbs uncovered work.
func DefaultRoster() *Roster {
	return &Roster{agents: []*models.Agent{
		{ID: "coordinator", Specialties: []string{"search", "analyze", "compute", "create", "synthesize"}, Role: models.RoleCoordinator},
		{ID: "researcher", Specialties: []string{"search", "analyze"}, Role: models.RoleSpecialist},
		{ID: "builder", Specialties: []string{"create", "compute"}, Role: models.RoleSpecialist},
		{ID: "writer", Specialties: []string{"synthesize"}, Role: models.RoleSynthesizer},
	}}
}

// LoadRoster reads a roster from a YAML file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}

	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse roster file: %w", err)
	}
	if len(rf.Agents) == 0 {
		return nil, fmt.Errorf("roster file %s declares no agents", path)
	}

	agents := make([]*models.Agent, 0, len(rf.Agents))
	seen := make(map[string]bool)
	for _, ra := range rf.Agents {
		if ra.ID == "" {
			return nil, fmt.Errorf("roster file %s: agent with empty id", path)
		}
		if seen[ra.ID] {
			return nil, fmt.Errorf("roster file %s: duplicate agent id %q", path, ra.ID)
		}
		seen[ra.ID] = true

		role := models.AgentRole(ra.Role)
		if ra.Role == "" {
			role = models.RoleSpecialist
		}
		if !role.Valid() {
			return nil, fmt.Errorf("roster file %s: agent %q has unknown role %q", path, ra.ID, ra.Role)
		}

		agents = append(agents, &models.Agent{
			ID:          ra.ID,
			Specialties: ra.Specialties,
			Role:        role,
		})
	}

	return &Roster{agents: agents}, nil
}

// Replace swaps the roster contents. Used by the file watcher on reload.
func (r *Roster) Replace(agents []*models.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = agents
}

// Snapshot returns a copy of the agents sorted by ID.
func (r *Roster) Snapshot() []*models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Agent, len(r.agents))
	copy(out, r.agents)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Coordinator returns the first agent with the coordinator role, falling
// back to the lexically first agent when none is declared.
func (r *Roster) Coordinator() *models.Agent {
	agents := r.Snapshot()
	for _, a := range agents {
		if a.Role == models.RoleCoordinator {
			return a
		}
	}
	if len(agents) > 0 {
		return agents[0]
	}
	return nil
}

// Size returns the number of agents in the roster.
func (r *Roster) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

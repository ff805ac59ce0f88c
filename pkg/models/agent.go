package models

// AgentRole describes the part an agent plays in an execution.
type AgentRole string

const (
	// RoleCoordinator is the default agent that absorbs uncovered capabilities.
	RoleCoordinator AgentRole = "coordinator"
	// RoleSpecialist is an agent bound to a specific set of capabilities.
	RoleSpecialist AgentRole = "specialist"
	// RoleSynthesizer is an agent that combines results from other agents.
	RoleSynthesizer AgentRole = "synthesizer"
)

// Valid returns true if the role is a known value.
func (r AgentRole) Valid() bool {
	switch r {
	case RoleCoordinator, RoleSpecialist, RoleSynthesizer:
		return true
	default:
		return false
	}
}

// Agent represents a named capability provider. Agents are data: assignment
// selects them by specialty overlap, never by branching on their name.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Specialties lists capability names this agent can execute.
	Specialties []string `json:"specialties"`
	// Role is the agent's role in executions.
	Role AgentRole `json:"role"`
}

// CanHandle returns true if the agent declares the given capability.
func (a *Agent) CanHandle(capability string) bool {
	for _, s := range a.Specialties {
		if s == capability {
			return true
		}
	}
	return false
}

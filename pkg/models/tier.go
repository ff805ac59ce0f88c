package models

// Tier represents the complexity tier assigned to a task.
type Tier string

const (
	// TierSimple is a single-subtask request with no decomposition.
	TierSimple Tier = "simple"
	// TierModerate is a request spanning a small number of capabilities.
	TierModerate Tier = "moderate"
	// TierComplex is a multi-domain request needing several subtasks.
	TierComplex Tier = "complex"
	// TierExpert is the widest decomposition the engine produces.
	TierExpert Tier = "expert"
)

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierSimple, TierModerate, TierComplex, TierExpert:
		return true
	default:
		return false
	}
}

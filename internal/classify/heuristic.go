package classify

import (
	"regexp"
	"strings"

	"github.com/ferrule/maestro/pkg/models"
)

// complexityIndicators matches words that signal a multi-step or
// multi-domain request: coordinating conjunctions and action verbs. The
// word list and thresholds are tunable defaults, not a validated scheme.
var complexityIndicators = regexp.MustCompile(`\b(and|or|but|however|although|while|then|also|` +
	`research|investigate|analyze|compare|evaluate|implement|build|create|design|develop|` +
	`calculate|compute|summarize|synthesize|optimize|deploy|test)\b`)

// hintKeywords maps capability names to the words that suggest them.
var hintKeywords = map[string][]string{
	"search":     {"research", "investigate", "search", "find", "gather", "look up", "sources"},
	"analyze":    {"analyze", "analysis", "compare", "evaluate", "assess", "review", "examine"},
	"compute":    {"calculate", "compute", "sum", "multiply", "convert", "count", "measure"},
	"create":     {"implement", "build", "create", "write", "design", "develop", "code", "draft"},
	"synthesize": {"synthesize", "summarize", "summary", "report", "combine", "conclude"},
}

// hintOrder fixes the iteration order over hintKeywords so heuristic output
// is deterministic.
var hintOrder = []string{"search", "analyze", "compute", "create", "synthesize"}

// Heuristic classifies a description without the completion service.
// The tier escalates with the count of complexity-indicator words:
// 0-1 simple, 2-3 moderate, 4-6 complex, 7+ expert.
func Heuristic(description string) Classification {
	lower := strings.ToLower(description)

	indicators := len(complexityIndicators.FindAllString(lower, -1))

	var tier models.Tier
	switch {
	case indicators <= 1:
		tier = models.TierSimple
	case indicators <= 3:
		tier = models.TierModerate
	case indicators <= 6:
		tier = models.TierComplex
	default:
		tier = models.TierExpert
	}

	var hints []string
	for _, cap := range hintOrder {
		for _, kw := range hintKeywords[cap] {
			if strings.Contains(lower, kw) {
				hints = append(hints, cap)
				break
			}
		}
	}

	return Classification{Tier: tier, CapabilityHints: hints, Heuristic: true}
}

// Package classify determines the complexity tier and capability hints for
// a task description. The primary path asks the text-completion service for
// a structured classification; because that service is unreliable by design,
// every parse or transport failure falls back to a deterministic keyword
// heuristic rather than surfacing an error.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ferrule/maestro/internal/llm"
	"github.com/ferrule/maestro/pkg/models"
)

// ErrEmptyDescription indicates the task description was empty or
// whitespace-only.
var ErrEmptyDescription = errors.New("task description is empty")

// Classification is the outcome of classifying a task description.
type Classification struct {
	// Tier is the complexity tier.
	Tier models.Tier `json:"tier"`
	// CapabilityHints lists capability names the task likely needs,
	// in first-mention order with duplicates removed.
	CapabilityHints []string `json:"capability_hints"`
	// Heuristic is true when the keyword fallback produced the result.
	Heuristic bool `json:"heuristic,omitempty"`
}

// classifierResponse is the JSON structure requested from the completion
// service.
type classifierResponse struct {
	Tier         string   `json:"tier"`
	Capabilities []string `json:"capabilities"`
}

// Classifier classifies task descriptions.
type Classifier struct {
	completer llm.Completer
}

// New creates a Classifier. A nil completer skips the LLM path entirely and
// always classifies heuristically.
func New(completer llm.Completer) *Classifier {
	return &Classifier{completer: completer}
}

// Classify returns the tier and capability hints for a description.
// Only an empty description is an error; service failures degrade to the
// heuristic.
func (c *Classifier) Classify(ctx context.Context, description string) (Classification, error) {
	if strings.TrimSpace(description) == "" {
		return Classification{}, ErrEmptyDescription
	}

	if c.completer != nil {
		if cls, ok := c.classifyLLM(ctx, description); ok {
			return cls, nil
		}
	}

	return Heuristic(description), nil
}

// classifyLLM asks the completion service for a structured classification.
// The second return value is false whenever the response is unusable.
func (c *Classifier) classifyLLM(ctx context.Context, description string) (Classification, bool) {
	prompt := fmt.Sprintf(classificationPrompt, description)

	response, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return Classification{}, false
	}

	parsed, err := parseResponse(response)
	if err != nil {
		return Classification{}, false
	}

	tier := models.Tier(strings.ToLower(parsed.Tier))
	if !tier.Valid() {
		return Classification{}, false
	}

	hints := normalizeHints(parsed.Capabilities)
	return Classification{Tier: tier, CapabilityHints: hints}, true
}

// parseResponse extracts the first JSON object from the response text.
// Models often wrap JSON in prose or code fences, so the parser harvests
// the outermost brace pair instead of requiring clean JSON.
func parseResponse(response string) (classifierResponse, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return classifierResponse{}, fmt.Errorf("no JSON object found in response")
	}

	var parsed classifierResponse
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		return classifierResponse{}, fmt.Errorf("unmarshal classification: %w", err)
	}
	if parsed.Tier == "" {
		return classifierResponse{}, fmt.Errorf("classification missing tier field")
	}
	return parsed, nil
}

// normalizeHints lowercases hints and removes empties and duplicates while
// preserving order.
func normalizeHints(hints []string) []string {
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

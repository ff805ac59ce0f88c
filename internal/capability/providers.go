package capability

import (
	"context"
	"fmt"

	"github.com/ferrule/maestro/internal/llm"
)

// LLMProvider delegates a capability to the text-completion service. It is
// the default provider for capabilities that have no dedicated tool: the
// subtask description is sent as a prompt framed by the capability name.
type LLMProvider struct {
	completer llm.Completer
	name      string
}

// NewLLMProvider creates a provider that completes work via the given
// completer, framed as the named capability.
func NewLLMProvider(completer llm.Completer, name string) *LLMProvider {
	return &LLMProvider{completer: completer, name: name}
}

// Invoke sends the subtask description to the completion service. The
// "description" parameter carries the work to perform; remaining parameters
// are appended as context lines. Without a completer the provider still
// produces a result: a degraded echo of the work description, so the
// pipeline stays total when no completion service is configured.
func (p *LLMProvider) Invoke(ctx context.Context, params map[string]any) (any, error) {
	desc, _ := params["description"].(string)
	if desc == "" {
		return nil, fmt.Errorf("llm provider %q: missing description parameter", p.name)
	}

	if p.completer == nil {
		return map[string]any{"capability": p.name, "output": desc, "degraded": true}, nil
	}

	prompt := fmt.Sprintf("Perform the following %s work and reply with the result only.\n\n%s", p.name, desc)
	text, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm provider %q: %w", p.name, err)
	}
	return map[string]any{"capability": p.name, "output": text}, nil
}

// DefaultCapabilities are the capabilities registered when no custom
// registry is supplied. Each is backed by an LLMProvider.
var DefaultCapabilities = []Capability{
	{Name: "search", Description: "Gather information relevant to the request"},
	{Name: "analyze", Description: "Examine gathered material and extract findings"},
	{Name: "compute", Description: "Perform calculations or data transformations"},
	{Name: "create", Description: "Produce new content, code, or designs"},
	{Name: "synthesize", Description: "Combine intermediate results into a final answer"},
}

// NewDefaultRegistry builds a registry with the default capabilities, all
// delegating to the given completer.
func NewDefaultRegistry(completer llm.Completer) *Registry {
	r := NewRegistry()
	for _, cap := range DefaultCapabilities {
		// Register only fails on duplicates, which cannot happen here.
		_ = r.Register(cap, NewLLMProvider(completer, cap.Name))
	}
	return r
}

// Package llm provides the text-completion collaborator used by the
// classifier, synthesizer, and LLM-backed capability providers. The service
// is treated as unreliable: callers must tolerate errors and malformed
// structured output.
package llm

import "context"

// Completer sends a prompt to a text-completion service and returns the
// raw response text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

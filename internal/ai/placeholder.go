package ai

import (
	"context"
	"fmt"
	"strings"
)

// placeholderContent is served when no completion provider is configured.
// The canned text keeps the chat usable in development and demo setups.
const placeholderContent = "I'm running without a language model right now, so I can't " +
	"generate a full answer. Please review your course material and come back " +
	"with specific questions once the assistant is configured."

// Degraded-reason tags carried on canned replies.
const (
	// ReasonNotConfigured tags replies produced because no API key was set.
	ReasonNotConfigured = "provider_not_configured"

	// ReasonProviderError tags replies produced because the provider call
	// failed at request time.
	ReasonProviderError = "provider_error"

	// ReasonRateLimited tags replies produced because the caller exceeded
	// the per-student exchange budget.
	ReasonRateLimited = "rate_limited"
)

// Placeholder is the Provider used when the real provider is absent. Its
// replies are always Degraded and never fail; embedding requests report
// ErrProviderUnavailable, so retrieval is simply skipped and indexing is
// rejected until a real provider is configured.
type Placeholder struct{}

// NewPlaceholder returns the fallback provider.
func NewPlaceholder() *Placeholder { return &Placeholder{} }

// CreateEmbedding always fails: there is no model to embed with.
func (Placeholder) CreateEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("%w: no provider configured", ErrProviderUnavailable)
}

// Complete returns the canned reply, tagged degraded.
func (Placeholder) Complete(ctx context.Context, _ Prompt) (Reply, error) {
	return Reply{
		Content:        placeholderContent,
		Model:          "placeholder",
		Degraded:       true,
		DegradedReason: ReasonNotConfigured,
	}, nil
}

// StreamCompletion simulates streaming by emitting the canned reply word by
// word, honoring ctx and onDelta errors the way the real provider does.
func (p Placeholder) StreamCompletion(ctx context.Context, prompt Prompt, onDelta func(string) error) (Reply, error) {
	reply, _ := p.Complete(ctx, prompt)
	if onDelta == nil {
		return reply, nil
	}
	words := strings.Fields(reply.Content)
	for i, w := range words {
		if err := ctx.Err(); err != nil {
			return reply, err
		}
		delta := w
		if i < len(words)-1 {
			delta += " "
		}
		if err := onDelta(delta); err != nil {
			return reply, err
		}
	}
	return reply, nil
}

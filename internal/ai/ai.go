// Package ai abstracts the embedding and completion providers behind small
// interfaces so the orchestrator and knowledge store never depend on a
// concrete SDK. An unconfigured provider is a valid state, served by a
// placeholder responder rather than an error.
package ai

import (
	"context"
	"errors"
)

// ErrProviderUnavailable wraps any embedding or completion failure coming
// from the remote provider. Callers that treat retrieval as best-effort
// match on it and degrade instead of failing the request.
var ErrProviderUnavailable = errors.New("ai: provider unavailable")

// ErrEmptyInput is returned when an embedding is requested for blank text.
var ErrEmptyInput = errors.New("ai: empty input")

// Turn is one role-tagged message of the prompt history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is a single completion request: system instructions, prior turns,
// and the new user message.
type Prompt struct {
	System  string
	History []Turn
	User    string
}

// Reply is a tagged completion result. Degraded marks fallback text produced
// without contacting the provider (unconfigured, failed, or rate limited) so
// callers can tell real answers from canned ones; the HTTP layer still
// serves both as success.
type Reply struct {
	Content        string `json:"content"`
	TokensUsed     int    `json:"tokens_used,omitempty"`
	Model          string `json:"model,omitempty"`
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degraded_reason,omitempty"`
}

// Embedder converts text into a fixed-length vector. The dimension is a
// property of the configured model and constant across calls.
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Completer produces assistant replies, either whole or as a stream of text
// deltas. StreamCompletion stops and returns the callback's error if onDelta
// fails; output already delivered is not retracted.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (Reply, error)
	StreamCompletion(ctx context.Context, p Prompt, onDelta func(string) error) (Reply, error)
}

// Provider combines both capabilities of a single backing model service.
type Provider interface {
	Embedder
	Completer
}

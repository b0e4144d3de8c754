// Package agent wraps the external language model behind a small
// synchronous contract. The model call is treated as opaque: callers
// hand over a system context, a conversation reference, and the user
// message, and get text back or an error.
package agent

import (
	"context"
)

// Reply is the agent's answer to one Generate call.
type Reply struct {
	Text string
	Raw  any
}

// Generator is the opaque agent contract. The same call shape serves
// turn replies, onboarding question generation, onboarding completion,
// and end-of-session reviews.
type Generator interface {
	Generate(ctx context.Context, systemContext, conversationRef, userMessage string) (*Reply, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, systemContext, conversationRef, userMessage string) (*Reply, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, systemContext, conversationRef, userMessage string) (*Reply, error) {
	return f(ctx, systemContext, conversationRef, userMessage)
}

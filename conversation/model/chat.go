// Package model provides the provider-neutral chat interface and its
// OpenAI, Anthropic and Google implementations.
package model

import "context"

// Standard message roles, aligned with the conventions of the major
// providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single message in a chat exchange.
type Message struct {
	Role    string
	Content string
}

// Usage is the provider-reported token accounting for one call. Token
// semantics are provider-specific; the cost layer only ever multiplies the
// total by a per-token price.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns the combined token count.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// ChatOut is the normalized provider response.
type ChatOut struct {
	Text  string
	Usage Usage
}

// ChatModel abstracts a remote LLM provider.
//
// Implementations must:
//   - respect context cancellation and deadlines,
//   - translate provider errors into plain Go errors (callers only decide
//     "worked or not"; every failure degrades to the scripted flow),
//   - report token usage so the generator can enforce the cost cap.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

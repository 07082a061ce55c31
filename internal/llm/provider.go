// Package llm is the LLM Client (spec §2, §4.7 Generate stage): a thin,
// provider-agnostic streaming chat surface, implemented per vendor in the
// anthropic, openai, and google sub-packages. The only capability the
// Query Agent needs is streaming response generation over a message
// history, so that is the whole interface — no tool calling, no image
// generation, no thought-signature plumbing.
package llm

import "context"

// Message is one turn in a chat conversation.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// StreamHandler receives incremental text as a streaming completion
// produces it.
type StreamHandler interface {
	OnDelta(content string)
}

// Provider is implemented once per vendor SDK.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, model string) (Message, error)
	ChatStream(ctx context.Context, msgs []Message, model string, h StreamHandler) error
}

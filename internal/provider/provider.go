// Package provider defines the client interface to the external
// conversational-AI service and its HTTP implementation.
package provider

import "context"

// Client creates provider-side conversations.
type Client interface {
	// CreateConversation opens a conversation with the given agent.
	// Options are forwarded to the provider verbatim.
	CreateConversation(ctx context.Context, agentID string, options map[string]any) (Conversation, error)

	// Name identifies the provider for logging.
	Name() string
}

// Conversation is a live provider-side conversation handle.
type Conversation interface {
	// ID returns the provider's conversation identifier.
	ID() string

	// SendAudio forwards one chunk of caller audio to the provider.
	SendAudio(ctx context.Context, audio []byte, format string) error

	// End terminates the provider-side conversation.
	End(ctx context.Context) error
}

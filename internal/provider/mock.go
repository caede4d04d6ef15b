package provider

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	CreateFunc   func(ctx context.Context, agentID string, options map[string]any) (Conversation, error)

	CreateCalls atomic.Int32
}

func (m *MockClient) Name() string {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return "mock"
}

func (m *MockClient) CreateConversation(ctx context.Context, agentID string, options map[string]any) (Conversation, error) {
	m.CreateCalls.Add(1)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, agentID, options)
	}
	return &MockConversation{ConvID: uuid.New().String()}, nil
}

// MockConversation is a test double for Conversation.
type MockConversation struct {
	ConvID        string
	SendAudioFunc func(ctx context.Context, audio []byte, format string) error
	EndFunc       func(ctx context.Context) error

	AudioCalls atomic.Int32
	EndCalls   atomic.Int32
}

func (m *MockConversation) ID() string { return m.ConvID }

func (m *MockConversation) SendAudio(ctx context.Context, audio []byte, format string) error {
	m.AudioCalls.Add(1)
	if m.SendAudioFunc != nil {
		return m.SendAudioFunc(ctx, audio, format)
	}
	return nil
}

func (m *MockConversation) End(ctx context.Context) error {
	m.EndCalls.Add(1)
	if m.EndFunc != nil {
		return m.EndFunc(ctx)
	}
	return nil
}

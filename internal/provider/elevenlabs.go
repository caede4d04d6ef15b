package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/konvergen/voicegate/internal/logging"
)

// ElevenLabsClient talks to the ElevenLabs conversational-AI API.
type ElevenLabsClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logging.Logger
}

// NewElevenLabsClient creates a provider client for the given endpoint.
func NewElevenLabsClient(baseURL, apiKey string, timeout time.Duration, log *logging.Logger) *ElevenLabsClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ElevenLabsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log.Sub("provider"),
	}
}

// Name identifies the provider for logging.
func (c *ElevenLabsClient) Name() string { return "elevenlabs" }

// CreateConversation opens a provider-side conversation for the agent.
func (c *ElevenLabsClient) CreateConversation(ctx context.Context, agentID string, options map[string]any) (Conversation, error) {
	body := map[string]any{"agent_id": agentID}
	for k, v := range options {
		body[k] = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling conversation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/convai/conversations", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating conversation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("conversation request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading conversation response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing conversation response: %w", err)
	}
	if result.ConversationID == "" {
		return nil, fmt.Errorf("provider response missing conversation_id")
	}

	c.log.Info().Str("agentId", agentID).Str("conversationId", result.ConversationID).Msg("provider conversation created")

	return &elevenLabsConversation{client: c, id: result.ConversationID}, nil
}

type elevenLabsConversation struct {
	client *ElevenLabsClient
	id     string
}

func (conv *elevenLabsConversation) ID() string { return conv.id }

// SendAudio forwards one audio chunk to the provider's conversation stream.
func (conv *elevenLabsConversation) SendAudio(ctx context.Context, audio []byte, format string) error {
	body := map[string]any{
		"audio":  base64.StdEncoding.EncodeToString(audio),
		"format": format,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling audio chunk: %w", err)
	}

	url := fmt.Sprintf("%s/v1/convai/conversations/%s/audio", conv.client.baseURL, conv.id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating audio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", conv.client.apiKey)

	resp, err := conv.client.client.Do(req)
	if err != nil {
		return fmt.Errorf("audio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// End terminates the provider-side conversation.
func (conv *elevenLabsConversation) End(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/convai/conversations/%s", conv.client.baseURL, conv.id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("creating end request: %w", err)
	}
	req.Header.Set("xi-api-key", conv.client.apiKey)

	resp, err := conv.client.client.Do(req)
	if err != nil {
		return fmt.Errorf("end request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(respBody))
	}

	conv.client.log.Info().Str("conversationId", conv.id).Msg("provider conversation ended")
	return nil
}

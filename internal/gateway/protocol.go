// Package gateway implements the WebSocket protocol layer and the HTTP
// control surface.
package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/konvergen/voicegate/internal/emotion"
)

// Inbound message types.
const (
	MsgStartConversation = "start_conversation"
	MsgEndConversation   = "end_conversation"
	MsgAudioInput        = "audio_input"
	MsgTextInput         = "text_input"
	MsgPing              = "ping"
)

// Outbound message types.
const (
	MsgConnection          = "connection"
	MsgConversationStarted = "conversation_started"
	MsgConversationEnded   = "conversation_ended"
	MsgAudioReceived       = "audio_received"
	MsgTextProcessed       = "text_processed"
	MsgPong                = "pong"
	MsgError               = "error"
)

// Error codes carried by error frames.
const (
	CodeMessageProcessing = "MESSAGE_PROCESSING_ERROR"
	CodeConversationStart = "CONVERSATION_START_ERROR"
	CodeConversationEnd   = "CONVERSATION_END_ERROR"
	CodeAudioProcessing   = "AUDIO_PROCESSING_ERROR"
	CodeTextProcessing    = "TEXT_PROCESSING_ERROR"
)

// StartCommand asks for a new conversation with an agent.
type StartCommand struct {
	AgentID   string         `json:"agentId"`
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId"`
	Options   map[string]any `json:"options"`
}

// EndCommand ends the bound (or explicitly named) conversation.
type EndCommand struct {
	SessionID string `json:"sessionId"`
}

// AudioCommand carries one base64-encoded audio chunk.
type AudioCommand struct {
	AudioData string `json:"audioData"`
	Format    string `json:"format"`
}

// TextCommand carries one user text utterance.
type TextCommand struct {
	Text string `json:"text"`
}

// Command is the typed form of one inbound frame. Exactly one variant is
// set after a successful decode.
type Command struct {
	Type  string
	Start *StartCommand
	End   *EndCommand
	Audio *AudioCommand
	Text  *TextCommand
	Ping  bool
}

// DecodeCommand parses one inbound frame. Unknown message types and
// malformed bodies are a single error case; the caller answers both with
// one protocol error frame.
func DecodeCommand(data []byte) (Command, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Command{}, fmt.Errorf("malformed frame: %w", err)
	}

	cmd := Command{Type: envelope.Type}
	switch envelope.Type {
	case MsgStartConversation:
		cmd.Start = &StartCommand{}
		if err := json.Unmarshal(data, cmd.Start); err != nil {
			return Command{}, fmt.Errorf("malformed %s payload: %w", envelope.Type, err)
		}
	case MsgEndConversation:
		cmd.End = &EndCommand{}
		if err := json.Unmarshal(data, cmd.End); err != nil {
			return Command{}, fmt.Errorf("malformed %s payload: %w", envelope.Type, err)
		}
	case MsgAudioInput:
		cmd.Audio = &AudioCommand{}
		if err := json.Unmarshal(data, cmd.Audio); err != nil {
			return Command{}, fmt.Errorf("malformed %s payload: %w", envelope.Type, err)
		}
		if cmd.Audio.Format == "" {
			cmd.Audio.Format = "wav"
		}
	case MsgTextInput:
		cmd.Text = &TextCommand{}
		if err := json.Unmarshal(data, cmd.Text); err != nil {
			return Command{}, fmt.Errorf("malformed %s payload: %w", envelope.Type, err)
		}
	case MsgPing:
		cmd.Ping = true
	default:
		return Command{}, fmt.Errorf("unknown message type %q", envelope.Type)
	}

	return cmd, nil
}

// Outbound frames. Every frame carries its type and an RFC 3339 timestamp.

// ConnectionAck is sent once, immediately after the socket is accepted.
type ConnectionAck struct {
	Type         string `json:"type"`
	Status       string `json:"status"`
	ConnectionID string `json:"connectionId"`
	Timestamp    string `json:"timestamp"`
}

// ConversationStarted acknowledges a successful start_conversation.
type ConversationStarted struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
	Timestamp string `json:"timestamp"`
}

// ConversationEnded acknowledges a successful end_conversation.
type ConversationEnded struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
}

// AudioReceived acknowledges one forwarded audio chunk.
type AudioReceived struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Bytes     int    `json:"bytes"`
	Timestamp string `json:"timestamp"`
}

// TextProcessed carries the emotion classification for one utterance.
type TextProcessed struct {
	Type         string         `json:"type"`
	SessionID    string         `json:"sessionId"`
	OriginalText string         `json:"originalText"`
	Emotion      emotion.Result `json:"emotion"`
	Timestamp    string         `json:"timestamp"`
}

// Pong answers a ping.
type Pong struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// ErrorFrame reports a typed protocol or processing error.
type ErrorFrame struct {
	Type      string    `json:"type"`
	Error     ErrorBody `json:"error"`
	Timestamp string    `json:"timestamp"`
}

// ErrorBody is the code/message pair inside an error frame.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func stamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func newConnectionAck(connID string) ConnectionAck {
	return ConnectionAck{Type: MsgConnection, Status: "connected", ConnectionID: connID, Timestamp: stamp()}
}

func newConversationStarted(sessionID, agentID string) ConversationStarted {
	return ConversationStarted{Type: MsgConversationStarted, SessionID: sessionID, AgentID: agentID, Timestamp: stamp()}
}

func newConversationEnded(sessionID string) ConversationEnded {
	return ConversationEnded{Type: MsgConversationEnded, SessionID: sessionID, Timestamp: stamp()}
}

func newAudioReceived(sessionID string, n int) AudioReceived {
	return AudioReceived{Type: MsgAudioReceived, SessionID: sessionID, Bytes: n, Timestamp: stamp()}
}

func newTextProcessed(sessionID, text string, res emotion.Result) TextProcessed {
	return TextProcessed{Type: MsgTextProcessed, SessionID: sessionID, OriginalText: text, Emotion: res, Timestamp: stamp()}
}

func newPong() Pong {
	return Pong{Type: MsgPong, Timestamp: stamp()}
}

func newError(code, message string) ErrorFrame {
	return ErrorFrame{Type: MsgError, Error: ErrorBody{Code: code, Message: message}, Timestamp: stamp()}
}

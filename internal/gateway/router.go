package gateway

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/konvergen/voicegate/internal/emotion"
	"github.com/konvergen/voicegate/internal/events"
	"github.com/konvergen/voicegate/internal/logging"
	"github.com/konvergen/voicegate/internal/session"
)

// router drives the per-connection message state machine. One goroutine
// per connection calls run; the session manager and classifier are shared.
type router struct {
	sessions   *session.Manager
	classifier *emotion.Classifier
	registry   *Registry
	bus        *events.Bus
	log        *logging.Logger
}

// run reads frames from the connection in arrival order until the
// transport closes or fails, then tears the connection down.
func (rt *router) run(ctx context.Context, conn *Conn) {
	defer rt.teardown(conn)

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				rt.log.Debug().Str("connId", conn.ID).Msg("connection closed by client")
			} else {
				rt.log.Warn().Err(err).Str("connId", conn.ID).Msg("read error")
			}
			return
		}

		cmd, err := DecodeCommand(msg)
		if err != nil {
			rt.log.Debug().Err(err).Str("connId", conn.ID).Msg("rejecting frame")
			conn.Send(newError(CodeMessageProcessing, err.Error()))
			continue
		}

		conn.Touch()
		rt.dispatch(ctx, conn, cmd)
	}
}

func (rt *router) dispatch(ctx context.Context, conn *Conn, cmd Command) {
	switch cmd.Type {
	case MsgStartConversation:
		rt.handleStart(ctx, conn, cmd.Start)
	case MsgEndConversation:
		rt.handleEnd(ctx, conn, cmd.End)
	case MsgAudioInput:
		rt.handleAudio(ctx, conn, cmd.Audio)
	case MsgTextInput:
		rt.handleText(ctx, conn, cmd.Text)
	case MsgPing:
		conn.Send(newPong())
	}
}

func (rt *router) handleStart(ctx context.Context, conn *Conn, cmd *StartCommand) {
	if _, _, bound := conn.Session(); bound {
		conn.Send(newError(CodeConversationStart, "conversation already active"))
		return
	}
	if strings.TrimSpace(cmd.AgentID) == "" {
		conn.Send(newError(CodeConversationStart, "agentId is required"))
		return
	}

	sess, err := rt.sessions.Start(ctx, cmd.AgentID, cmd.SessionID, cmd.UserID, cmd.Options)
	if err != nil {
		rt.log.Error().Err(err).Str("connId", conn.ID).Str("agentId", cmd.AgentID).Msg("conversation start failed")
		rt.publishError(ctx, conn, err, "conversation start failed")
		conn.Send(newError(CodeConversationStart, "failed to start conversation"))
		return
	}

	conn.Bind(sess.ID, sess.AgentID)
	conn.Send(newConversationStarted(sess.ID, sess.AgentID))
}

func (rt *router) handleEnd(ctx context.Context, conn *Conn, cmd *EndCommand) {
	sessionID, _, bound := conn.Session()
	if cmd.SessionID != "" {
		sessionID = cmd.SessionID
	}
	if sessionID == "" {
		conn.Send(newError(CodeMessageProcessing, "no active conversation"))
		return
	}

	err := rt.sessions.End(ctx, sessionID, session.EndReasonClient)
	// The binding is cleared regardless: local consistency wins over
	// provider or registry disagreement.
	if bound {
		conn.Unbind()
	}
	if err != nil {
		conn.Send(newError(CodeConversationEnd, "failed to end conversation"))
		return
	}
	conn.Send(newConversationEnded(sessionID))
}

func (rt *router) handleAudio(ctx context.Context, conn *Conn, cmd *AudioCommand) {
	sessionID, _, bound := conn.Session()
	if !bound {
		conn.Send(newError(CodeAudioProcessing, "no active session"))
		return
	}
	if cmd.AudioData == "" {
		conn.Send(newError(CodeAudioProcessing, "audioData is required"))
		return
	}

	audio, err := base64.StdEncoding.DecodeString(cmd.AudioData)
	if err != nil {
		conn.Send(newError(CodeAudioProcessing, "audioData is not valid base64"))
		return
	}

	if err := rt.sessions.SendAudio(ctx, sessionID, audio, cmd.Format); err != nil {
		rt.log.Warn().Err(err).Str("sessionId", sessionID).Msg("audio forward failed")
		rt.publishError(ctx, conn, err, "audio forward failed")
		conn.Send(newError(CodeAudioProcessing, "failed to process audio"))
		return
	}

	conn.Send(newAudioReceived(sessionID, len(audio)))
}

func (rt *router) handleText(ctx context.Context, conn *Conn, cmd *TextCommand) {
	sessionID, _, bound := conn.Session()
	if !bound {
		conn.Send(newError(CodeTextProcessing, "no active session"))
		return
	}

	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		conn.Send(newError(CodeTextProcessing, "text is required"))
		return
	}

	res := rt.classifier.Classify(ctx, text)
	rt.sessions.Touch(sessionID)
	rt.sessions.RecordUtterance(sessionID, text, res.Emotion, res.Confidence, res.Method)

	rt.bus.Publish(ctx, events.Event{
		Kind:         events.EmotionDetected,
		ConnectionID: conn.ID,
		SessionID:    sessionID,
		Emotion:      res.Emotion,
		Confidence:   res.Confidence,
	})

	conn.Send(newTextProcessed(sessionID, cmd.Text, res))
}

// teardown releases the registry entry and, fire-and-forget, ends any
// session still bound to the connection.
func (rt *router) teardown(conn *Conn) {
	sessionID, _, bound := conn.Session()

	conn.Close()
	rt.registry.Remove(conn.ID)

	if bound {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := rt.sessions.End(ctx, sessionID, session.EndReasonDisconnect); err != nil {
				rt.log.Debug().Err(err).Str("sessionId", sessionID).Msg("session already gone at teardown")
			}
		}()
	}

	rt.bus.Publish(context.Background(), events.Event{
		Kind:         events.ConnectionClosed,
		ConnectionID: conn.ID,
		SessionID:    sessionID,
	})
}

func (rt *router) publishError(ctx context.Context, conn *Conn, err error, detail string) {
	rt.bus.Publish(ctx, events.Event{
		Kind:         events.ErrorOccurred,
		ConnectionID: conn.ID,
		Err:          err,
		Detail:       detail,
	})
}

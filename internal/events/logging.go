package events

import (
	"context"

	"github.com/konvergen/voicegate/internal/logging"
)

// InstallLogging subscribes a log line to every lifecycle event kind.
func InstallLogging(bus *Bus, log *logging.Logger) {
	lg := log.Sub("lifecycle")

	bus.Subscribe(ConnectionOpened, "log", func(ctx context.Context, ev Event) error {
		lg.Info().Str("connId", ev.ConnectionID).Msg("connection established")
		return nil
	})
	bus.Subscribe(ConnectionClosed, "log", func(ctx context.Context, ev Event) error {
		lg.Info().Str("connId", ev.ConnectionID).Msg("connection lost")
		return nil
	})
	bus.Subscribe(SessionStarted, "log", func(ctx context.Context, ev Event) error {
		lg.Info().Str("sessionId", ev.SessionID).Str("agentId", ev.AgentID).Msg("conversation started")
		return nil
	})
	bus.Subscribe(SessionEnded, "log", func(ctx context.Context, ev Event) error {
		lg.Info().Str("sessionId", ev.SessionID).Msg("conversation ended")
		return nil
	})
	bus.Subscribe(SessionExpired, "log", func(ctx context.Context, ev Event) error {
		lg.Warn().Str("sessionId", ev.SessionID).Msg("idle session reaped")
		return nil
	})
	bus.Subscribe(EmotionDetected, "log", func(ctx context.Context, ev Event) error {
		lg.Debug().
			Str("sessionId", ev.SessionID).
			Str("emotion", ev.Emotion).
			Float64("confidence", ev.Confidence).
			Msg("emotion detected")
		return nil
	})
	bus.Subscribe(ErrorOccurred, "log", func(ctx context.Context, ev Event) error {
		lg.Error().Err(ev.Err).Str("connId", ev.ConnectionID).Str("sessionId", ev.SessionID).Msg(ev.Detail)
		return nil
	})
}

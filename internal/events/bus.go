// Package events provides a typed lifecycle event bus for gateway
// observability. Subscribers can log or count events but never influence
// protocol decisions.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/konvergen/voicegate/internal/logging"
)

// Kind identifies a lifecycle event. The vocabulary is fixed; there is no
// way to publish or subscribe to an unknown kind by accident because all
// call sites use these constants.
type Kind string

const (
	ConnectionOpened Kind = "connection_opened"
	ConnectionClosed Kind = "connection_closed"
	SessionStarted   Kind = "session_started"
	SessionEnded     Kind = "session_ended"
	SessionExpired   Kind = "session_expired"
	EmotionDetected  Kind = "emotion_detected"
	ErrorOccurred    Kind = "error_occurred"
	GatewayStart     Kind = "gateway_start"
	GatewayStop      Kind = "gateway_stop"
)

// AllKinds lists every event kind the bus can carry.
var AllKinds = []Kind{
	ConnectionOpened,
	ConnectionClosed,
	SessionStarted,
	SessionEnded,
	SessionExpired,
	EmotionDetected,
	ErrorOccurred,
	GatewayStart,
	GatewayStop,
}

// Event is the payload delivered to subscribers. Fields are populated
// per kind; unset fields stay zero.
type Event struct {
	Kind         Kind
	ConnectionID string
	SessionID    string
	AgentID      string
	Emotion      string
	Confidence   float64
	Err          error
	Detail       string
	Time         time.Time
}

// Handler processes one event. Returning an error logs the failure but
// does not stop delivery to other subscribers.
type Handler func(ctx context.Context, ev Event) error

// Bus dispatches events to named subscribers synchronously.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Kind][]subscriber
	log         *logging.Logger
}

type subscriber struct {
	name    string
	handler Handler
}

// NewBus creates an empty event bus.
func NewBus(log *logging.Logger) *Bus {
	return &Bus{
		subscribers: make(map[Kind][]subscriber),
		log:         log.Sub("events"),
	}
}

// Subscribe registers a handler for the given kind. The name identifies
// the handler for logging and removal.
func (b *Bus) Subscribe(kind Kind, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[kind] = append(b.subscribers[kind], subscriber{name: name, handler: handler})
	b.log.Debug().Str("kind", string(kind)).Str("handler", name).Msg("subscriber registered")
}

// Unsubscribe removes all handlers with the given name from the kind.
func (b *Bus) Unsubscribe(kind Kind, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[kind]
	filtered := make([]subscriber, 0, len(subs))
	for _, s := range subs {
		if s.name != name {
			filtered = append(filtered, s)
		}
	}
	b.subscribers[kind] = filtered
}

// Publish delivers the event to all subscribers of its kind, in
// registration order, at the caller's point of call. A handler error or
// panic is logged and delivery continues with the next subscriber.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subscribers[ev.Kind]))
	copy(subs, b.subscribers[ev.Kind])
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	for _, s := range subs {
		b.deliver(ctx, s, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("kind", string(ev.Kind)).
				Str("handler", s.name).
				Any("panic", r).
				Msg("subscriber panicked")
		}
	}()

	if err := s.handler(ctx, ev); err != nil {
		b.log.Warn().
			Err(err).
			Str("kind", string(ev.Kind)).
			Str("handler", s.name).
			Msg("subscriber error")
	}
}

// Count returns the number of subscribers for a kind.
func (b *Bus) Count(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[kind])
}

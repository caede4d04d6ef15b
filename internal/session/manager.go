// Package session tracks active conversation sessions and reaps idle ones.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/konvergen/voicegate/internal/events"
	"github.com/konvergen/voicegate/internal/logging"
	"github.com/konvergen/voicegate/internal/provider"
)

var (
	// ErrInvalidAgent indicates a missing or blank agent ID.
	ErrInvalidAgent = errors.New("agent ID is required")
	// ErrSessionNotFound indicates the session does not exist.
	ErrSessionNotFound = errors.New("session not found")
)

// End reasons recorded in the conversation log.
const (
	EndReasonClient     = "client_request"
	EndReasonDisconnect = "connection_closed"
	EndReasonIdle       = "idle_timeout"
	EndReasonShutdown   = "shutdown"
)

// Recorder persists session lifecycle and utterances. All calls are
// best-effort; failures are logged and never block the session.
type Recorder interface {
	RecordSessionStart(id, agentID, userID string, at time.Time) error
	RecordSessionEnd(id, reason string, at time.Time) error
	RecordUtterance(sessionID, text, emotion string, confidence float64, method string, at time.Time) error
}

// Session is one active conversation bound to a provider conversation.
type Session struct {
	ID           string
	AgentID      string
	UserID       string
	StartedAt    time.Time
	LastActivity time.Time

	conv provider.Conversation
}

// Info is a read-only snapshot of a session.
type Info struct {
	ID           string    `json:"sessionId"`
	AgentID      string    `json:"agentId"`
	UserID       string    `json:"userId"`
	StartedAt    time.Time `json:"startedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Manager owns the session registry. Provider and recorder calls happen
// outside the registry lock.
type Manager struct {
	provider provider.Client
	recorder Recorder
	bus      *events.Bus
	log      *logging.Logger

	idleAfter time.Duration
	sweepEach time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithIdleTimeout overrides how long a session may sit idle before the
// reaper ends it.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleAfter = d }
}

// WithSweepInterval overrides how often the reaper scans for idle sessions.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) { m.sweepEach = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager. The recorder may be nil when
// conversation logging is disabled.
func NewManager(p provider.Client, rec Recorder, bus *events.Bus, log *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		provider:  p,
		recorder:  rec,
		bus:       bus,
		log:       log.Sub("session"),
		idleAfter: time.Hour,
		sweepEach: 30 * time.Minute,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates a provider conversation and registers a session for it.
// If sessionID is empty a new UUID is assigned.
func (m *Manager) Start(ctx context.Context, agentID, sessionID, userID string, options map[string]any) (*Session, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, ErrInvalidAgent
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	conv, err := m.provider.CreateConversation(ctx, agentID, options)
	if err != nil {
		return nil, fmt.Errorf("starting provider conversation: %w", err)
	}

	now := m.now()
	sess := &Session{
		ID:           sessionID,
		AgentID:      agentID,
		UserID:       userID,
		StartedAt:    now,
		LastActivity: now,
		conv:         conv,
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.record(func(r Recorder) error {
		return r.RecordSessionStart(sess.ID, agentID, userID, now)
	})

	m.log.Info().
		Str("sessionId", sess.ID).
		Str("agentId", agentID).
		Str("provider", m.provider.Name()).
		Msg("session started")

	m.bus.Publish(ctx, events.Event{
		Kind:      events.SessionStarted,
		SessionID: sess.ID,
		AgentID:   agentID,
	})

	return sess, nil
}

// End removes a session and closes its provider conversation. The provider
// call is best-effort: its failure is logged but the local entry is always
// removed, so End only returns an error for an unknown session.
func (m *Manager) End(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	if err := sess.conv.End(ctx); err != nil {
		m.log.Warn().Err(err).Str("sessionId", id).Msg("provider end failed, session removed anyway")
	}

	m.record(func(r Recorder) error {
		return r.RecordSessionEnd(id, reason, m.now())
	})

	m.log.Info().Str("sessionId", id).Str("reason", reason).Msg("session ended")

	m.bus.Publish(ctx, events.Event{
		Kind:      events.SessionEnded,
		SessionID: id,
		AgentID:   sess.AgentID,
		Detail:    reason,
	})

	return nil
}

// Get returns the session with the given ID, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Touch marks a session as active. Unknown IDs are ignored.
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		sess.LastActivity = m.now()
	}
}

// SendAudio forwards an audio chunk to the session's provider conversation
// and refreshes its activity timestamp.
func (m *Manager) SendAudio(ctx context.Context, id string, audio []byte, format string) error {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	m.Touch(id)
	return sess.conv.SendAudio(ctx, audio, format)
}

// RecordUtterance appends a user utterance with its emotion analysis to the
// conversation log. Best-effort.
func (m *Manager) RecordUtterance(sessionID, text, emotion string, confidence float64, method string) {
	m.record(func(r Recorder) error {
		return r.RecordUtterance(sessionID, text, emotion, confidence, method, m.now())
	})
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Snapshot returns read-only info for every live session.
func (m *Manager) Snapshot() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.sessions))
	for _, sess := range m.sessions {
		infos = append(infos, Info{
			ID:           sess.ID,
			AgentID:      sess.AgentID,
			UserID:       sess.UserID,
			StartedAt:    sess.StartedAt,
			LastActivity: sess.LastActivity,
		})
	}
	return infos
}

// RunReaper periodically ends sessions idle past the timeout. Blocks until
// the context is cancelled.
func (m *Manager) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(m.sweepEach)
	defer ticker.Stop()

	m.log.Debug().
		Dur("idleAfter", m.idleAfter).
		Dur("interval", m.sweepEach).
		Msg("session reaper running")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep ends every session idle past the timeout. One failed end never
// aborts the rest of the sweep.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.idleAfter)

	m.mu.RLock()
	var stale []string
	for id, sess := range m.sessions {
		if sess.LastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	reaped := 0
	for _, id := range stale {
		if err := m.End(ctx, id, EndReasonIdle); err != nil {
			continue
		}
		reaped++
		m.bus.Publish(ctx, events.Event{
			Kind:      events.SessionExpired,
			SessionID: id,
		})
	}

	if reaped > 0 {
		m.log.Info().Int("count", reaped).Msg("reaped idle sessions")
	}
	return reaped
}

// Shutdown ends every live session, best-effort.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.End(ctx, id, EndReasonShutdown)
	}
}

func (m *Manager) record(fn func(Recorder) error) {
	if m.recorder == nil {
		return
	}
	if err := fn(m.recorder); err != nil {
		m.log.Warn().Err(err).Msg("conversation log write failed")
	}
}

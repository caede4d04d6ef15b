package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/konvergen/voicegate/internal/config"
	"github.com/konvergen/voicegate/internal/emotion"
	"github.com/konvergen/voicegate/internal/events"
	"github.com/konvergen/voicegate/internal/logging"
	"github.com/konvergen/voicegate/internal/session"
	"github.com/konvergen/voicegate/internal/store"
)

// ConversationLog is the read side of the persisted conversation
// history, served by the /sessions endpoints.
type ConversationLog interface {
	RecentSessions(limit int) ([]*store.SessionRow, error)
	GetSession(id string) (*store.SessionRow, error)
	SessionUtterances(sessionID string) ([]*store.UtteranceRow, error)
}

// Server is the voicegate HTTP + WebSocket server.
type Server struct {
	cfg        config.Config
	log        *logging.Logger
	registry   *Registry
	sessions   *session.Manager
	classifier *emotion.Classifier
	bus        *events.Bus
	router     *router

	// Conversation history (optional — nil when the memory store is used)
	convlog ConversationLog

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithConversationLog enables the conversation-history endpoints.
func WithConversationLog(cl ConversationLog) ServerOption {
	return func(s *Server) {
		s.convlog = cl
	}
}

// New creates a gateway server wired to the given session manager and
// classifier.
func New(cfg config.Config, sessions *session.Manager, classifier *emotion.Classifier, bus *events.Bus, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:        cfg,
		log:        log.Sub("gateway"),
		registry:   NewRegistry(log.Sub("conns")),
		sessions:   sessions,
		classifier: classifier,
		bus:        bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Server.AllowedOrigins),
		},
	}
	s.router = &router{
		sessions:   sessions,
		classifier: classifier,
		registry:   s.registry,
		bus:        bus,
		log:        s.log.Sub("router"),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkWebSocketOrigin validates WebSocket Origin headers. Requests
// without an Origin header (non-browser clients) are always allowed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening for HTTP and WebSocket connections. It blocks
// until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Server)

	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)

	handler := withMiddleware(mux, s.log, s.cfg.Server.AllowedOrigins)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Server.Bind).
		Msg("gateway server ready")

	s.bus.Publish(ctx, events.Event{Kind: events.GatewayStart, Detail: ln.Addr().String()})

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		s.bus.Publish(context.Background(), events.Event{Kind: events.GatewayStop})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.registry.CloseAll()
		s.sessions.Shutdown(shutdownCtx)
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// Connections returns the number of live WebSocket connections.
func (s *Server) Connections() int {
	return s.registry.Count()
}

// handleWebSocket upgrades HTTP to WebSocket and runs the connection loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	// Audio frames dominate payload size; 4MB matches the largest chunk
	// the capture side produces.
	socket.SetReadLimit(4 * 1024 * 1024)

	conn := NewConn(socket, s.log.Sub("ws"))
	s.registry.Add(conn)

	s.log.Debug().Str("connId", conn.ID).Str("remote", r.RemoteAddr).Msg("new websocket connection")

	conn.Send(newConnectionAck(conn.ID))

	s.bus.Publish(r.Context(), events.Event{
		Kind:         events.ConnectionOpened,
		ConnectionID: conn.ID,
	})

	s.router.run(r.Context(), conn)
}

package gateway

import "net/http"

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /session/start", s.handleSessionStart)
	mux.HandleFunc("DELETE /session/{sessionId}", s.handleSessionEnd)
	mux.HandleFunc("GET /sessions", s.handleSessionList)
	mux.HandleFunc("GET /session/{sessionId}", s.handleSessionDetail)
	mux.HandleFunc("POST /emotion/test", s.handleEmotionTest)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

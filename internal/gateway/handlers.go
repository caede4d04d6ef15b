package gateway

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/konvergen/voicegate/internal/session"
	"github.com/konvergen/voicegate/internal/store"
	"github.com/konvergen/voicegate/internal/version"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeHTTPError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeHTTPError(w, http.StatusNotFound, "not found")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "voicegate",
		"version":   version.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"activeSessions": s.sessions.ActiveCount(),
		"connections":    s.registry.Count(),
		"uptime":         time.Since(s.startedAt).Round(time.Second).String(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

type sessionStartRequest struct {
	AgentID   string         `json:"agentId"`
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId"`
	Options   map[string]any `json:"options"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		writeHTTPError(w, http.StatusBadRequest, "agentId is required")
		return
	}

	sess, err := s.sessions.Start(r.Context(), req.AgentID, req.SessionID, req.UserID, req.Options)
	if err != nil {
		if errors.Is(err, session.ErrInvalidAgent) {
			writeHTTPError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error().Err(err).Str("agentId", req.AgentID).Msg("session start failed")
		writeHTTPError(w, http.StatusBadGateway, "failed to start session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sess.ID,
		"status":    "created",
		"agentId":   sess.AgentID,
		"userId":    sess.UserID,
	})
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	if err := s.sessions.End(r.Context(), sessionID, session.EndReasonClient); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeHTTPError(w, http.StatusNotFound, "session not found")
			return
		}
		writeHTTPError(w, http.StatusInternalServerError, "failed to end session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ended",
		"sessionId": sessionID,
	})
}

// Conversation history, read from the conversation log.

type sessionSummary struct {
	SessionID string     `json:"sessionId"`
	AgentID   string     `json:"agentId"`
	UserID    string     `json:"userId"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	EndReason string     `json:"endReason,omitempty"`
}

type utteranceView struct {
	Text       string    `json:"text"`
	Emotion    string    `json:"emotion"`
	Confidence float64   `json:"confidence"`
	Method     string    `json:"method"`
	CreatedAt  time.Time `json:"createdAt"`
}

func summarize(row *store.SessionRow) sessionSummary {
	return sessionSummary{
		SessionID: row.ID,
		AgentID:   row.AgentID,
		UserID:    row.UserID,
		StartedAt: row.StartedAt,
		EndedAt:   row.EndedAt,
		EndReason: row.EndReason,
	}
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	if s.convlog == nil {
		writeHTTPError(w, http.StatusServiceUnavailable, "conversation log disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeHTTPError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	rows, err := s.convlog.RecentSessions(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("listing conversation sessions failed")
		writeHTTPError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	sessions := make([]sessionSummary, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, summarize(row))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if s.convlog == nil {
		writeHTTPError(w, http.StatusServiceUnavailable, "conversation log disabled")
		return
	}

	sessionID := r.PathValue("sessionId")
	row, err := s.convlog.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeHTTPError(w, http.StatusNotFound, "session not found")
			return
		}
		s.log.Error().Err(err).Str("sessionId", sessionID).Msg("loading conversation session failed")
		writeHTTPError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	rows, err := s.convlog.SessionUtterances(sessionID)
	if err != nil {
		s.log.Error().Err(err).Str("sessionId", sessionID).Msg("loading utterances failed")
		writeHTTPError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	utterances := make([]utteranceView, 0, len(rows))
	for _, u := range rows {
		utterances = append(utterances, utteranceView{
			Text:       u.Text,
			Emotion:    u.Emotion,
			Confidence: u.Confidence,
			Method:     u.Method,
			CreatedAt:  u.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session":    summarize(row),
		"utterances": utterances,
	})
}

type emotionTestRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleEmotionTest(w http.ResponseWriter, r *http.Request) {
	var req emotionTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeHTTPError(w, http.StatusBadRequest, "text is required")
		return
	}

	writeJSON(w, http.StatusOK, s.classifier.Classify(r.Context(), req.Text))
}

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SessionRow is one recorded conversation session.
type SessionRow struct {
	ID        string
	AgentID   string
	UserID    string
	StartedAt time.Time
	EndedAt   *time.Time
	EndReason string
}

// UtteranceRow is one recorded user utterance with its emotion analysis.
type UtteranceRow struct {
	ID         int64
	SessionID  string
	Text       string
	Emotion    string
	Confidence float64
	Method     string
	CreatedAt  time.Time
}

// RecordSessionStart inserts a new conversation session row.
func (db *DB) RecordSessionStart(id, agentID, userID string, at time.Time) error {
	if userID == "" {
		userID = "anonymous"
	}
	_, err := db.sql.Exec(`
		INSERT INTO conversation_sessions (id, agent_id, user_id, started_at)
		VALUES (?, ?, ?, ?)
	`, id, agentID, userID, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording session start: %w", err)
	}
	return nil
}

// RecordSessionEnd marks a session as ended with the given reason.
func (db *DB) RecordSessionEnd(id, reason string, at time.Time) error {
	_, err := db.sql.Exec(`
		UPDATE conversation_sessions SET ended_at = ?, end_reason = ?
		WHERE id = ? AND ended_at IS NULL
	`, at.UTC().Format(time.RFC3339), reason, id)
	if err != nil {
		return fmt.Errorf("recording session end: %w", err)
	}
	return nil
}

// RecordUtterance appends an utterance with its emotion analysis to a session.
func (db *DB) RecordUtterance(sessionID, text, emotion string, confidence float64, method string, at time.Time) error {
	_, err := db.sql.Exec(`
		INSERT INTO utterances (session_id, text, emotion, confidence, method, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sessionID, text, emotion, confidence, method, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording utterance: %w", err)
	}
	return nil
}

// GetSession returns a single session row, or sql.ErrNoRows if absent.
func (db *DB) GetSession(id string) (*SessionRow, error) {
	row := db.sql.QueryRow(`
		SELECT id, agent_id, user_id, started_at, ended_at, end_reason
		FROM conversation_sessions WHERE id = ?
	`, id)
	return scanSession(row)
}

// RecentSessions returns the most recently started sessions, newest first.
func (db *DB) RecentSessions(limit int) ([]*SessionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.sql.Query(`
		SELECT id, agent_id, user_id, started_at, ended_at, end_reason
		FROM conversation_sessions
		ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*SessionRow
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SessionUtterances returns all utterances for a session in insertion order.
func (db *DB) SessionUtterances(sessionID string) ([]*UtteranceRow, error) {
	rows, err := db.sql.Query(`
		SELECT id, session_id, text, emotion, confidence, method, created_at
		FROM utterances WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing utterances: %w", err)
	}
	defer rows.Close()

	var utterances []*UtteranceRow
	for rows.Next() {
		var u UtteranceRow
		var createdAt string
		if err := rows.Scan(&u.ID, &u.SessionID, &u.Text, &u.Emotion, &u.Confidence, &u.Method, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning utterance: %w", err)
		}
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		utterances = append(utterances, &u)
	}
	return utterances, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRow, error) {
	var s SessionRow
	var startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&s.ID, &s.AgentID, &s.UserID, &startedAt, &endedAt, &s.EndReason); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	s.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339, endedAt.String)
		if err == nil {
			s.EndedAt = &t
		}
	}
	return &s, nil
}

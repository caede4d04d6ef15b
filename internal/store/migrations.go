package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversation sessions and utterances",
		SQL: `
			CREATE TABLE conversation_sessions (
				id          TEXT PRIMARY KEY,
				agent_id    TEXT NOT NULL,
				user_id     TEXT NOT NULL DEFAULT 'anonymous',
				started_at  TEXT NOT NULL DEFAULT (datetime('now')),
				ended_at    TEXT,
				end_reason  TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_conv_sessions_agent ON conversation_sessions (agent_id);
			CREATE INDEX idx_conv_sessions_started ON conversation_sessions (started_at);

			CREATE TABLE utterances (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id  TEXT NOT NULL REFERENCES conversation_sessions(id) ON DELETE CASCADE,
				text        TEXT NOT NULL,
				emotion     TEXT NOT NULL DEFAULT '',
				confidence  REAL NOT NULL DEFAULT 0,
				method      TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_utterances_session ON utterances (session_id, id);
		`,
	},
}

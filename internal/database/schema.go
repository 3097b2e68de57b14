package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Step is one idempotent schema statement applied at startup.
type Step struct {
	Name string
	SQL  string
}

var schemaSteps = []Step{
	{
		Name: "create_sessions",
		SQL: `
			CREATE TABLE IF NOT EXISTS sessions (
				id                 TEXT PRIMARY KEY,
				ip                 TEXT NOT NULL,
				user_agent         TEXT NOT NULL DEFAULT '',
				country            TEXT,
				city               TEXT,
				device             TEXT,
				browser            TEXT,
				os                 TEXT,
				started_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				last_activity      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				current_step       INTEGER NOT NULL DEFAULT 0,
				max_step_reached   INTEGER NOT NULL DEFAULT 0,
				form_data          JSONB,
				cv_data            JSONB,
				profile_photo      TEXT,
				payment_proof_url  TEXT,
				payment_proof_data TEXT,
				advanced_data      JSONB,
				payment_status     TEXT NOT NULL DEFAULT 'pending'
					CHECK (payment_status IN ('pending', 'uploaded', 'verified', 'rejected')),
				is_active          BOOLEAN NOT NULL DEFAULT TRUE,
				total_page_views   INTEGER NOT NULL DEFAULT 0,
				total_time_spent   INTEGER NOT NULL DEFAULT 0
			)`,
	},
	{
		Name: "create_events",
		SQL: `
			CREATE TABLE IF NOT EXISTS events (
				seq        BIGSERIAL,
				id         TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id),
				event_type TEXT NOT NULL,
				event_data JSONB,
				step_index INTEGER,
				page_url   TEXT,
				timestamp  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
	},
	{
		Name: "index_sessions_last_activity",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions (last_activity DESC)`,
	},
	{
		Name: "index_sessions_started_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions (started_at)`,
	},
	{
		Name: "index_events_session",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_events_session_time ON events (session_id, timestamp, seq)`,
	},
}

// EnsureSchema creates the sessions and events tables when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	for _, step := range schemaSteps {
		if _, err := pool.Exec(ctx, step.SQL); err != nil {
			return fmt.Errorf("schema step %s: %w", step.Name, err)
		}
		log.Debug().Str("step", step.Name).Msg("schema step applied")
	}
	return nil
}

package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// schema is applied in order on startup. Statements must be idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id          UUID PRIMARY KEY,
		session_id  TEXT NOT NULL UNIQUE,
		mentor_id   TEXT,
		user_id     TEXT,
		doc         JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_mentor_id ON sessions (mentor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS users (
		id             UUID PRIMARY KEY,
		name           TEXT NOT NULL DEFAULT '',
		email          TEXT NOT NULL UNIQUE,
		password_hash  TEXT NOT NULL,
		role           TEXT NOT NULL CHECK (role IN ('student', 'mentor', 'university')),
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_login_at  TIMESTAMPTZ
	)`,
}

// EnsureSchema creates the sessions and users tables.
func (db *DB) EnsureSchema(ctx context.Context) error {
	err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Int("statements", len(schema)).Msg("database schema ensured")
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mentorscore/session-api/internal/model"
)

// ErrDuplicateSession is returned by Create when the sessionId is taken.
var ErrDuplicateSession = errors.New("session already exists")

// pq error code for unique_violation
const uniqueViolation = "23505"

// SessionRepository is the persistence gateway for session records. Records
// are stored whole in a JSONB document keyed by sessionId.
type SessionRepository interface {
	FindBySessionID(ctx context.Context, sessionID string) (*model.StoredSession, error)
	Create(ctx context.Context, rec model.SessionRecord) (*model.StoredSession, error)
	Upsert(ctx context.Context, rec model.SessionRecord) (*model.StoredSession, error)
	// UpdateFields replaces the given top-level document fields. Returns nil
	// when the session does not exist.
	UpdateFields(ctx context.Context, sessionID string, fields map[string]any) (*model.StoredSession, error)
	FindMany(ctx context.Context, filter model.SessionFilter) ([]model.StoredSession, error)
	ScoreSummaries(ctx context.Context) ([]model.MentorScore, error)
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.StoredSession, error) {
	var s model.StoredSession
	err := r.db.GetContext(ctx, &s, `
		SELECT * FROM sessions WHERE session_id = $1
	`, sessionID)
	return HandleNotFound(&s, err)
}

func (r *sessionRepo) Create(ctx context.Context, rec model.SessionRecord) (*model.StoredSession, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}

	var s model.StoredSession
	err = r.db.GetContext(ctx, &s, `
		INSERT INTO sessions (id, session_id, mentor_id, user_id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, uuid.NewString(), rec.SessionID, nullable(rec.MentorID), nullable(rec.UserID), doc,
		timestamp(rec.CreatedAt), timestamp(rec.UpdatedAt))
	if isUniqueViolation(err) {
		return nil, ErrDuplicateSession
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert inserts rec or replaces the stored document of the same sessionId.
// The original row id and created_at are kept.
func (r *sessionRepo) Upsert(ctx context.Context, rec model.SessionRecord) (*model.StoredSession, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}

	var s model.StoredSession
	err = r.db.GetContext(ctx, &s, `
		INSERT INTO sessions (id, session_id, mentor_id, user_id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			mentor_id = EXCLUDED.mentor_id,
			user_id = EXCLUDED.user_id,
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at
		RETURNING *
	`, uuid.NewString(), rec.SessionID, nullable(rec.MentorID), nullable(rec.UserID), doc,
		timestamp(rec.CreatedAt), timestamp(rec.UpdatedAt))
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateFields merges fields into the stored document. The mentor_id and
// user_id columns follow the patch whenever it carries those keys, so an
// empty or null value clears them.
func (r *sessionRepo) UpdateFields(ctx context.Context, sessionID string, fields map[string]any) (*model.StoredSession, error) {
	patch, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}

	var s model.StoredSession
	err = r.db.GetContext(ctx, &s, `
		UPDATE sessions SET
			doc = doc || $2::jsonb,
			mentor_id = CASE WHEN $2::jsonb -> 'mentorId' IS NULL THEN mentor_id
				ELSE NULLIF($2::jsonb->>'mentorId', '') END,
			user_id = CASE WHEN $2::jsonb -> 'userId' IS NULL THEN user_id
				ELSE NULLIF($2::jsonb->>'userId', '') END,
			updated_at = $3
		WHERE session_id = $1
		RETURNING *
	`, sessionID, patch, time.Now().UTC())
	return HandleNotFound(&s, err)
}

func (r *sessionRepo) FindMany(ctx context.Context, filter model.SessionFilter) ([]model.StoredSession, error) {
	var (
		where []string
		args  []any
	)
	if filter.MentorID != "" {
		args = append(args, filter.MentorID)
		where = append(where, fmt.Sprintf("mentor_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.MissingTimeline {
		where = append(where, `(
			COALESCE(doc->'timeline'->'audio', 'null'::jsonb) IN ('null'::jsonb, '[]'::jsonb)
			OR COALESCE(doc->'timeline'->'video', 'null'::jsonb) IN ('null'::jsonb, '[]'::jsonb)
		)`)
	}

	query := "SELECT * FROM sessions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, session_id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	sessions := []model.StoredSession{}
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ScoreSummaries averages the session score per mentor. A session's score is
// its Overall metric, or the rounded mean of its metrics when Overall is
// missing. Sessions without metrics count towards SessionCount only.
func (r *sessionRepo) ScoreSummaries(ctx context.Context) ([]model.MentorScore, error) {
	scores := []model.MentorScore{}
	err := r.db.SelectContext(ctx, &scores, `
		SELECT
			t.mentor_id,
			COUNT(*) AS session_count,
			COALESCE(AVG(t.score), 0)::float8 AS average_score
		FROM (
			SELECT s.mentor_id, COALESCE(
				(SELECT (m->>'score')::numeric FROM jsonb_array_elements(x.metrics) m
				 WHERE m->>'name' = 'Overall' LIMIT 1),
				(SELECT ROUND(AVG((m->>'score')::numeric)) FROM jsonb_array_elements(x.metrics) m)
			) AS score
			FROM sessions s
			CROSS JOIN LATERAL (
				SELECT CASE WHEN jsonb_typeof(s.doc->'metrics') = 'array'
					THEN s.doc->'metrics' ELSE '[]'::jsonb END AS metrics
			) x
			WHERE s.mentor_id IS NOT NULL AND s.mentor_id <> ''
		) t
		GROUP BY t.mentor_id
		ORDER BY t.mentor_id
	`)
	if err != nil {
		return nil, err
	}
	return scores, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timestamp(t *time.Time) time.Time {
	if t == nil || t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// Package testutil provides in-memory fakes for service and handler tests.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/normalize"
	"github.com/mentorscore/session-api/internal/repository"
)

// MemorySessionStore is an in-memory repository.SessionRepository with the
// same semantics as the Postgres implementation.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.StoredSession
	// Err, when set, is returned by every method. A finished context fails
	// every method as well, like the sqlx driver does.
	Err error
}

var _ repository.SessionRepository = (*MemorySessionStore)(nil)

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]model.StoredSession)}
}

// Put stores a raw document as-is, bypassing normalization. Useful for
// legacy shapes.
func (s *MemorySessionStore) Put(sessionID string, doc map[string]any) {
	data, _ := json.Marshal(doc)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	st := model.StoredSession{ID: uuid.NewString(), SessionID: sessionID, Doc: data, CreatedAt: now, UpdatedAt: now}
	if m, ok := doc["mentorId"].(string); ok && m != "" {
		st.MentorID = &m
	}
	if u, ok := doc["userId"].(string); ok && u != "" {
		st.UserID = &u
	}
	s.sessions[sessionID] = st
}

// Doc returns the stored document decoded, or nil.
func (s *MemorySessionStore) Doc(sessionID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	doc, _ := normalize.DecodeDocument(st.Doc)
	return doc
}

func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemorySessionStore) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return s
}

func (s *MemorySessionStore) FindBySessionID(ctx context.Context, sessionID string) (*model.StoredSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *MemorySessionStore) Create(ctx context.Context, rec model.SessionRecord) (*model.StoredSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	if _, ok := s.sessions[rec.SessionID]; ok {
		return nil, repository.ErrDuplicateSession
	}
	return s.store(rec, uuid.NewString(), stamp(rec.CreatedAt))
}

func (s *MemorySessionStore) Upsert(ctx context.Context, rec model.SessionRecord) (*model.StoredSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	if existing, ok := s.sessions[rec.SessionID]; ok {
		return s.store(rec, existing.ID, existing.CreatedAt)
	}
	return s.store(rec, uuid.NewString(), stamp(rec.CreatedAt))
}

func (s *MemorySessionStore) store(rec model.SessionRecord, id string, createdAt time.Time) (*model.StoredSession, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	st := model.StoredSession{
		ID:        id,
		SessionID: rec.SessionID,
		MentorID:  optional(rec.MentorID),
		UserID:    optional(rec.UserID),
		Doc:       data,
		CreatedAt: createdAt,
		UpdatedAt: stamp(rec.UpdatedAt),
	}
	s.sessions[rec.SessionID] = st
	return &st, nil
}

func (s *MemorySessionStore) UpdateFields(ctx context.Context, sessionID string, fields map[string]any) (*model.StoredSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	doc, err := normalize.DecodeDocument(st.Doc)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	st.Doc = data
	st.UpdatedAt = time.Now().UTC()
	if v, ok := fields["mentorId"]; ok {
		m, _ := v.(string)
		st.MentorID = optional(m)
	}
	if v, ok := fields["userId"]; ok {
		u, _ := v.(string)
		st.UserID = optional(u)
	}
	s.sessions[sessionID] = st
	return &st, nil
}

func (s *MemorySessionStore) FindMany(ctx context.Context, filter model.SessionFilter) ([]model.StoredSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	out := []model.StoredSession{}
	for _, st := range s.sessions {
		if filter.MentorID != "" && (st.MentorID == nil || *st.MentorID != filter.MentorID) {
			continue
		}
		if filter.UserID != "" && (st.UserID == nil || *st.UserID != filter.UserID) {
			continue
		}
		if filter.MissingTimeline && !missingTimeline(st.Doc) {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	if filter.Offset > 0 {
		out = out[min(filter.Offset, len(out)):]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemorySessionStore) ScoreSummaries(ctx context.Context) ([]model.MentorScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	type agg struct{ count, scored, sum int }
	byMentor := map[string]*agg{}
	for _, st := range s.sessions {
		if st.MentorID == nil || *st.MentorID == "" {
			continue
		}
		a := byMentor[*st.MentorID]
		if a == nil {
			a = &agg{}
			byMentor[*st.MentorID] = a
		}
		a.count++
		doc, _ := normalize.DecodeDocument(st.Doc)
		if score, ok := normalize.Normalize(doc).OverallScore(); ok {
			a.scored++
			a.sum += score
		}
	}

	out := make([]model.MentorScore, 0, len(byMentor))
	for id, a := range byMentor {
		ms := model.MentorScore{MentorID: id, SessionCount: a.count}
		if a.scored > 0 {
			ms.AverageScore = float64(a.sum) / float64(a.scored)
		}
		out = append(out, ms)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MentorID < out[j].MentorID })
	return out, nil
}

func missingTimeline(data json.RawMessage) bool {
	doc, err := normalize.DecodeDocument(data)
	if err != nil {
		return true
	}
	timeline, _ := doc["timeline"].(map[string]any)
	audio, _ := timeline["audio"].([]any)
	video, _ := timeline["video"].([]any)
	return len(audio) == 0 || len(video) == 0
}

func (s *MemorySessionStore) fail(ctx context.Context) error {
	if s.Err != nil {
		return s.Err
	}
	return ctx.Err()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stamp(t *time.Time) time.Time {
	if t == nil || t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// ErrStoreDown is a convenience error for failure-path tests.
var ErrStoreDown = errors.New("store unavailable")

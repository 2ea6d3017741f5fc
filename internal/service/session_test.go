package service

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorscore/session-api/internal/cache"
	apperrors "github.com/mentorscore/session-api/internal/errors"
	"github.com/mentorscore/session-api/internal/gapfill"
	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/projection"
	"github.com/mentorscore/session-api/internal/sse"
	"github.com/mentorscore/session-api/internal/testutil"
)

type recordingPublisher struct {
	mu      sync.Mutex
	mentors []string
	events  []sse.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, mentorID string, event sse.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mentors = append(p.mentors, mentorID)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) last() sse.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func newTestService(gen gapfill.Generator, views *cache.ViewCache) (*SessionService, *testutil.MemorySessionStore, *recordingPublisher) {
	store := testutil.NewMemorySessionStore()
	filler := gapfill.NewFiller(gen)
	pub := &recordingPublisher{}
	svc := NewSessionService(store, filler, projection.NewProjector(filler, true), views, pub)
	return svc, store, pub
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	assert.Regexp(t, `^session_[0-9a-f]{8}$`, id)
	assert.NotEqual(t, id, NewSessionID())
}

func TestSessionService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("fills gaps and summarizes", func(t *testing.T) {
		gen := &testutil.ScriptedGenerator{Responses: []string{testutil.CompleteSynthesis, "Clear session. Slow down."}}
		svc, store, pub := newTestService(gen, nil)

		res, err := svc.Create(ctx, map[string]any{"mentorId": "m1", "sessionName": "Graphs"})

		require.NoError(t, err)
		assert.Regexp(t, `^session_[0-9a-f]{8}$`, res.Session.SessionID)
		assert.Equal(t, "Graphs", res.Session.SessionName)
		assert.False(t, res.Degraded)
		assert.Contains(t, res.Filled, "timeline.audio")
		assert.Contains(t, res.Filled, "aiSummary")
		assert.Equal(t, 60, res.Session.Duration)
		assert.Equal(t, 2, gen.Calls())

		doc := store.Doc(res.Session.SessionID)
		require.NotNil(t, doc)
		assert.Equal(t, "Clear session. Slow down.", doc["aiSummary"])
		assert.NotNil(t, doc["created_at"])

		require.Len(t, pub.events, 1)
		assert.Equal(t, model.EventSessionCreated, pub.events[0].Type)
		assert.Equal(t, "m1", pub.mentors[0])
	})

	t.Run("stores defaults when the generator fails", func(t *testing.T) {
		gen := &testutil.ScriptedGenerator{}
		svc, store, _ := newTestService(gen, nil)

		res, err := svc.Create(ctx, map[string]any{"sessionId": "s1"})

		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.Empty(t, res.Filled)
		assert.Equal(t, []model.AudioSegment{}, res.Session.Timeline.Audio)
		assert.Equal(t, 1, gen.Calls())
		assert.Equal(t, 1, store.Len())
	})

	t.Run("duplicate sessionId", func(t *testing.T) {
		svc, _, pub := newTestService(&testutil.ScriptedGenerator{}, nil)

		_, err := svc.Create(ctx, map[string]any{"sessionId": "dup", "mentorId": "m1"})
		require.NoError(t, err)
		_, err = svc.Create(ctx, map[string]any{"sessionId": "dup", "mentorId": "m1"})

		assert.Equal(t, apperrors.ErrCodeAlreadyExists, apperrors.GetCode(err))
		assert.Len(t, pub.events, 1)
	})

	t.Run("invalid sessionId", func(t *testing.T) {
		svc, store, _ := newTestService(&testutil.ScriptedGenerator{}, nil)

		_, err := svc.Create(ctx, map[string]any{"sessionId": "bad id!"})

		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
		assert.Zero(t, store.Len())
	})

	t.Run("store failure", func(t *testing.T) {
		svc, store, _ := newTestService(&testutil.ScriptedGenerator{}, nil)
		store.Err = testutil.ErrStoreDown

		_, err := svc.Create(ctx, map[string]any{"sessionId": "s1"})

		assert.Equal(t, apperrors.ErrCodeDatabase, apperrors.GetCode(err))
	})
}

// stallingGenerator answers only when its context ends.
type stallingGenerator struct {
	calls atomic.Int32
}

func (g *stallingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls.Add(1)
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSessionService_SlowGenerator(t *testing.T) {
	t.Run("fill budget bounds the generator", func(t *testing.T) {
		gen := &stallingGenerator{}
		svc, store, pub := newTestService(gen, nil)
		svc.SetFillBudget(50 * time.Millisecond)

		start := time.Now()
		res, err := svc.Create(context.Background(), map[string]any{"sessionId": "slow1", "mentorId": "m1"})

		require.NoError(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.True(t, res.Degraded)
		assert.Equal(t, int32(1), gen.calls.Load(), "later stages are skipped once the budget is spent")
		assert.NotNil(t, store.Doc("slow1"))
		assert.Len(t, pub.events, 1)
	})

	t.Run("request deadline does not lose the write", func(t *testing.T) {
		gen := &stallingGenerator{}
		svc, store, _ := newTestService(gen, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		res, err := svc.Create(ctx, map[string]any{"sessionId": "slow2"})

		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.NotNil(t, store.Doc("slow2"))
	})

	t.Run("import keeps storing after the deadline passed", func(t *testing.T) {
		gen := &stallingGenerator{}
		svc, store, _ := newTestService(gen, nil)
		svc.SetFillBudget(50 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		result := svc.Import(ctx, []map[string]any{
			{"sessionId": "i1"}, {"sessionId": "i2"}, {"sessionId": "i3"},
		}, ImportOptions{FillGaps: true})

		assert.Equal(t, 3, result.Imported)
		assert.Zero(t, result.Failed)
		assert.Equal(t, 3, store.Len())
	})

	t.Run("store honours a finished context", func(t *testing.T) {
		store := testutil.NewMemorySessionStore()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := store.Create(ctx, model.SessionRecord{SessionID: "x"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSessionService_IngestAnalysis(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(&testutil.ScriptedGenerator{}, nil)

	res, err := svc.IngestAnalysis(ctx, "m1", AnalysisRequest{
		VideoURL:    "https://cdn.example.com/a.mp4",
		Analysis:    json.RawMessage(`{"clarity": 70, "overall_score": 65, "duration": 600}`),
		Diarization: json.RawMessage(`{"sentences": [{"start": 0, "end": 12, "text": "hello"}], "needs_improvement": [{"start": 5, "reason": "rushed"}]}`),
	})

	require.NoError(t, err)
	assert.Equal(t, 600, res.Session.Duration)
	assert.Equal(t, "https://cdn.example.com/a.mp4", res.Session.VideoURL)
	require.Len(t, res.Session.Metrics, 2)
	assert.Equal(t, model.MetricOverall, res.Session.Metrics[1].Name)
	assert.Len(t, res.Session.Timeline.Transcript, 1)
	assert.Equal(t, []model.WeakMoment{{Timestamp: "00:00:05", Message: "rushed"}}, res.Session.WeakMoments)

	doc := store.Doc(res.Session.SessionID)
	assert.Equal(t, "m1", doc["mentorId"])
	assert.NotNil(t, doc["analysis"])

	t.Run("rejects invalid video url", func(t *testing.T) {
		_, err := svc.IngestAnalysis(ctx, "m1", AnalysisRequest{VideoURL: "ftp://x", Analysis: json.RawMessage(`{}`)})
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})

	t.Run("requires a payload", func(t *testing.T) {
		_, err := svc.IngestAnalysis(ctx, "m1", AnalysisRequest{VideoURL: "https://cdn.example.com/b.mp4"})
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})
}

func TestSessionService_Import(t *testing.T) {
	ctx := context.Background()
	gen := &testutil.ScriptedGenerator{}
	svc, store, _ := newTestService(gen, nil)

	result := svc.Import(ctx, []map[string]any{
		{"sessionId": "a1", "metrics": []any{map[string]any{"name": "Overall", "score": 70}}},
		{"sessionId": "bad id!"},
		{"session_id": "a2", "mentorId": "m9"},
	}, ImportOptions{MentorID: "m1"})

	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].Index)
	assert.Equal(t, "m1", store.Doc("a1")["mentorId"])
	assert.Equal(t, "m9", store.Doc("a2")["mentorId"])
	assert.Zero(t, gen.Calls(), "import does not fill gaps unless asked")

	t.Run("re-import replaces", func(t *testing.T) {
		result := svc.Import(ctx, []map[string]any{{"sessionId": "a1", "sessionName": "Again"}}, ImportOptions{})
		assert.Equal(t, 1, result.Imported)
		assert.Equal(t, 2, store.Len())
		assert.Equal(t, "Again", store.Doc("a1")["sessionName"])
	})

	t.Run("store failure is reported per item", func(t *testing.T) {
		store.Err = testutil.ErrStoreDown
		defer func() { store.Err = nil }()

		result := svc.Import(ctx, []map[string]any{{"sessionId": "a3"}}, ImportOptions{})
		assert.Equal(t, 1, result.Failed)
		assert.Equal(t, "failed to store session", result.Errors[0].Error)
	})
}

func TestSessionService_Update(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(&testutil.ScriptedGenerator{}, nil)
	_, err := svc.Create(ctx, map[string]any{"sessionId": "u1", "mentorId": "m1", "sessionName": "Old"})
	require.NoError(t, err)

	res, err := svc.Update(ctx, "u1", map[string]any{
		"name":         "New",
		"weak_moments": []any{map[string]any{"timestamp": 90, "message": "slow"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "New", res.Session.SessionName)
	assert.Equal(t, []model.WeakMoment{{Timestamp: "00:01:30", Message: "slow"}}, res.Session.WeakMoments)

	doc := store.Doc("u1")
	assert.Equal(t, "New", doc["sessionName"])
	assert.Len(t, doc["weakMoments"], 1)
	assert.Equal(t, "m1", doc["mentorId"], "untouched fields are kept")
	assert.Equal(t, model.EventSessionUpdated, pub.last().Type)

	tests := []struct {
		name   string
		id     string
		fields map[string]any
		code   apperrors.ErrorCode
	}{
		{"unknown field", "u1", map[string]any{"color": "red"}, apperrors.ErrCodeInvalidInput},
		{"read-only field", "u1", map[string]any{"id": "other"}, apperrors.ErrCodeInvalidInput},
		{"no fields", "u1", map[string]any{}, apperrors.ErrCodeValidation},
		{"missing session", "nope", map[string]any{"name": "x"}, apperrors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, tt.id, tt.fields)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
		})
	}

	t.Run("ownership follows mentorId", func(t *testing.T) {
		_, err := svc.Update(ctx, "u1", map[string]any{"mentorId": "m2"})
		require.NoError(t, err)

		_, err = svc.Breakdown(ctx, "m1", "u1")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
		_, err = svc.Breakdown(ctx, "m2", "u1")
		assert.NoError(t, err)

		_, err = svc.Update(ctx, "u1", map[string]any{"mentorId": ""})
		require.NoError(t, err)

		owned, err := svc.ListByMentor(ctx, "m2", 10, 0)
		require.NoError(t, err)
		assert.Empty(t, owned)
		_, err = svc.Breakdown(ctx, "m1", "u1")
		assert.NoError(t, err, "a session without a mentor is readable under any mentor path")
	})
}

func TestSessionService_Breakdown(t *testing.T) {
	ctx := context.Background()

	t.Run("heals, persists and caches", func(t *testing.T) {
		_, rdb := testutil.NewRedis(t)
		gen := &testutil.ScriptedGenerator{Responses: []string{testutil.CompleteSynthesis}}
		svc, store, _ := newTestService(gen, cache.NewViewCache(rdb, time.Minute))
		store.Put("b1", map[string]any{"sessionId": "b1", "mentorId": "m1", "duration": 300})

		view, err := svc.Breakdown(ctx, "m1", "b1")

		require.NoError(t, err)
		assert.Equal(t, 300, view.Duration)
		assert.Len(t, view.Timeline.Audio, 1)

		timeline, _ := store.Doc("b1")["timeline"].(map[string]any)
		assert.Len(t, timeline["audio"], 1, "healed fields are written back")

		again, err := svc.Breakdown(ctx, "m1", "b1")
		require.NoError(t, err)
		assert.Equal(t, view, again)
		assert.Equal(t, 1, gen.Calls(), "second read is served from cache")

		_, err = svc.Breakdown(ctx, "m2", "b1")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})

	t.Run("degraded heal still returns the view", func(t *testing.T) {
		svc, store, _ := newTestService(&testutil.ScriptedGenerator{}, nil)
		store.Put("b2", map[string]any{"session_id": "b2", "name": "Legacy"})

		view, err := svc.Breakdown(ctx, "anyone", "b2")

		require.NoError(t, err)
		assert.Equal(t, "Legacy", view.SessionName)
		assert.Equal(t, []model.AudioSegment{}, view.Timeline.Audio)
		assert.Nil(t, store.Doc("b2")["timeline"])
	})

	t.Run("missing session", func(t *testing.T) {
		svc, _, _ := newTestService(&testutil.ScriptedGenerator{}, nil)
		_, err := svc.Breakdown(ctx, "m1", "nope")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestSessionService_VideoURL(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(&testutil.ScriptedGenerator{}, nil)
	store.Put("v1", map[string]any{"sessionId": "v1", "mentorId": "m1", "uploadedFile": "https://cdn.example.com/v1.mp4"})
	store.Put("v2", map[string]any{"sessionId": "v2", "mentorId": "m1"})

	url, err := svc.VideoURL(ctx, "m1", "v1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v1.mp4", url)

	_, err = svc.VideoURL(ctx, "m2", "v1")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))

	_, err = svc.VideoURL(ctx, "m1", "v2")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}

func TestSessionService_List(t *testing.T) {
	ctx := context.Background()
	gen := &testutil.ScriptedGenerator{}
	svc, store, _ := newTestService(gen, nil)
	store.Put("l1", map[string]any{
		"sessionId": "l1",
		"mentorId":  "m1",
		"userId":    "u1",
		"metrics": []any{
			map[string]any{"name": "Clarity", "score": 80},
			map[string]any{"name": "Pacing", "score": 61},
		},
	})
	store.Put("l2", map[string]any{
		"sessionId":   "l2",
		"mentorId":    "m1",
		"weakMoments": []any{map[string]any{"timestamp": "00:00:10", "message": "x"}},
	})
	store.Put("l3", map[string]any{"sessionId": "l3", "mentorId": "m2"})

	summaries, err := svc.ListByMentor(ctx, "m1", 0, 0)

	require.NoError(t, err)
	require.Len(t, summaries, 2)
	byID := map[string]model.SessionSummary{}
	for _, s := range summaries {
		byID[s.SessionID] = s
	}
	require.NotNil(t, byID["l1"].Score)
	assert.Equal(t, 71, *byID["l1"].Score)
	assert.Nil(t, byID["l2"].Score)
	assert.Equal(t, 1, byID["l2"].WeakMomentCount)
	assert.Equal(t, "Session l2", byID["l2"].SessionName)
	assert.NotNil(t, byID["l2"].CreatedAt)
	assert.Zero(t, gen.Calls(), "listings never heal")

	byUser, err := svc.ListByUser(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "l1", byUser[0].ID)

	store.Err = testutil.ErrStoreDown
	_, err = svc.ListByMentor(ctx, "m1", 0, 0)
	assert.Equal(t, apperrors.ErrCodeDatabase, apperrors.GetCode(err))
}

func TestSessionService_Backfill(t *testing.T) {
	ctx := context.Background()
	gen := &testutil.ScriptedGenerator{Fallback: testutil.CompleteSynthesis}
	svc, store, _ := newTestService(gen, nil)
	store.Put("f1", map[string]any{"sessionId": "f1"})
	store.Put("f2", map[string]any{"sessionId": "f2", "timeline": map[string]any{
		"audio": []any{map[string]any{"startTime": 0, "endTime": 5}},
		"video": []any{map[string]any{"startTime": 0, "endTime": 5}},
	}})

	report, err := svc.Backfill(ctx, 10)

	require.NoError(t, err)
	assert.Equal(t, BackfillReport{Scanned: 1, Refilled: 1}, report)
	timeline, _ := store.Doc("f1")["timeline"].(map[string]any)
	assert.Len(t, timeline["audio"], 1)
}

func TestSessionService_Migrate(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(&testutil.ScriptedGenerator{}, nil)
	store.Put("g1", map[string]any{"session_id": "g1", "weak_moments": []any{map[string]any{"time": 5, "message": "m"}}})
	store.Put("g2", map[string]any{"sessionId": "g2"})

	var backup bytes.Buffer
	report, err := svc.Migrate(ctx, 0, &backup)

	require.NoError(t, err)
	assert.Equal(t, BackfillReport{Scanned: 2, Degraded: 2}, report)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal(backup.Bytes(), &docs))
	assert.Len(t, docs, 2)

	migrated := store.Doc("g1")
	assert.Equal(t, "g1", migrated["sessionId"])
	assert.Len(t, migrated["weakMoments"], 1)
	assert.NotNil(t, migrated["timeline"])

	t.Run("is audited", func(t *testing.T) {
		var buf bytes.Buffer
		original := log.Logger
		log.Logger = zerolog.New(&buf)
		t.Cleanup(func() { log.Logger = original })

		_, err := svc.Migrate(ctx, 1, nil)
		require.NoError(t, err)

		var found map[string]any
		for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
			var entry map[string]any
			require.NoError(t, json.Unmarshal(line, &entry))
			if entry["event_type"] == "session_migrate" {
				found = entry
			}
		}
		require.NotNil(t, found)
		assert.Equal(t, "security", found["audit"])
		assert.Equal(t, float64(1), found["scanned"])
		assert.Equal(t, false, found["backup"])
	})
}

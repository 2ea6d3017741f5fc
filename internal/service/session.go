package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mentorscore/session-api/internal/audit"
	"github.com/mentorscore/session-api/internal/cache"
	"github.com/mentorscore/session-api/internal/config"
	"github.com/mentorscore/session-api/internal/enrich"
	apperrors "github.com/mentorscore/session-api/internal/errors"
	"github.com/mentorscore/session-api/internal/gapfill"
	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/normalize"
	"github.com/mentorscore/session-api/internal/observability"
	"github.com/mentorscore/session-api/internal/projection"
	"github.com/mentorscore/session-api/internal/repository"
	"github.com/mentorscore/session-api/internal/sse"
	"github.com/mentorscore/session-api/internal/util"
)

// EventPublisher is implemented by *sse.Broker.
type EventPublisher interface {
	Publish(ctx context.Context, mentorID string, event sse.Event) error
}

type WriteResult struct {
	Session  model.PublicSessionView `json:"session"`
	Filled   []string                `json:"filled,omitempty"`
	Degraded bool                    `json:"degraded,omitempty"`
}

type ImportOptions struct {
	// MentorID and UserID are applied to documents that carry none.
	MentorID string
	UserID   string
	// FillGaps runs the gap filler for every imported document.
	FillGaps bool
}

// AnalysisRequest attaches pre-computed analysis and diarization payloads to a
// new session for a video.
type AnalysisRequest struct {
	SessionID   string          `json:"sessionId"`
	SessionName string          `json:"sessionName"`
	VideoURL    string          `json:"videoUrl"`
	UserID      string          `json:"userId"`
	Duration    *int            `json:"duration"`
	Analysis    json.RawMessage `json:"analysis"`
	Diarization json.RawMessage `json:"diarization"`
}

type BackfillReport struct {
	Scanned  int `json:"scanned"`
	Refilled int `json:"refilled"`
	Degraded int `json:"degraded"`
	Failed   int `json:"failed"`
}

type SessionService struct {
	repo      repository.SessionRepository
	filler    *gapfill.Filler
	projector *projection.Projector
	views     *cache.ViewCache
	events    EventPublisher

	fillBudget time.Duration
}

func NewSessionService(
	repo repository.SessionRepository,
	filler *gapfill.Filler,
	projector *projection.Projector,
	views *cache.ViewCache,
	events EventPublisher,
) *SessionService {
	if filler == nil {
		filler = gapfill.NewFiller(nil)
	}
	return &SessionService{
		repo:       repo,
		filler:     filler,
		projector:  projector,
		views:      views,
		events:     events,
		fillBudget: config.DefaultGapFillBudget,
	}
}

// SetFillBudget bounds the generator calls made for one write.
func (s *SessionService) SetFillBudget(d time.Duration) {
	if d > 0 {
		s.fillBudget = d
	}
}

// NewSessionID returns an identifier of the form session_<8 hex>.
func NewSessionID() string {
	return "session_" + shortID()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Create stores a new session built from a loosely shaped document. A
// sessionId is generated when the document has none.
func (s *SessionService) Create(ctx context.Context, raw map[string]any) (*WriteResult, error) {
	doc := withSessionID(raw)
	res := s.build(ctx, doc)
	rec := stampTimes(res.Record, nil)
	if !util.IsValidIdentifier(rec.SessionID) {
		return nil, apperrors.InvalidInput("sessionId", "must be 1-128 letters, digits or ._:-")
	}

	wctx, cancel := writeContext(ctx)
	defer cancel()

	_, err := s.repo.Create(wctx, rec)
	observability.RecordSessionWrite("create", err)
	if errors.Is(err, repository.ErrDuplicateSession) {
		return nil, apperrors.AlreadyExists("Session")
	}
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("create session: %w", err))
	}

	log.Info().
		Str("sessionId", rec.SessionID).
		Str("mentorId", rec.MentorID).
		Strs("filled", res.Filled).
		Bool("degraded", res.Degraded).
		Msg("session created")

	s.afterWrite(wctx, rec, model.EventSessionCreated)
	return &WriteResult{
		Session:  projection.View(projection.Finalize(rec)),
		Filled:   res.Filled,
		Degraded: res.Degraded,
	}, nil
}

// IngestAnalysis creates a session for mentorID from pre-computed collaborator
// payloads. Metrics, transcript and weak moments are derived from them.
func (s *SessionService) IngestAnalysis(ctx context.Context, mentorID string, req AnalysisRequest) (*WriteResult, error) {
	if !util.IsValidVideoURL(req.VideoURL) {
		return nil, apperrors.InvalidInput("videoUrl", "must be an absolute http(s) URL")
	}
	if len(req.Analysis) == 0 && len(req.Diarization) == 0 {
		return nil, apperrors.MissingRequired("analysis")
	}

	doc := map[string]any{
		"mentorId": mentorID,
		"videoUrl": req.VideoURL,
	}
	if req.SessionID != "" {
		doc["sessionId"] = req.SessionID
	}
	if req.SessionName != "" {
		doc["sessionName"] = req.SessionName
	}
	if req.UserID != "" {
		doc["userId"] = req.UserID
	}
	if req.Duration != nil {
		doc["duration"] = *req.Duration
	}
	if len(req.Analysis) > 0 {
		doc["analysis"] = req.Analysis
	}
	if len(req.Diarization) > 0 {
		doc["diarization"] = req.Diarization
	}
	return s.Create(ctx, doc)
}

// Import upserts every document. Failures are reported per item and do not
// stop the batch.
func (s *SessionService) Import(ctx context.Context, raws []map[string]any, opts ImportOptions) model.ImportResult {
	var result model.ImportResult
	for i, raw := range raws {
		sessionID, err := s.importOne(ctx, raw, opts)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, model.ImportError{Index: i, SessionID: sessionID, Error: err.Error()})
			continue
		}
		result.Imported++
	}

	log.Info().
		Int("imported", result.Imported).
		Int("failed", result.Failed).
		Msg("session import finished")
	return result
}

func (s *SessionService) importOne(ctx context.Context, raw map[string]any, opts ImportOptions) (string, error) {
	doc := withSessionID(raw)
	if opts.MentorID != "" && normalize.Normalize(doc).MentorID == "" {
		doc["mentorId"] = opts.MentorID
	}
	if opts.UserID != "" && normalize.Normalize(doc).UserID == "" {
		doc["userId"] = opts.UserID
	}

	var rec model.SessionRecord
	if opts.FillGaps {
		rec = s.build(ctx, doc).Record
	} else {
		rec = enrich.Apply(normalize.Normalize(doc))
	}
	rec = stampTimes(rec, nil)
	if !util.IsValidIdentifier(rec.SessionID) {
		return rec.SessionID, errors.New("invalid sessionId")
	}

	wctx, cancel := writeContext(ctx)
	defer cancel()

	_, err := s.repo.Upsert(wctx, rec)
	observability.RecordSessionWrite("import", err)
	if err != nil {
		log.Error().Err(err).Str("sessionId", rec.SessionID).Msg("failed to import session")
		return rec.SessionID, errors.New("failed to store session")
	}
	s.views.Invalidate(wctx, rec.SessionID)
	return rec.SessionID, nil
}

// Update replaces whole top-level fields of a stored session. The merged
// document is normalized again before it is written back.
func (s *SessionService) Update(ctx context.Context, sessionID string, fields map[string]any) (*WriteResult, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !normalize.IsRecordKey(k) {
			return nil, apperrors.InvalidInput(k, "unknown field")
		}
		switch normalize.CanonicalKey(k) {
		case "sessionId", "created_at", "updated_at":
			return nil, apperrors.InvalidInput(k, "field is read-only")
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, apperrors.ValidationError("No fields to update")
	}
	slices.Sort(keys)

	stored, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if stored == nil {
		return nil, apperrors.NotFound("Session")
	}
	doc, err := normalize.DecodeDocument(stored.Doc)
	if err != nil {
		return nil, apperrors.Internal("Stored session is unreadable").WithCause(err)
	}

	changed := make(map[string]bool, len(keys))
	for _, k := range keys {
		key := normalize.CanonicalKey(k)
		doc[key] = fields[k]
		changed[key] = true
	}

	rec := normalize.Normalize(doc)
	rec.SessionID = stored.SessionID
	rec = stampTimes(rec, &stored.CreatedAt)

	canonical := normalize.Document(rec)
	patch := map[string]any{"updated_at": canonical["updated_at"]}
	for key := range changed {
		patch[key] = canonical[key]
	}

	updated, err := s.repo.UpdateFields(ctx, sessionID, patch)
	observability.RecordSessionWrite("update", err)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("update session: %w", err))
	}
	if updated == nil {
		return nil, apperrors.NotFound("Session")
	}

	log.Info().
		Str("sessionId", sessionID).
		Strs("fields", keys).
		Msg("session updated")

	s.afterWrite(ctx, rec, model.EventSessionUpdated)
	return &WriteResult{Session: projection.View(projection.Finalize(rec))}, nil
}

// Breakdown returns the public view of a session owned by mentorID. Sessions
// of other mentors are reported as not found.
func (s *SessionService) Breakdown(ctx context.Context, mentorID, sessionID string) (*model.PublicSessionView, error) {
	entry, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if entry.MentorID != "" && entry.MentorID != mentorID {
		return nil, apperrors.NotFound("Session")
	}
	return &entry.View, nil
}

func (s *SessionService) lookup(ctx context.Context, sessionID string) (*cache.Entry, error) {
	if entry, ok := s.views.Get(ctx, sessionID); ok {
		return entry, nil
	}

	stored, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if stored == nil {
		return nil, apperrors.NotFound("Session")
	}
	doc, err := normalize.DecodeDocument(stored.Doc)
	if err != nil {
		return nil, apperrors.Internal("Stored session is unreadable").WithCause(err)
	}

	view, res := s.projector.Project(ctx, doc)
	if view.SessionID == "" {
		view.ID, view.SessionID = stored.SessionID, stored.SessionID
	}
	if len(res.Filled) > 0 {
		s.persistHealed(ctx, stored.SessionID, res)
	}

	entry := cache.Entry{MentorID: res.Record.MentorID, View: view}
	if stored.MentorID != nil {
		entry.MentorID = *stored.MentorID
	}
	s.views.Set(ctx, entry)
	return &entry, nil
}

// persistHealed writes the collections filled at read time back as whole
// top-level fields. Failures only cost a repeated heal on the next read.
func (s *SessionService) persistHealed(ctx context.Context, sessionID string, res gapfill.Result) {
	canonical := normalize.Document(res.Record)
	patch := map[string]any{}
	for _, path := range res.Filled {
		key, _, _ := strings.Cut(path, ".")
		if v, ok := canonical[key]; ok {
			patch[key] = v
		}
	}
	if len(patch) == 0 {
		return
	}

	_, err := s.repo.UpdateFields(ctx, sessionID, patch)
	observability.RecordSessionWrite("heal", err)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("failed to persist healed fields")
		return
	}
	log.Debug().Str("sessionId", sessionID).Strs("filled", res.Filled).Msg("healed fields persisted")
}

// VideoURL returns the recording URL of a session owned by mentorID.
func (s *SessionService) VideoURL(ctx context.Context, mentorID, sessionID string) (string, error) {
	stored, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return "", apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if stored == nil || (stored.MentorID != nil && *stored.MentorID != mentorID) {
		return "", apperrors.NotFound("Session")
	}
	doc, err := normalize.DecodeDocument(stored.Doc)
	if err != nil {
		return "", apperrors.Internal("Stored session is unreadable").WithCause(err)
	}
	url := normalize.Normalize(doc).VideoURL
	if url == "" {
		return "", apperrors.NotFound("Video")
	}
	return url, nil
}

func (s *SessionService) ListByMentor(ctx context.Context, mentorID string, limit, offset int) ([]model.SessionSummary, error) {
	return s.list(ctx, model.SessionFilter{MentorID: mentorID, Limit: limit, Offset: offset})
}

func (s *SessionService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.SessionSummary, error) {
	return s.list(ctx, model.SessionFilter{UserID: userID, Limit: limit, Offset: offset})
}

func (s *SessionService) list(ctx context.Context, filter model.SessionFilter) ([]model.SessionSummary, error) {
	if filter.Limit <= 0 || filter.Limit > config.MaxListLimit {
		filter.Limit = config.DefaultListLimit
	}
	stored, err := s.repo.FindMany(ctx, filter)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("list sessions: %w", err))
	}

	out := make([]model.SessionSummary, 0, len(stored))
	for _, st := range stored {
		out = append(out, summarize(st))
	}
	return out, nil
}

// summarize builds a listing entry without healing; listings never call the
// generator.
func summarize(st model.StoredSession) model.SessionSummary {
	doc, _ := normalize.DecodeDocument(st.Doc)
	rec := projection.Finalize(normalize.Normalize(doc))
	if rec.SessionID == "" {
		rec.SessionID = st.SessionID
	}
	view := projection.View(rec)

	createdAt := st.CreatedAt
	if rec.CreatedAt != nil {
		createdAt = *rec.CreatedAt
	}
	sum := model.SessionSummary{
		ID:              view.ID,
		SessionID:       view.SessionID,
		SessionName:     view.SessionName,
		VideoURL:        view.VideoURL,
		Duration:        view.Duration,
		WeakMomentCount: len(view.WeakMoments),
		CreatedAt:       &createdAt,
	}
	if score, ok := rec.OverallScore(); ok {
		sum.Score = &score
	}
	return sum
}

// Refill normalizes, enriches and gap-fills one stored session and writes it
// back whole.
func (s *SessionService) Refill(ctx context.Context, sessionID string) (*WriteResult, error) {
	stored, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if stored == nil {
		return nil, apperrors.NotFound("Session")
	}
	doc, err := normalize.DecodeDocument(stored.Doc)
	if err != nil {
		return nil, apperrors.Internal("Stored session is unreadable").WithCause(err)
	}

	res := s.build(ctx, doc)
	rec := res.Record
	rec.SessionID = stored.SessionID
	rec = stampTimes(rec, &stored.CreatedAt)

	wctx, cancel := writeContext(ctx)
	defer cancel()

	_, err = s.repo.Upsert(wctx, rec)
	observability.RecordSessionWrite("refill", err)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("refill session: %w", err))
	}

	s.afterWrite(wctx, rec, model.EventSessionUpdated)
	return &WriteResult{
		Session:  projection.View(projection.Finalize(rec)),
		Filled:   res.Filled,
		Degraded: res.Degraded,
	}, nil
}

// Backfill refills up to limit sessions whose audio or video timeline is
// empty.
func (s *SessionService) Backfill(ctx context.Context, limit int) (BackfillReport, error) {
	stored, err := s.repo.FindMany(ctx, model.SessionFilter{MissingTimeline: true, Limit: limit})
	if err != nil {
		return BackfillReport{}, apperrors.Database(fmt.Errorf("find incomplete sessions: %w", err))
	}
	report := s.refillAll(ctx, stored)

	log.Info().
		Int("scanned", report.Scanned).
		Int("refilled", report.Refilled).
		Int("degraded", report.Degraded).
		Int("failed", report.Failed).
		Msg("backfill pass finished")
	return report, nil
}

// Migrate refills up to limit stored sessions (all when limit is 0). When
// backup is set the original documents are written to it first as a JSON
// array.
func (s *SessionService) Migrate(ctx context.Context, limit int, backup io.Writer) (BackfillReport, error) {
	stored, err := s.repo.FindMany(ctx, model.SessionFilter{Limit: limit})
	if err != nil {
		return BackfillReport{}, apperrors.Database(fmt.Errorf("list sessions: %w", err))
	}

	if backup != nil {
		docs := make([]json.RawMessage, 0, len(stored))
		for _, st := range stored {
			docs = append(docs, st.Doc)
		}
		enc := json.NewEncoder(backup)
		enc.SetIndent("", "  ")
		if err := enc.Encode(docs); err != nil {
			return BackfillReport{}, fmt.Errorf("write backup: %w", err)
		}
	}

	report := s.refillAll(ctx, stored)
	log.Info().
		Int("scanned", report.Scanned).
		Int("refilled", report.Refilled).
		Int("failed", report.Failed).
		Msg("migration finished")

	audit.Log(ctx, audit.Event{
		Type: audit.EventSessionMigrate,
		Details: map[string]interface{}{
			"scanned":  report.Scanned,
			"refilled": report.Refilled,
			"failed":   report.Failed,
			"backup":   backup != nil,
		},
	})
	return report, nil
}

func (s *SessionService) refillAll(ctx context.Context, stored []model.StoredSession) BackfillReport {
	var report BackfillReport
	for _, st := range stored {
		if ctx.Err() != nil {
			break
		}
		report.Scanned++
		res, err := s.Refill(ctx, st.SessionID)
		if err != nil {
			report.Failed++
			log.Error().Err(err).Str("sessionId", st.SessionID).Msg("failed to refill session")
			continue
		}
		if len(res.Filled) > 0 {
			report.Refilled++
		}
		if res.Degraded {
			report.Degraded++
		}
	}
	return report
}

// build runs a document through normalization, enrichment, gap filling and
// summarization.
func (s *SessionService) build(ctx context.Context, doc map[string]any) gapfill.Result {
	ctx, cancel := s.fillContext(ctx)
	defer cancel()

	rec := enrich.Apply(normalize.Normalize(doc))
	res := s.filler.Fill(ctx, rec, enrich.Hints(rec))

	if res.Record.AISummary == "" {
		text := enrich.TranscriptText(res.Record)
		if summary, ok := s.filler.Summarize(ctx, text, config.SummaryTranscriptChars); ok {
			res.Record.AISummary = summary
			res.Filled = append(res.Filled, "aiSummary")
		}
	}
	return res
}

// fillContext bounds every generator call of one write by the fill budget.
// When the caller has a deadline, the budget ends SessionWriteTimeout before
// it.
func (s *SessionService) fillContext(ctx context.Context) (context.Context, context.CancelFunc) {
	budget := s.fillBudget
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline) - config.SessionWriteTimeout; left < budget {
			budget = left
		}
	}
	return context.WithTimeout(ctx, budget)
}

// writeContext detaches a store write from the caller's deadline and
// cancellation. Gap filling that ran out of time still ends in a stored
// session.
func writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), config.SessionWriteTimeout)
}

func (s *SessionService) afterWrite(ctx context.Context, rec model.SessionRecord, eventType string) {
	s.views.Invalidate(ctx, rec.SessionID)
	if s.events == nil || rec.MentorID == "" {
		return
	}
	event := sse.NewSessionEvent(eventType, rec.SessionID, rec.MentorID)
	if err := s.events.Publish(ctx, rec.MentorID, event); err != nil {
		log.Warn().Err(err).Str("sessionId", rec.SessionID).Msg("failed to publish session event")
	}
}

// withSessionID returns an unwrapped copy of raw that carries a sessionId.
func withSessionID(raw map[string]any) map[string]any {
	doc, _ := normalize.Unwrap(raw).(map[string]any)
	doc = maps.Clone(doc)
	if doc == nil {
		doc = map[string]any{}
	}
	if normalize.SessionID(doc) == "" {
		doc["sessionId"] = NewSessionID()
	}
	return doc
}

// stampTimes sets updated_at to now. A missing created_at is taken from
// fallback, or set to now.
func stampTimes(rec model.SessionRecord, fallback *time.Time) model.SessionRecord {
	now := time.Now().UTC()
	switch {
	case rec.CreatedAt != nil:
	case fallback != nil && !fallback.IsZero():
		c := fallback.UTC()
		rec.CreatedAt = &c
	default:
		rec.CreatedAt = &now
	}
	rec.UpdatedAt = &now
	return rec
}

package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mentorscore/session-api/internal/audit"
	apperrors "github.com/mentorscore/session-api/internal/errors"
	"github.com/mentorscore/session-api/internal/service"
	"github.com/mentorscore/session-api/internal/util"
)

type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

// Routes are the ingest routes under /api/sessions. Authentication is
// applied by the caller.
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Post("/import", h.Import)
	r.Put("/{sessionId}", h.Update)

	return r
}

// POST /api/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var doc map[string]any
	if err := decodeJSON(r, &doc); err != nil {
		writeError(w, err)
		return
	}
	if doc == nil {
		writeError(w, apperrors.ValidationError("Request body must be a JSON object"))
		return
	}

	result, err := h.sessionService.Create(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionCreate,
		SessionID: result.Session.SessionID,
		Details:   map[string]interface{}{"filled": result.Filled, "degraded": result.Degraded},
	})
	writeJSON(w, http.StatusCreated, result)
}

// POST /api/sessions/import?mentorId=&userId=&fill=
// The body is a JSON array of documents or {"sessions": [...]}.
func (h *SessionHandler) Import(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	docs, err := importDocuments(body)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	opts := service.ImportOptions{
		MentorID: q.Get("mentorId"),
		UserID:   q.Get("userId"),
	}
	for _, id := range []string{opts.MentorID, opts.UserID} {
		if id != "" && !util.IsValidIdentifier(id) {
			writeError(w, apperrors.InvalidInput("mentorId/userId", "invalid identifier"))
			return
		}
	}
	if fill := q.Get("fill"); fill != "" {
		opts.FillGaps, _ = strconv.ParseBool(fill)
	}

	result := h.sessionService.Import(r.Context(), docs, opts)

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventSessionImport,
		MentorID: opts.MentorID,
		Details:  map[string]interface{}{"imported": result.Imported, "failed": result.Failed},
	})
	writeJSON(w, http.StatusOK, result)
}

func importDocuments(body json.RawMessage) ([]map[string]any, error) {
	var docs []map[string]any
	if err := unmarshalNumbers(body, &docs); err == nil {
		return docs, nil
	}
	var wrapped struct {
		Sessions []map[string]any `json:"sessions"`
	}
	if err := unmarshalNumbers(body, &wrapped); err != nil || wrapped.Sessions == nil {
		return nil, apperrors.ValidationError("Expected an array of sessions or {\"sessions\": [...]}")
	}
	return wrapped.Sessions, nil
}

// PUT /api/sessions/{sessionId}
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionId")
	if err != nil {
		writeError(w, err)
		return
	}

	var fields map[string]any
	if err := decodeJSON(r, &fields); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.sessionService.Update(r.Context(), sessionID, fields)
	if err != nil {
		writeError(w, err)
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionUpdate,
		SessionID: sessionID,
		Details:   map[string]interface{}{"fields": keys},
	})
	writeJSON(w, http.StatusOK, result)
}

// GET /api/users/{userId}/sessions
func (h *SessionHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, err)
		return
	}

	page := ParsePagination(r)
	sessions, err := h.sessionService.ListByUser(r.Context(), userID, page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":   userID,
		"sessions": sessions,
	})
}

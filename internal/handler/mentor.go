package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mentorscore/session-api/internal/audit"
	"github.com/mentorscore/session-api/internal/service"
)

type MentorHandler struct {
	sessionService *service.SessionService
	mentorService  *service.MentorService
	ingestAuth     func(http.Handler) http.Handler
}

func NewMentorHandler(
	sessionService *service.SessionService,
	mentorService *service.MentorService,
	ingestAuth func(http.Handler) http.Handler,
) *MentorHandler {
	return &MentorHandler{
		sessionService: sessionService,
		mentorService:  mentorService,
		ingestAuth:     ingestAuth,
	}
}

// Routes serves /api/mentor. The event stream is mounted by the caller,
// outside the request timeout.
func (h *MentorHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/{mentorId}", func(r chi.Router) {
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{sessionId}/breakdown", h.Breakdown)
		r.Get("/sessions/{sessionId}/video", h.Video)
		r.Get("/snapshot", h.Snapshot)
		r.Get("/skills", h.Skills)

		r.Group(func(r chi.Router) {
			if h.ingestAuth != nil {
				r.Use(h.ingestAuth)
			}
			r.Post("/sessions/analysis", h.IngestAnalysis)
		})
	})

	return r
}

// GET /api/mentor/{mentorId}/sessions
func (h *MentorHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathID(r, "mentorId")
	if err != nil {
		writeError(w, err)
		return
	}

	page := ParsePagination(r)
	sessions, err := h.sessionService.ListByMentor(r.Context(), mentorID, page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mentorId": mentorID,
		"sessions": sessions,
	})
}

// GET /api/mentor/{mentorId}/sessions/{sessionId}/breakdown
func (h *MentorHandler) Breakdown(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathID(r, "mentorId")
	if err != nil {
		writeError(w, err)
		return
	}
	sessionID, err := pathID(r, "sessionId")
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.sessionService.Breakdown(r.Context(), mentorID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// GET /api/mentor/{mentorId}/sessions/{sessionId}/video
func (h *MentorHandler) Video(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathID(r, "mentorId")
	if err != nil {
		writeError(w, err)
		return
	}
	sessionID, err := pathID(r, "sessionId")
	if err != nil {
		writeError(w, err)
		return
	}

	url, err := h.sessionService.VideoURL(r.Context(), mentorID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// GET /api/mentor/{mentorId}/snapshot
func (h *MentorHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathID(r, "mentorId")
	if err != nil {
		writeError(w, err)
		return
	}

	snapshot, err := h.mentorService.Snapshot(r.Context(), mentorID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// GET /api/mentor/{mentorId}/skills
func (h *MentorHandler) Skills(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathID(r, "mentorId")
	if err != nil {
		writeError(w, err)
		return
	}

	skills, err := h.mentorService.Skills(r.Context(), mentorID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, skills)
}

// POST /api/mentor/{mentorId}/sessions/analysis
func (h *MentorHandler) IngestAnalysis(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathID(r, "mentorId")
	if err != nil {
		writeError(w, err)
		return
	}

	var req service.AnalysisRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.sessionService.IngestAnalysis(r.Context(), mentorID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventAnalysisIngest,
		SessionID: result.Session.SessionID,
		MentorID:  mentorID,
		Details:   map[string]interface{}{"filled": result.Filled, "degraded": result.Degraded},
	})
	writeJSON(w, http.StatusCreated, result)
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/service"
)

// PublicHandler serves the unauthenticated mentor directory.
type PublicHandler struct {
	mentorService *service.MentorService
}

func NewPublicHandler(mentorService *service.MentorService) *PublicHandler {
	return &PublicHandler{mentorService: mentorService}
}

func (h *PublicHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/mentors/rankings", h.Rankings)
	r.Get("/mentors/{mentorId}", h.Profile)

	return r
}

// MentorsRoutes serves the mentor list and search under /api/mentors.
func (h *PublicHandler) MentorsRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListMentors)
	r.Get("/search", h.SearchMentors)

	return r
}

// GET /api/mentors
func (h *PublicHandler) ListMentors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mentorService.Mentors())
}

// GET /api/mentors/search?q=
func (h *PublicHandler) SearchMentors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mentorService.Search(r.URL.Query().Get("q")))
}

// GET /api/public/mentors/rankings?subject=&language=&experience=&window=
func (h *PublicHandler) Rankings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RankingFilter{
		Subject:    q.Get("subject"),
		Language:   q.Get("language"),
		Experience: q.Get("experience"),
		Window:     q.Get("window"),
	}

	writeJSON(w, http.StatusOK, h.mentorService.Rankings(filter))
}

// GET /api/public/mentors/{mentorId}
func (h *PublicHandler) Profile(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathID(r, "mentorId")
	if err != nil {
		writeError(w, err)
		return
	}

	profile, err := h.mentorService.Profile(mentorID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

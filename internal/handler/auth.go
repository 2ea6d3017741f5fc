package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mentorscore/session-api/internal/audit"
	apperrors "github.com/mentorscore/session-api/internal/errors"
	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/service"
)

type AuthHandler struct {
	authService  *service.AuthService
	loginLimiter func(http.Handler) http.Handler
}

func NewAuthHandler(authService *service.AuthService, loginLimiter func(http.Handler) http.Handler) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		loginLimiter: loginLimiter,
	}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if h.loginLimiter != nil {
			r.Use(h.loginLimiter)
		}
		r.Post("/login", h.Login)
	})
	r.Post("/register", h.Register)

	return r
}

type loginRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Role     model.UserRole `json:"role"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.authService.Login(r.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		if code := apperrors.GetCode(err); code == apperrors.ErrCodeUnauthorized || code == apperrors.ErrCodeForbidden {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventLoginFailure,
				Details: map[string]interface{}{"email": service.NormalizeEmail(req.Email), "reason": string(code)},
			})
		}
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventLoginSuccess,
		Details: map[string]interface{}{"userId": user.ID, "role": string(user.Role)},
	})
	writeJSON(w, http.StatusOK, model.LoginResult{
		Message: "Login successful",
		ID:      user.ID,
		Name:    user.Name,
		Email:   user.Email,
		Role:    user.Role,
	})
}

// POST /api/auth/register. Accounts are created with sessionctl only.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	writeError(w, apperrors.Forbidden("User registration is disabled. Only predefined users can log in."))
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mentorscore/session-api/internal/audit"
	apperrors "github.com/mentorscore/session-api/internal/errors"
	"github.com/mentorscore/session-api/internal/util"
)

// IngestAuthMiddleware guards the write endpoints with a static bearer token.
// Only the sha256 hex digest of the token is configured. An empty digest
// disables the check.
type IngestAuthMiddleware struct {
	tokenHash string
}

func NewIngestAuthMiddleware(tokenHash string) *IngestAuthMiddleware {
	return &IngestAuthMiddleware{tokenHash: strings.ToLower(strings.TrimSpace(tokenHash))}
}

func (m *IngestAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.tokenHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": "missing token"},
			})
			writeError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		if !util.ConstantTimeEqual(util.HashToken(token), m.tokenHash) {
			log.Warn().Str("token", util.MaskToken(token)).Msg("ingest auth: invalid token attempt")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": "invalid token"},
			})
			writeError(w, apperrors.InvalidToken("Invalid token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

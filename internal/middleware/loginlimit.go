package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mentorscore/session-api/internal/audit"
	apperrors "github.com/mentorscore/session-api/internal/errors"
)

const (
	loginMaxAttempts    = 5
	loginWindowDuration = time.Minute
	loginCleanupPeriod  = 5 * time.Minute
)

type loginAttempt struct {
	count       int
	windowStart time.Time
}

// LoginRateLimiter allows loginMaxAttempts login requests per client IP in a
// fixed window.
type LoginRateLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*loginAttempt
	lastCleanup time.Time
	now         func() time.Time
}

func NewLoginRateLimiter() *LoginRateLimiter {
	return &LoginRateLimiter{
		attempts:    make(map[string]*loginAttempt),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *LoginRateLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < loginCleanupPeriod {
		return
	}
	l.lastCleanup = now

	for ip, attempt := range l.attempts {
		if now.Sub(attempt.windowStart) > loginWindowDuration {
			delete(l.attempts, ip)
		}
	}
}

// allow counts one attempt for ip. When denied, it also returns the time left
// in the current window.
func (l *LoginRateLimiter) allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	attempt, exists := l.attempts[ip]
	if !exists || now.Sub(attempt.windowStart) > loginWindowDuration {
		l.attempts[ip] = &loginAttempt{count: 1, windowStart: now}
		return true, 0
	}

	if attempt.count >= loginMaxAttempts {
		return false, loginWindowDuration - now.Sub(attempt.windowStart)
	}

	attempt.count++
	return true, 0
}

func (l *LoginRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, wait := l.allow(clientIP(r))
		if !allowed {
			seconds := int(wait.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"scope": "login"},
			})
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}

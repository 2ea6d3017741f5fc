package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	apperrors "github.com/mentorscore/session-api/internal/errors"
)

const (
	maxVisitors     = 10000
	cleanupInterval = time.Minute
	visitorTTL      = 5 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is an in-process per-key token bucket holding perMinute
// tokens, refilled evenly over a minute. Redis is not consulted.
type RateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	perMinute   int
	lastCleanup time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		visitors:    make(map[string]*visitor),
		perMinute:   perMinute,
		lastCleanup: time.Now(),
	}
}

// Decision is the outcome of one RateLimiter.Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (rl *RateLimiter) Allow(key string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.cleanup(now)

	v, ok := rl.visitors[key]
	if !ok {
		every := time.Minute / time.Duration(rl.perMinute)
		v = &visitor{limiter: rate.NewLimiter(rate.Every(every), rl.perMinute)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	if v.limiter.AllowN(now, 1) {
		tokens := v.limiter.TokensAt(now)
		missing := float64(rl.perMinute) - tokens
		return Decision{
			Allowed:   true,
			Remaining: int(math.Floor(tokens)),
			ResetAt:   now.Add(time.Duration(missing / float64(v.limiter.Limit()) * float64(time.Second))),
		}
	}

	r := v.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return Decision{
		RetryAfter: delay,
		ResetAt:    now.Add(delay),
	}
}

func (rl *RateLimiter) cleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, key)
		}
	}

	// Still too many: drop arbitrary entries, they start over with a full bucket.
	for key := range rl.visitors {
		if len(rl.visitors) <= maxVisitors {
			break
		}
		delete(rl.visitors, key)
	}
}

// PublicRateLimitMiddleware limits anonymous requests per client IP.
type PublicRateLimitMiddleware struct {
	limiter *RateLimiter
	limit   int
}

// NewPublicRateLimitMiddleware allows limit requests per minute and IP. A
// limit of zero or less disables it.
func NewPublicRateLimitMiddleware(limit int) *PublicRateLimitMiddleware {
	m := &PublicRateLimitMiddleware{limit: limit}
	if limit > 0 {
		m.limiter = NewRateLimiter(limit)
	}
	return m
}

func (m *PublicRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		d := m.limiter.Allow(ip)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			log.Warn().Str("ip", ip).Dur("retryAfter", d.RetryAfter).Msg("public rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Package cache keeps projected session views in redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/observability"
	redisclient "github.com/mentorscore/session-api/internal/redis"
)

// Entry is a cached projection together with the owning mentor, so that
// ownership checks do not need the stored document.
type Entry struct {
	MentorID string                  `json:"mentorId,omitempty"`
	View     model.PublicSessionView `json:"view"`
}

// ViewCache stores projected views per sessionId. A nil cache or a
// zero TTL disables caching. Cache failures are logged and treated as misses.
type ViewCache struct {
	client *redisclient.Client
	ttl    time.Duration
}

func NewViewCache(client *redisclient.Client, ttl time.Duration) *ViewCache {
	return &ViewCache{client: client, ttl: ttl}
}

func (c *ViewCache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func (c *ViewCache) Get(ctx context.Context, sessionID string) (*Entry, bool) {
	if !c.enabled() {
		return nil, false
	}
	data, err := c.client.Get(ctx, redisclient.SessionViewKey(sessionID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("sessionId", sessionID).Msg("view cache read failed")
		}
		observability.RecordViewCache(false)
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		observability.RecordViewCache(false)
		return nil, false
	}
	observability.RecordViewCache(true)
	return &entry, true
}

func (c *ViewCache) Set(ctx context.Context, entry Entry) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	sessionID := entry.View.SessionID
	if err := c.client.Set(ctx, redisclient.SessionViewKey(sessionID), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("view cache write failed")
	}
}

func (c *ViewCache) Invalidate(ctx context.Context, sessionID string) {
	if !c.enabled() {
		return
	}
	if err := c.client.Del(ctx, redisclient.SessionViewKey(sessionID)).Err(); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("view cache invalidation failed")
	}
}

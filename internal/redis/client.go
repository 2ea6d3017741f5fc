package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

// Wrap adapts an existing go-redis client, e.g. one pointed at miniredis.
func Wrap(client *redis.Client) *Client {
	return &Client{client}
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// MentorEventChannel is the pub/sub channel for a mentor's session events.
func MentorEventChannel(mentorID string) string {
	return fmt.Sprintf("mentor:%s:sessions", mentorID)
}

// SessionViewKey caches the public view of one session.
func SessionViewKey(sessionID string) string {
	return fmt.Sprintf("session:view:%s", sessionID)
}

func RateLimitKey(key string) string {
	return fmt.Sprintf("ratelimit:%s", key)
}

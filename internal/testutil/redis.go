package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	redisclient "github.com/mentorscore/session-api/internal/redis"
)

// NewRedis starts a miniredis server for the duration of the test.
func NewRedis(t *testing.T) (*miniredis.Miniredis, *redisclient.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redisclient.Wrap(client)
}

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = original })
	return &buf
}

func TestLog(t *testing.T) {
	buf := captureLog(t)

	Log(context.Background(), Event{
		Type:      EventSessionCreate,
		SessionID: "s1",
		MentorID:  "m1",
		Details:   map[string]interface{}{"filled": []string{"metrics"}, "degraded": true},
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "security", entry["audit"])
	assert.Equal(t, "session_create", entry["event_type"])
	assert.Equal(t, "s1", entry["sessionId"])
	assert.Equal(t, "m1", entry["mentorId"])
	assert.Equal(t, true, entry["degraded"])
	assert.Equal(t, []any{"metrics"}, entry["filled"])
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/sessions", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", ClientIP(r))

	r.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.2")
	assert.Equal(t, "198.51.100.7", ClientIP(r))
}

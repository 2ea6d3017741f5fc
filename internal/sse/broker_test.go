package sse

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorscore/session-api/internal/testutil"
)

func TestBroker_PublishReachesSubscribers(t *testing.T) {
	_, client := testutil.NewRedis(t)
	broker := NewBroker(client)
	defer broker.Close()

	a := broker.Subscribe("m1")
	b := broker.Subscribe("m1")
	other := broker.Subscribe("m2")
	assert.Equal(t, 2, broker.ClientCount("m1"))
	assert.Equal(t, 3, broker.TotalClients())

	require.NoError(t, broker.Publish(context.Background(), "m1", NewSessionEvent("session.created", "s1", "m1")))

	for _, c := range []*Client{a, b} {
		select {
		case ev := <-c.Events:
			assert.Equal(t, "session.created", ev.Type)
			var data SessionEventData
			require.NoError(t, json.Unmarshal(ev.Data, &data))
			assert.Equal(t, SessionEventData{SessionID: "s1", MentorID: "m1"}, data)
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	}

	select {
	case ev := <-other.Events:
		t.Fatalf("unexpected event for other mentor: %v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroker_Unsubscribe(t *testing.T) {
	_, client := testutil.NewRedis(t)
	broker := NewBroker(client)
	defer broker.Close()

	c := broker.Subscribe("m1")
	broker.Unsubscribe(c)
	broker.Unsubscribe(c)

	assert.Equal(t, 0, broker.ClientCount("m1"))
	select {
	case <-c.Done:
	default:
		t.Fatal("done channel not closed")
	}
}

func TestBroker_CloseReleasesClients(t *testing.T) {
	_, client := testutil.NewRedis(t)
	broker := NewBroker(client)

	c := broker.Subscribe("m1")
	broker.Close()

	assert.Equal(t, 0, broker.TotalClients())
	_, open := <-c.Done
	assert.False(t, open)
}

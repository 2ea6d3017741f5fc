package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/mentorscore/session-api/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 100
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SessionEventData is the payload of session.created and session.updated.
type SessionEventData struct {
	SessionID string `json:"sessionId"`
	MentorID  string `json:"mentorId"`
}

func NewSessionEvent(eventType, sessionID, mentorID string) Event {
	data, _ := json.Marshal(SessionEventData{SessionID: sessionID, MentorID: mentorID})
	return Event{Type: eventType, Data: data}
}

type Client struct {
	MentorID string
	Events   chan Event
	Done     chan struct{}
}

// Broker fans redis pub/sub messages out to the SSE clients of this process.
// One redis subscription is held per mentor with at least one client.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // mentorID -> set of clients
	subs    map[string]context.CancelFunc
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		subs:    make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(mentorID string) *Client {
	client := &Client{
		MentorID: mentorID,
		Events:   make(chan Event, clientBufferSize),
		Done:     make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[mentorID] == nil {
		b.clients[mentorID] = make(map[*Client]bool)
		subCtx, cancel := context.WithCancel(b.ctx)
		b.subs[mentorID] = cancel
		ready := make(chan struct{})
		go b.subscribeToRedis(subCtx, mentorID, ready)
		<-ready
	}
	b.clients[mentorID][client] = true
	clientCount := len(b.clients[mentorID])
	b.mu.Unlock()

	log.Info().
		Str("mentorId", mentorID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, ok := b.clients[client.MentorID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Done)

	if len(clients) == 0 {
		delete(b.clients, client.MentorID)
		if cancel, ok := b.subs[client.MentorID]; ok {
			cancel()
			delete(b.subs, client.MentorID)
		}
	}

	log.Info().
		Str("mentorId", client.MentorID).
		Int("clientCount", len(clients)).
		Msg("sse client unsubscribed")
}

// Publish sends event to every subscriber of mentorID across all processes.
func (b *Broker) Publish(ctx context.Context, mentorID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.MentorEventChannel(mentorID), data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, mentorID string, ready chan<- struct{}) {
	channel := redisclient.MentorEventChannel(mentorID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed so that events published right
	// after Subscribe returns are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("redis subscribe failed")
	}
	close(ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Str("channel", channel).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(mentorID, event)
		}
	}
}

func (b *Broker) broadcast(mentorID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[mentorID] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("mentorId", mentorID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.subs = make(map[string]context.CancelFunc)
}

func (b *Broker) ClientCount(mentorID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[mentorID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}

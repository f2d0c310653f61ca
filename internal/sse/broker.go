package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trmquang93/planning-poker-sub001/internal/model"
	redisclient "github.com/trmquang93/planning-poker-sub001/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second

	clientBufferSize = 100
)

type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data"`
}

// Terminal reports whether the session is gone after this event.
func (e Event) Terminal() bool {
	return e.Type == string(model.EventSessionDeleted) || e.Type == string(model.EventSessionExpired)
}

type Client struct {
	SessionID string
	Events    chan Event
	Done      chan struct{}
}

type sessionClients struct {
	clients     map[*Client]bool
	lastVersion int64
	cancel      context.CancelFunc
}

// Broker fans session events out to subscribed SSE and WebSocket clients.
// With Redis configured, events travel through pub/sub so every instance
// sees them; otherwise they are delivered in-process.
type Broker struct {
	redis    *redisclient.Client
	sessions map[string]*sessionClients
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewBroker builds a broker. redisClient may be nil.
func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:    redisClient,
		sessions: make(map[string]*sessionClients),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (b *Broker) Subscribe(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Events:    make(chan Event, clientBufferSize),
		Done:      make(chan struct{}),
	}

	b.mu.Lock()
	sc := b.sessions[sessionID]
	if sc == nil {
		sc = &sessionClients{clients: make(map[*Client]bool)}
		if b.redis != nil {
			ctx, cancel := context.WithCancel(b.ctx)
			sc.cancel = cancel
			go b.subscribeToRedis(ctx, sessionID)
		}
		b.sessions[sessionID] = sc
	}
	sc.clients[client] = true
	clientCount := len(sc.clients)
	b.mu.Unlock()

	log.Info().
		Str("sessionId", sessionID).
		Int("clientCount", clientCount).
		Msg("realtime client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sc, ok := b.sessions[client.SessionID]
	if !ok || !sc.clients[client] {
		return
	}

	delete(sc.clients, client)
	close(client.Done)

	if len(sc.clients) == 0 {
		if sc.cancel != nil {
			sc.cancel()
		}
		delete(b.sessions, client.SessionID)
	}

	log.Info().
		Str("sessionId", client.SessionID).
		Int("clientCount", len(sc.clients)).
		Msg("realtime client unsubscribed")
}

// Notify turns a registry change into a broadcast of the anonymous session view.
func (b *Broker) Notify(ctx context.Context, change model.SessionEvent) error {
	event, err := NewEvent(change)
	if err != nil {
		return err
	}
	return b.Publish(ctx, event)
}

// NewEvent encodes a registry change for the wire.
func NewEvent(change model.SessionEvent) (Event, error) {
	var payload any
	if change.Session != nil {
		payload = model.NewSessionView(change.Session, "")
	} else {
		payload = map[string]string{"sessionId": change.SessionID}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      string(change.Type),
		SessionID: change.SessionID,
		Version:   change.Version,
		Data:      data,
	}, nil
}

func (b *Broker) Publish(ctx context.Context, event Event) error {
	if b.redis == nil {
		b.broadcast(event)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.SessionChannel(event.SessionID)
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, sessionID string) {
	channel := redisclient.SessionChannel(sessionID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("sessionId", sessionID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

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
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(event)
		}
	}
}

// broadcast delivers event to local clients. Snapshots older than one already
// delivered are dropped; terminal events always go through.
func (b *Broker) broadcast(event Event) {
	b.mu.Lock()
	sc := b.sessions[event.SessionID]
	if sc == nil {
		b.mu.Unlock()
		return
	}
	if !event.Terminal() && event.Version > 0 {
		if event.Version <= sc.lastVersion {
			b.mu.Unlock()
			log.Debug().
				Str("sessionId", event.SessionID).
				Int64("version", event.Version).
				Msg("dropping stale session event")
			return
		}
		sc.lastVersion = event.Version
	}
	clients := make([]*Client, 0, len(sc.clients))
	for client := range sc.clients {
		clients = append(clients, client)
	}
	b.mu.Unlock()

	for _, client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("sessionId", event.SessionID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sc := range b.sessions {
		for client := range sc.clients {
			close(client.Done)
		}
	}
	b.sessions = make(map[string]*sessionClients)
}

func (b *Broker) ClientCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sc := b.sessions[sessionID]; sc != nil {
		return len(sc.clients)
	}
	return 0
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, sc := range b.sessions {
		total += len(sc.clients)
	}
	return total
}

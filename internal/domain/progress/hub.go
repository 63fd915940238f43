package progress

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/bannerforge/bannerforge-api/internal/domain/generation"
	"github.com/bannerforge/bannerforge-api/internal/pkg/metrics"
)

// EventsChannel is the Redis channel that carries progress events between
// instances.
const EventsChannel = "generation:events"

const (
	publishTimeout = 500 * time.Millisecond
	// publishBuffer bounds the events queued for Redis. Observe drops
	// beyond it instead of stalling the pipeline.
	publishBuffer = 256
)

type envelope struct {
	UserID           string          `json:"user_id"`
	Payload          json.RawMessage `json:"payload"`
	SenderInstanceID string          `json:"sender_instance_id"`
}

// Message is what a websocket client receives.
type Message struct {
	Type  string           `json:"type"`
	Event generation.Event `json:"event"`
}

// Connection represents a WebSocket connection
type Connection struct {
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub fans generation events out to the owner's websocket connections, on
// this instance directly and on other instances through Redis Pub/Sub.
type Hub struct {
	connections map[uuid.UUID]map[*Connection]bool
	mu          sync.RWMutex

	redis  *redis.Client
	pubsub *redis.PubSub

	register   chan *Connection
	unregister chan *Connection
	publishCh  chan []byte

	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	instanceID string
}

// NewHub creates a hub. redisClient may be nil for a single instance.
func NewHub(redisClient *redis.Client) *Hub {
	return NewHubWithInstanceID(redisClient, uuid.NewString())
}

// NewHubWithInstanceID creates a hub with an explicit instance identifier.
func NewHubWithInstanceID(redisClient *redis.Client, instanceID string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		connections: make(map[uuid.UUID]map[*Connection]bool),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		publishCh:   make(chan []byte, publishBuffer),
		metrics:     metrics.Default(),
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  instanceID,
	}

	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, EventsChannel)
	}

	return h
}

// WithMetrics replaces the default collectors, mainly for tests.
func (h *Hub) WithMetrics(m *metrics.Metrics) *Hub {
	h.metrics = m
	return h
}

// Run starts the hub (call in goroutine)
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}
	if h.redis != nil {
		go h.runPublisher()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.connections[conn.UserID] == nil {
				h.connections[conn.UserID] = make(map[*Connection]bool)
			}
			h.connections[conn.UserID][conn] = true
			h.mu.Unlock()
			h.metrics.ConnectionOpened()
			log.Debug().Str("user_id", conn.UserID.String()).Msg("Progress stream connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.connections[conn.UserID]; ok {
				if _, exists := conns[conn]; exists {
					delete(conns, conn)
					close(conn.Send)
					h.metrics.ConnectionClosed()
				}
				if len(conns) == 0 {
					delete(h.connections, conn.UserID)
				}
			}
			h.mu.Unlock()
			log.Debug().Str("user_id", conn.UserID.String()).Msg("Progress stream disconnected")
		}
	}
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleRemote(msg.Payload)
		}
	}
}

// runPublisher drains publishCh so Redis latency never reaches Observe.
func (h *Hub) runPublisher() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case payload := <-h.publishCh:
			ctx, cancel := context.WithTimeout(h.ctx, publishTimeout)
			err := h.redis.Publish(ctx, EventsChannel, payload).Err()
			cancel()
			if err != nil {
				h.metrics.ProgressEvent(metrics.ResultPublishFailed)
				log.Warn().Err(err).Str("channel", EventsChannel).Msg("Redis publish failed")
			}
		}
	}
}

func (h *Hub) handleRemote(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return
	}
	if env.SenderInstanceID == h.instanceID {
		return
	}
	userID, err := uuid.Parse(env.UserID)
	if err != nil {
		return
	}
	h.sendLocal(userID, env.Payload)
}

// Observe implements generation.Observer.
func (h *Hub) Observe(e generation.Event) {
	data, err := json.Marshal(Message{Type: "generation.progress", Event: e})
	if err != nil {
		return
	}

	h.sendLocal(e.UserID, data)
	h.enqueue(e.UserID, data)
}

func (h *Hub) sendLocal(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.connections[userID] {
		select {
		case conn.Send <- data:
			h.metrics.ProgressEvent(metrics.ResultSent)
		default:
			// Buffer full
			h.metrics.ProgressEvent(metrics.ResultDropped)
		}
	}
}

// enqueue hands an event to the publisher without blocking.
func (h *Hub) enqueue(userID uuid.UUID, data []byte) {
	if h.redis == nil {
		return
	}

	payload, err := json.Marshal(envelope{
		UserID:           userID.String(),
		Payload:          data,
		SenderInstanceID: h.instanceID,
	})
	if err != nil {
		return
	}

	select {
	case h.publishCh <- payload:
	default:
		h.metrics.ProgressEvent(metrics.ResultDropped)
		log.Warn().Str("channel", EventsChannel).Msg("Publish queue full, event dropped")
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// ConnectionCount returns number of local connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.connections {
		total += len(conns)
	}
	return total
}

// Shutdown gracefully shuts down the hub
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}

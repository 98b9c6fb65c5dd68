package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Station feed events.
const (
	EventRSVPReceived   = "rsvp_received"
	EventGuestCheckedIn = "guest_checked_in"
	EventCheckInUndone  = "checkin_undone"
	EventStationCount   = "station_count"
)

// StationCountHandler is called with the total number of connected stations on this instance.
type StationCountHandler func(total int)

// Hub maintains event_id -> set of station connections and broadcasts messages.
// Uses Redis pub/sub for horizontal scaling: every instance relays what it receives from Redis.
type Hub struct {
	// eventID -> map[clientID]*Client
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per event
	total    int
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
	onCount  StationCountHandler
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishEvent(eventID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to event channels and invokes handler for incoming messages.
type RedisSubscriber interface {
	SubscribeEvent(eventID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. Either Redis side may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// SetStationCountHandler sets the callback for station count changes (e.g. metrics gauge).
func (h *Hub) SetStationCountHandler(fn StationCountHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCount = fn
}

// Register adds a client to an event room. The first station of an event starts the
// Redis subscription, outside the hub lock.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	first := h.rooms[c.EventID] == nil
	if first {
		h.rooms[c.EventID] = make(map[string]*Client)
	}
	h.rooms[c.EventID][c.ID] = c
	h.total++
	total := h.total
	onCount := h.onCount
	h.mu.Unlock()
	if onCount != nil {
		onCount(total)
	}
	if first && h.redisSub != nil {
		h.subscribe(c.EventID)
	}
	h.logger.Debug("station joined", zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

func (h *Hub) subscribe(eventID uuid.UUID) {
	cancel, err := h.redisSub.SubscribeEvent(eventID, func(event string, payload []byte) {
		h.Broadcast(eventID, event, json.RawMessage(payload))
	})
	if err != nil {
		h.logger.Warn("redis subscribe failed", zap.String("event_id", eventID.String()), zap.Error(err))
		return
	}
	h.mu.Lock()
	_, live := h.rooms[eventID]
	_, dup := h.subs[eventID]
	keep := live && !dup
	if keep {
		h.subs[eventID] = cancel
	}
	h.mu.Unlock()
	// the room emptied, or a newer Register subscribed, while this one was in flight
	if !keep {
		cancel()
	}
}

// Unregister removes a client from an event room. Cancels Redis subscription when last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	m, ok := h.rooms[c.EventID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := m[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(m, c.ID)
	h.total--
	if len(m) == 0 {
		delete(h.rooms, c.EventID)
		if cancel, ok := h.subs[c.EventID]; ok {
			cancel()
			delete(h.subs, c.EventID)
		}
	}
	total := h.total
	onCount := h.onCount
	h.mu.Unlock()
	close(c.send)
	if onCount != nil {
		onCount(total)
	}
	h.logger.Debug("station left", zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// Broadcast sends a message to all stations of an event (local only).
func (h *Hub) Broadcast(eventID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("marshal broadcast payload", zap.String("event", event), zap.Error(err))
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[eventID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish delivers an event to every station of eventID on every instance. With Redis the
// subscriber callback performs the local broadcast, so local clients receive it once.
func (h *Hub) Publish(eventID uuid.UUID, event string, payload interface{}) {
	if h.redis == nil {
		h.Broadcast(eventID, event, payload)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal publish payload", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.redis.PublishEvent(eventID, event, data); err != nil {
		h.logger.Warn("redis publish failed, broadcasting locally", zap.String("event_id", eventID.String()), zap.Error(err))
		h.Broadcast(eventID, event, json.RawMessage(data))
	}
}

// StationCount returns the number of connected stations for an event.
func (h *Hub) StationCount(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}

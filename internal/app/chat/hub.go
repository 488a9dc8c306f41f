package chat

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"roomchat/internal/pkg/logx"
)

// WsCloseCodeSlowConsumer is the close code sent to a connection whose send queue overflowed.
const WsCloseCodeSlowConsumer = 4008

// Hub delivers events to the live connections subscribed to a room.
// Delivery is fire-and-forget: a frame is queued on each subscriber's outbox
// without blocking, and a subscriber whose queue is full is shut down.
type Hub struct {
	// mu protects the rooms map.
	mu sync.RWMutex

	// rooms maps a room id to its subscribers keyed by connection id.
	rooms map[string]map[string]*Session

	logger zerolog.Logger
}

// EmitOption adjusts a single EmitToRoom call.
type EmitOption func(*emitOptions)

type emitOptions struct {
	excludeConnectionID string
}

// ExcludeConnection suppresses delivery to connID.
func ExcludeConnection(connID string) EmitOption {
	return func(o *emitOptions) {
		o.excludeConnectionID = connID
	}
}

// NewHub returns a Hub with no subscriptions.
func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]*Session),
		logger: logx.Component("Hub"),
	}
}

// Subscribe adds s to the broadcast group of roomID.
func (h *Hub) Subscribe(roomID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.rooms[roomID]
	if !ok {
		group = make(map[string]*Session)
		h.rooms[roomID] = group
	}
	group[s.ID] = s
}

// Unsubscribe removes connID from the broadcast group of roomID.
func (h *Hub) Unsubscribe(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(group, connID)
	if len(group) == 0 {
		delete(h.rooms, roomID)
	}
}

// Subscribers returns the number of connections subscribed to roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// ConnectionOf returns a connection of userID subscribed to roomID, if any.
func (h *Hub) ConnectionOf(roomID, userID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.rooms[roomID] {
		if s.UserID() == userID {
			return s
		}
	}
	return nil
}

func (h *Hub) subscribed(roomID, connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID][connID]
	return ok
}

// RoomsWithUser returns the rooms in which userID has at least one subscribed connection.
func (h *Hub) RoomsWithUser(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0)
	for roomID, group := range h.rooms {
		for _, s := range group {
			if s.UserID() == userID {
				ids = append(ids, roomID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// CloseRoom drops the broadcast group of roomID and returns its former subscribers.
func (h *Hub) CloseRoom(roomID string) []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := h.rooms[roomID]
	delete(h.rooms, roomID)

	sessions := make([]*Session, 0, len(group))
	for _, s := range group {
		sessions = append(sessions, s)
	}
	return sessions
}

// EmitToRoom marshals the event once and queues it for every subscriber of
// roomID. It returns the number of connections the frame was queued for.
func (h *Hub) EmitToRoom(roomID, event string, payload any, opts ...EmitOption) int {
	var o emitOptions
	for _, opt := range opts {
		opt(&o)
	}

	frame, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Str("room_id", roomID).Msg("Error marshaling event for broadcast.")
		return 0
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.rooms[roomID]))
	for connID, s := range h.rooms[roomID] {
		if connID != o.excludeConnectionID {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if h.deliver(s, frame) {
			delivered++
		}
	}
	return delivered
}

// Send queues an event for a single connection.
func (h *Hub) Send(s *Session, event string, payload any) bool {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Error marshaling event.")
		return false
	}
	return h.deliver(s, frame)
}

func (h *Hub) deliver(s *Session, frame []byte) bool {
	if s.outbox.Enqueue(frame) {
		return true
	}

	h.logger.Warn().
		Str("conn_id", s.ID).
		Str("user_id", s.UserID()).
		Msg("Client send queue full or closed, shutting connection down.")

	s.outbox.Shutdown(WsCloseCodeSlowConsumer, "send queue overflow")
	return false
}

func encodeEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundEnvelope{Type: event, Payload: payload})
}

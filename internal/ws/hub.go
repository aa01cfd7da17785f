package ws

import (
	"sync"

	"github.com/charmbracelet/log"
)

// EventQueueUpdated tells subscribers the room's queue changed. It
// carries no data; clients re-fetch the queue endpoint, so a dropped
// delivery only delays the repaint until the next event or poll.
const EventQueueUpdated = "update_queue"

// Subscriber is one live listener on a room. The websocket handler
// wraps its connection in one; tests use in-memory fakes.
type Subscriber interface {
	Send(event string) error
}

// Hub is the per-process fan-out of room events. One instance is built
// by the composition root and injected everywhere it is needed; there
// is no package-level hub.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[Subscriber]struct{})}
}

// Join registers sub under the room's code, creating the bucket if
// this is the room's first listener.
func (h *Hub) Join(roomCode string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[roomCode]; !ok {
		h.rooms[roomCode] = make(map[Subscriber]struct{})
	}
	h.rooms[roomCode][sub] = struct{}{}
}

// Leave removes sub. The last listener leaving takes the room's bucket
// with it, so dead rooms do not accumulate.
func (h *Hub) Leave(roomCode string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.rooms[roomCode]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.rooms, roomCode)
		}
	}
}

// Notify delivers event to every current listener of the room. A send
// that fails is logged and skipped: the event is advisory, and cleanup
// is the job of the subscriber's own disconnect signal, not a failed
// write here.
func (h *Hub) Notify(roomCode, event string) {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.rooms[roomCode]))
	for sub := range h.rooms[roomCode] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.Send(event); err != nil {
			log.Debug("dropped event for dead subscriber", "room", roomCode, "err", err)
		}
	}
}

// Subscribers reports the current listener count for a room.
func (h *Hub) Subscribers(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomCode])
}

package realtime

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Notifier fans an event out to the live connections of a conversation.
type Notifier interface {
	Broadcast(conversationID uint64, ev Event)
}

// Hub is the in-process Notifier. Delivery is best effort: a client whose
// buffer is full misses the event and has to reconcile from history.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	groups  map[uint64]map[*Client]struct{}
	members map[*Client]map[uint64]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		groups:  make(map[uint64]map[*Client]struct{}),
		members: make(map[*Client]map[uint64]struct{}),
	}
}

// Register tracks c until Remove or Close. It reports false once the hub is
// closed.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || c.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// Close disconnects every client. Their pumps see the closed send channel
// and hang up.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) Join(conversationID uint64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	g, ok := h.groups[conversationID]
	if !ok {
		g = make(map[*Client]struct{})
		h.groups[conversationID] = g
	}
	g[c] = struct{}{}
	m, ok := h.members[c]
	if !ok {
		m = make(map[uint64]struct{})
		h.members[c] = m
	}
	m[conversationID] = struct{}{}
}

func (h *Hub) Leave(conversationID uint64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conversationID, c)
}

func (h *Hub) leaveLocked(conversationID uint64, c *Client) {
	if g, ok := h.groups[conversationID]; ok {
		delete(g, c)
		if len(g) == 0 {
			delete(h.groups, conversationID)
		}
	}
	if m, ok := h.members[c]; ok {
		delete(m, conversationID)
		if len(m) == 0 {
			delete(h.members, c)
		}
	}
}

// Remove drops c from every group and closes its send channel.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	delete(h.clients, c)
	for id := range h.members[c] {
		h.leaveLocked(id, c)
	}
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (h *Hub) GroupSize(conversationID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[conversationID])
}

func (h *Hub) Broadcast(conversationID uint64, ev Event) {
	frame, err := encode(ev.Name, ev.Payload)
	if err != nil {
		log.Error().Err(err).Str("event", ev.Name).Msg("encode broadcast")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.groups[conversationID] {
		if ev.Origin != "" && c.id == ev.Origin {
			continue
		}
		if ev.ExcludeUser != "" && c.uid == ev.ExcludeUser {
			continue
		}
		h.deliverLocked(c, frame, ev.Name)
	}
}

// SendTo delivers an event to one client only.
func (h *Hub) SendTo(c *Client, name string, payload interface{}) {
	frame, err := encode(name, payload)
	if err != nil {
		log.Error().Err(err).Str("event", name).Msg("encode direct event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliverLocked(c, frame, name)
}

func (h *Hub) deliverLocked(c *Client, frame []byte, name string) {
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Warn().Str("client", c.id).Str("uid", c.uid).Str("event", name).Msg("client buffer full, event dropped")
	}
}

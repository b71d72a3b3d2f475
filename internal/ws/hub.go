package ws

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Client is one live websocket connection as the hub sees it.
type Client interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Members resolves a room to the connections currently in it.
type Members interface {
	MemberIDs(roomID string) []string
}

// Hub fans outbound events out to connections. It implements room.Gateway.
//
// Room membership lives in the registry; the hub only maps connection ids to
// clients. Sends never block: a client whose buffer is full is closed, and its
// read loop takes care of leaving its rooms.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]Client
	members Members
}

func NewHub(members Members) *Hub {
	return &Hub{
		clients: make(map[string]Client),
		members: members,
	}
}

func (h *Hub) Register(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
}

func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[c.ID()]; ok && current == c {
		delete(h.clients, c.ID())
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(roomID, event string, data interface{}) {
	msg, err := encode(event, data)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Failed to encode broadcast")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range h.members.MemberIDs(roomID) {
		if c, ok := h.clients[id]; ok {
			h.deliver(c, msg)
		}
	}
}

func (h *Hub) Send(connID, event string, data interface{}) {
	msg, err := encode(event, data)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Failed to encode message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		h.deliver(c, msg)
	}
}

func (h *Hub) deliver(c Client, msg []byte) {
	if err := c.Send(msg); err != nil {
		logrus.WithError(err).WithField("connection_id", c.ID()).Warn("Dropping slow connection")
		go c.Close()
	}
}

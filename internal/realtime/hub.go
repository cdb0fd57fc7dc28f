package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Client struct {
	ID     string
	UserID uuid.UUID
	Send   chan []byte
}

// Hub tracks open sockets per user and fans out job updates to them.
type Hub struct {
	clients map[string]*Client
	stopped bool
	mu      sync.RWMutex
	log     *logrus.Logger
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// RegisterClient reports false once the hub has stopped.
func (h *Hub) RegisterClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[client.ID] = client
	h.log.WithFields(logrus.Fields{"client": client.ID, "user": client.UserID}).Debug("realtime: client registered")
	return true
}

func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(old.Send)
	}
}

// SendToUser delivers to every socket of one user. Full buffers are skipped
// so a slow reader never blocks the caller.
func (h *Hub) SendToUser(userID uuid.UUID, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.WithError(err).Error("realtime: marshal message")
		return
	}
	h.sendRaw(userID, payload)
}

// SendToUsers sends one payload to several users, skipping nil and duplicate ids.
func (h *Hub) SendToUsers(data interface{}, userIDs ...uuid.UUID) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.WithError(err).Error("realtime: marshal message")
		return
	}
	seen := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		h.sendRaw(id, payload)
	}
}

func (h *Hub) sendRaw(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if client.UserID == userID {
			select {
			case client.Send <- payload:
			default:
			}
		}
	}
}

func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.UserID == userID {
			n++
		}
	}
	return n
}

// Run blocks until ctx is cancelled, then closes every remaining client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for id, c := range h.clients {
		close(c.Send)
		delete(h.clients, id)
	}
}

package websocket

import (
	"context"
	"sync"
	"time"

	"plainchat/internal/database"
	"plainchat/internal/services"
	"plainchat/pkg/logger"

	"github.com/google/uuid"
)

// Hub is the set of connections currently joined to one room.
type Hub struct {
	roomID       uuid.UUID
	mu           sync.RWMutex
	clients      map[*Client]struct{}
	lastActivity time.Time
}

func NewHub(roomID uuid.UUID) *Hub {
	return &Hub{
		roomID:       roomID,
		clients:      make(map[*Client]struct{}),
		lastActivity: time.Now(),
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.lastActivity = time.Now()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	h.lastActivity = time.Now()
}

func (h *Hub) has(c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[c]
	return ok
}

// Broadcast queues frame for every joined client except exclude, which may
// be nil. A client whose queue is full is dropped from the room and closed.
func (h *Hub) Broadcast(frame []byte, exclude *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity = time.Now()

	for client := range h.clients {
		if client == exclude {
			continue
		}
		if !client.enqueue(frame) {
			logger.Warn("Dropping slow client %s from room %s", client.username, h.roomID)
			delete(h.clients, client)
			client.closeSend()
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastActivity
}

// Store is what room event handlers need from the durable store.
type Store interface {
	database.UserRepository
	database.MembershipRepository
}

// Hub Manager
type Manager struct {
	hubs     map[uuid.UUID]*Hub
	mutex    sync.Mutex
	idle     time.Duration
	db       Store
	messages *services.MessageStore
	presence *services.Presence
}

func NewManager(db Store, messages *services.MessageStore, presence *services.Presence, idle time.Duration) *Manager {
	return &Manager{
		hubs:     make(map[uuid.UUID]*Hub),
		idle:     idle,
		db:       db,
		messages: messages,
		presence: presence,
	}
}

// hub returns the hub for roomID if one is live.
func (m *Manager) hub(roomID uuid.UUID) (*Hub, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	hub, ok := m.hubs[roomID]
	return hub, ok
}

func (m *Manager) hubCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.hubs)
}

// join adds c to the room's hub, creating the hub on first use. Holding the
// manager lock keeps the sweep from dropping a hub between lookup and add.
func (m *Manager) join(roomID uuid.UUID, c *Client) *Hub {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	hub, exists := m.hubs[roomID]
	if !exists {
		hub = NewHub(roomID)
		m.hubs[roomID] = hub
		logger.Debug("Created hub for room %s", roomID)
	}
	hub.add(c)
	return hub
}

func (m *Manager) leave(hub *Hub, c *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	hub.remove(c)
}

// Run sweeps empty hubs that have been idle for the configured timeout until
// ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.idle
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for roomID, hub := range m.hubs {
		if hub.Len() == 0 && now.Sub(hub.idleSince()) >= m.idle {
			delete(m.hubs, roomID)
			logger.Debug("Cleaned up unused hub for room %s", roomID)
		}
	}
}

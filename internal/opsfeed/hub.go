package opsfeed

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClientClosed is returned when attempting to send to a closed client.
var ErrClientClosed = errors.New("client is closed")

// ClientInterface is one connected operator's stream connection.
type ClientInterface interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Hub fans out run-lifecycle events to every connected operator. Safe for
// concurrent use. Unlike the teacher's per-workspace partitioning, there is
// one flat set of clients: every operator watching /internal/tasks/stream
// sees every job's events.
type Hub struct {
	clients map[string]ClientInterface
	mu      sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]ClientInterface)}
}

// Register adds a client to the hub.
func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID()] = client
	log.Debug().Str("client_id", client.ID()).Msg("ops feed client registered")
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.clients[client.ID()]; exists {
		delete(h.clients, client.ID())
		log.Debug().Str("client_id", client.ID()).Msg("ops feed client unregistered")
	}
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(event Event) {
	data, err := event.ToJSON()
	if err != nil {
		log.Error().Err(err).Str("event_type", event.Type).Msg("failed to serialize ops feed event")
		return
	}

	h.mu.RLock()
	if len(h.clients) == 0 {
		h.mu.RUnlock()
		return
	}
	clientsCopy := make([]ClientInterface, 0, len(h.clients))
	for _, client := range h.clients {
		clientsCopy = append(clientsCopy, client)
	}
	h.mu.RUnlock()

	for _, client := range clientsCopy {
		go func(c ClientInterface) {
			if err := c.Send(data); err != nil {
				log.Warn().Err(err).Str("client_id", c.ID()).Msg("failed to send to ops feed client")
			}
		}(client)
	}

	log.Debug().Str("event_type", event.Type).Int("client_count", len(clientsCopy)).Msg("broadcast ops feed event")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"

	"reliefdesk/metrics"
	"reliefdesk/models"
)

// Hub fans generation changes out to every connected listener.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages for all clients
	broadcast chan []byte

	Register   chan *Client
	Unregister chan *Client

	mutex sync.RWMutex

	lastGeneration   uint64
	connectedClients int

	stop chan struct{}
	once sync.Once
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run starts the hub's main loop; it returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mutex.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.connectedClients = 0
			h.mutex.Unlock()
			metrics.WebsocketClients.Set(0)
			return

		case client := <-h.Register:
			h.mutex.Lock()
			h.clients[client] = true
			h.connectedClients = len(h.clients)
			h.mutex.Unlock()
			metrics.WebsocketClients.Set(float64(h.connectedClients))
			log.Infof("Listener connected. Total listeners: %d", h.connectedClients)

		case client := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.connectedClients = len(h.clients)
			}
			h.mutex.Unlock()
			metrics.WebsocketClients.Set(float64(h.connectedClients))
			log.Infof("Listener disconnected. Total listeners: %d", h.connectedClients)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow listener; drop it.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.connectedClients = len(h.clients)
			h.mutex.Unlock()
			metrics.WebsocketClients.Set(float64(h.connectedClients))
		}
	}
}

// Stop ends Run and closes every client's send channel.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// BroadcastGeneration tells listeners that the request list changed.
func (h *Hub) BroadcastGeneration(generation uint64) {
	message := models.BroadcastMessage{
		Type:       "posts_changed",
		Generation: generation,
		Timestamp:  time.Now().UTC(),
	}

	data, err := json.Marshal(message)
	if err != nil {
		log.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	h.mutex.Lock()
	if generation > h.lastGeneration {
		h.lastGeneration = generation
	}
	clients := h.connectedClients
	h.mutex.Unlock()

	select {
	case h.broadcast <- data:
		log.Debugf("Broadcasted generation %d to %d listeners", generation, clients)
	case <-h.stop:
	default:
		log.Warnf("Broadcast queue full, dropping generation %d", generation)
	}
}

// GetStats returns the number of connected listeners and the last broadcast generation.
func (h *Hub) GetStats() (int, uint64) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.connectedClients, h.lastGeneration
}

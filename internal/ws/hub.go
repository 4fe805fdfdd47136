package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"matchbook/internal/engine"
	"matchbook/internal/metrics"
	"matchbook/internal/models"
)

// Message is the envelope for every frame sent to clients.
type Message struct {
	Type      string      `json:"type"`
	Pair      string      `json:"pair,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// DepthData is the book view carried by snapshot and depth messages.
type DepthData struct {
	Bids []engine.Level `json:"bids"`
	Asks []engine.Level `json:"asks"`
}

// Hub fans trade and book updates out to WebSocket clients, grouped by
// trading pair. One goroutine owns the registry; clients communicate
// with it over channels only.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	manager *engine.Manager
	metrics *metrics.Metrics

	snapshotLevels int
	stop           chan struct{}
}

// NewHub creates a hub serving snapshots from the given engine manager.
func NewHub(manager *engine.Manager, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:        make(map[string]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		manager:        manager,
		metrics:        m,
		snapshotLevels: 20,
		stop:           make(chan struct{}),
	}
}

// Run is the hub's event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			log.Println("[ws] hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.pair] == nil {
				h.clients[client.pair] = make(map[*Client]bool)
			}
			h.clients[client.pair][client] = true
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.WSConnections.Inc()
			}
			go h.sendSnapshot(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.pair]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if h.metrics != nil {
						h.metrics.WSConnections.Dec()
					}
				}
				if len(clients) == 0 {
					delete(h.clients, client.pair)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop terminates the event loop.
func (h *Hub) Stop() {
	close(h.stop)
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// BroadcastTrade pushes an executed trade to the pair's subscribers.
func (h *Hub) BroadcastTrade(pair string, trade *models.Trade) {
	h.broadcastToPair(pair, &Message{
		Type:      "trade",
		Pair:      pair,
		Data:      trade,
		Timestamp: time.Now(),
	})
}

// BroadcastDepth pushes the current top of book to the pair's
// subscribers.
func (h *Hub) BroadcastDepth(pair string) {
	if h.manager == nil {
		return
	}
	bids, asks := h.manager.Depth(pair, h.snapshotLevels)
	h.broadcastToPair(pair, &Message{
		Type:      "depth",
		Pair:      pair,
		Data:      DepthData{Bids: bids, Asks: asks},
		Timestamp: time.Now(),
	})
}

// sendSnapshot delivers the initial book state to a new client.
func (h *Hub) sendSnapshot(client *Client) {
	if h.manager == nil {
		return
	}
	bids, asks := h.manager.Depth(client.pair, h.snapshotLevels)
	msg := &Message{
		Type:      "snapshot",
		Pair:      client.pair,
		Data:      DepthData{Bids: bids, Asks: asks},
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case client.send <- data:
		if h.metrics != nil {
			h.metrics.RecordWSSent(client.pair, "snapshot")
		}
	default:
		log.Printf("[ws] client %s send buffer full, snapshot dropped", client.id)
	}
}

func (h *Hub) broadcastToPair(pair string, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[pair] {
		select {
		case client.send <- data:
			if h.metrics != nil {
				h.metrics.RecordWSSent(pair, msg.Type)
			}
		default:
			// Slow consumer, drop the frame rather than block matching.
		}
	}
}

// ClientCount returns the number of clients subscribed to a pair.
func (h *Hub) ClientCount(pair string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[pair])
}

// TotalClientCount returns the number of connected clients.
func (h *Hub) TotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

// Pairs returns the pairs with at least one subscriber.
func (h *Hub) Pairs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	pairs := make([]string, 0, len(h.clients))
	for pair := range h.clients {
		pairs = append(pairs, pair)
	}
	return pairs
}

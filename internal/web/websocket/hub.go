package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rizkirmdhn/filmscraper/internal/common/logger"
	"github.com/rizkirmdhn/filmscraper/pkg/models"
	"github.com/sirupsen/logrus"
)

// Message types sent to the panel
const (
	TypeCrawlEvent = "crawl_event"
	TypeStatus     = "status"
)

// Message is the envelope of everything pushed to websocket clients
type Message struct {
	Type    string             `json:"type"`
	Status  string             `json:"status,omitempty"`
	Message string             `json:"message,omitempty"`
	Event   *models.CrawlEvent `json:"event,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID   string
	Send chan []byte
	Hub  *Hub
}

// Hub maintains the set of active clients and broadcasts messages to them.
// Only the Run goroutine closes a client's Send channel.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	log *logger.ComponentLogger

	// guards clients for readers outside Run
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		log:        logger.NewComponentLogger(log, "websocket"),
	}
}

// Run starts the hub's message handling loop and disconnects every client
// once ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.log.Entry().Info("Websocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.WithFields(logrus.Fields{"client": client.ID, "total": total}).Info("New client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.WithFields(logrus.Fields{"client": client.ID, "total": total}).Info("Client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Slow consumer, drop it
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for every connected client. Messages are dropped
// when the queue is full or the hub has stopped.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	default:
		h.log.Entry().Warn("Broadcast queue full, dropping message")
	}
}

// BroadcastJSON marshals v and broadcasts it
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal websocket message: %w", err)
	}
	h.Broadcast(data)
	return nil
}

// BroadcastStatus sends a human readable status line to the panel
func (h *Hub) BroadcastStatus(message, status string) {
	if err := h.BroadcastJSON(Message{Type: TypeStatus, Message: message, Status: status}); err != nil {
		h.log.WithError(err).Error("Failed to broadcast status")
	}
}

// Publish relays a crawl event to the panel
func (h *Hub) Publish(_ context.Context, ev models.CrawlEvent) {
	if err := h.BroadcastJSON(Message{Type: TypeCrawlEvent, Event: &ev}); err != nil {
		h.log.WithError(err).Error("Failed to broadcast crawl event")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

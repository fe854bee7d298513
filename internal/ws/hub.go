package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/kunhuatsai-cpu/tilepark-order/internal/workflow"
)

// EventOrderSubmitted is sent to a variant's room after each successful submission.
const EventOrderSubmitted = "order.submitted"

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// variantEvent routes an event to one variant's room
type variantEvent struct {
	Variant string
	Event   Event
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by variant name
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *variantEvent

	// done is closed when Run returns
	done chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *variantEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
// This should be called as a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.variant] == nil {
				h.rooms[client.variant] = make(map[*Client]bool)
			}
			h.rooms[client.variant][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				log.Printf("ERROR: marshal ws event %s: %v", event.Event.Type, err)
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[event.Variant] {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, drop it
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove drops client from its room. Callers hold h.mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.variant]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.variant)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for client := range clients {
			h.remove(client)
		}
	}
}

// BroadcastToVariant sends an event to every client watching a variant.
// It never blocks; the event is dropped when the hub is backed up.
func (h *Hub) BroadcastToVariant(variant string, event Event) {
	select {
	case h.broadcast <- &variantEvent{Variant: variant, Event: event}:
	default:
		log.Printf("WARN: ws broadcast queue full, dropping %s for %s", event.Type, variant)
	}
}

// SubmittedPayload is the payload of an order.submitted event.
type SubmittedPayload struct {
	OrderID     string    `json:"order_id"`
	Variant     string    `json:"variant"`
	Company     string    `json:"company"`
	ItemCount   int       `json:"item_count"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// SessionSubmitted implements workflow.Notifier.
func (h *Hub) SessionSubmitted(s *workflow.Session) {
	if s.Result == nil {
		return
	}
	payload, err := json.Marshal(SubmittedPayload{
		OrderID:     s.Result.OrderID,
		Variant:     s.Variant,
		Company:     s.Result.Draft.Customer.Company,
		ItemCount:   len(s.Result.Draft.Items),
		SubmittedAt: s.Result.SubmittedAt,
	})
	if err != nil {
		log.Printf("ERROR: marshal submitted event for %s: %v", s.Result.OrderID, err)
		return
	}
	h.BroadcastToVariant(s.Variant, Event{Type: EventOrderSubmitted, Payload: payload})
}

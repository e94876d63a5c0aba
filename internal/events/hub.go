package events

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

// Subscription narrows delivery. Zero ids match everything; a paused
// subscription matches nothing.
type Subscription struct {
	VenueID  int64
	TicketID int64
	Paused   bool
}

type Client struct {
	ID           string
	Send         chan models.StatusEvent
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *slog.Logger
}

type SubscribeMessage struct {
	Action   string `json:"action"`
	VenueID  int64  `json:"venue_id"`
	TicketID int64  `json:"ticket_id"`
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

// Unregister removes the client and closes its channel. Calling it twice is
// harmless.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Broadcast(ev models.StatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, ev) {
			continue
		}
		select {
		case client.Send <- ev:
		default:
			h.logger.Warn("drop event for slow client",
				slog.String("client_id", client.ID),
				slog.Int64(telemetry.LogFieldEventID, ev.ID))
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func match(sub Subscription, ev models.StatusEvent) bool {
	if sub.Paused {
		return false
	}
	if sub.VenueID != 0 && ev.VenueID != sub.VenueID {
		return false
	}
	if sub.TicketID != 0 && ev.TicketID != sub.TicketID {
		return false
	}
	return true
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}

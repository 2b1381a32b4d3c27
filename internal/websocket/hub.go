package websocket

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types pushed to every connected client.
const (
	EventRaffleCreated       = "RAFFLE_CREATED"
	EventRaffleApproved      = "RAFFLE_APPROVED"
	EventRaffleSettled       = "RAFFLE_SETTLED"
	EventRaffleForfeited     = "RAFFLE_FORFEITED"
	EventTicketPurchased     = "TICKET_PURCHASED"
	EventDonationCreated     = "DONATION_CREATED"
	EventDonationContributed = "DONATION_CONTRIBUTED"
)

type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
	ID   string
}

// Event is the envelope written to clients.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type Hub struct {
	clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	broadcast  chan Event
	done       chan struct{}
	stopOnce   sync.Once
	count      atomic.Int64
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan Event, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Broadcast queues an event for every client. It never blocks the caller:
// when the hub is backed up the event is dropped.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	ev := Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()}
	select {
	case h.broadcast <- ev:
	case <-h.done:
	default:
		h.log.Warn("websocket broadcast dropped, hub is busy", zap.String("type", eventType))
	}
}

// ClientCount is the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Done is closed once the hub stops.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
		h.count.Add(-1)
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.Register:
			h.clients[client] = true
			h.count.Add(1)
			h.log.Debug("websocket client registered", zap.String("client_id", client.ID))

		case client := <-h.Unregister:
			h.remove(client)
			h.log.Debug("websocket client unregistered", zap.String("client_id", client.ID))

		case ev := <-h.broadcast:
			jsonData, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("failed to marshal websocket event", zap.String("type", ev.Type), zap.Error(err))
				continue
			}

			for client := range h.clients {
				select {
				case client.Send <- jsonData:
				default:
					// slow consumer
					h.remove(client)
					h.log.Info("dropped slow websocket client", zap.String("client_id", client.ID))
				}
			}
		}
	}
}

package feed

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/quentinzango/evenement/internal/constants"
	"github.com/quentinzango/evenement/internal/models"
)

const (
	// maxDroppedEventsBeforeDisconnect is the threshold for disconnecting slow subscribers
	maxDroppedEventsBeforeDisconnect = 100
)

// Hub fans message-table change events out to every connected subscriber.
// Subscribers are read-only; the feed carries no client commands.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	shutdown   chan struct{}
	sequence   int64
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Event, constants.FeedBroadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		shutdown:   make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.shutdown:
			h.mu.Lock()
			for client := range h.clients {
				client.CloseSend()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			slog.Info("shutdown complete", "component", "feed")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.CloseSend()
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				h.sendToClientLocked(client, event)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Shutdown() {
	close(h.shutdown)
}

// Caller must hold at least a read lock on h.mu.
func (h *Hub) sendToClientLocked(client *Client, event *Event) {
	select {
	case client.send <- event:
		// Event sent successfully
	default:
		// Subscriber buffer full - track the drop
		dropped := atomic.AddInt64(&client.DroppedEvents, 1)

		if dropped%10 == 1 {
			slog.Warn("dropped events for slow subscriber", "component", "feed", "dropped", dropped)
		}

		// Disconnect subscribers that fall too far behind; the platform's
		// reconnect behavior is the client's concern, not the hub's.
		if dropped >= maxDroppedEventsBeforeDisconnect {
			slog.Warn("disconnecting slow subscriber", "component", "feed", "dropped", dropped)
			client.Close()
		}
	}
}

func (h *Hub) nextSequence() int64 {
	return atomic.AddInt64(&h.sequence, 1)
}

// BroadcastInsert notifies all subscribers of a newly inserted message.
func (h *Hub) BroadcastInsert(msg *models.Message) {
	h.broadcast <- &Event{Type: EventInsert, Message: msg, Seq: h.nextSequence()}
}

// BroadcastUpdate notifies all subscribers of a replaced message row.
func (h *Hub) BroadcastUpdate(msg *models.Message) {
	h.broadcast <- &Event{Type: EventUpdate, Message: msg, Seq: h.nextSequence()}
}

// BroadcastDelete notifies all subscribers that a message row was removed.
func (h *Hub) BroadcastDelete(messageID string) {
	h.broadcast <- &Event{
		Type:    EventDelete,
		Message: &models.Message{ID: messageID},
		Seq:     h.nextSequence(),
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

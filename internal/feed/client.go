package feed

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quentinzango/evenement/internal/constants"
)

const (
	// Time allowed to write an event to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 15 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = 10 * time.Second

	// Subscribers send nothing but control frames
	maxInboundMessageSize = 512
)

// Client is one websocket subscriber on the change feed.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan *Event
	connCloseOnce sync.Once
	sendCloseOnce sync.Once

	// DroppedEvents counts events discarded because the send buffer was full
	DroppedEvents int64
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan *Event, constants.FeedClientSendBufferSize),
	}
}

// Register adds the client to the hub's fan-out set. If the hub has already
// shut down the client is closed instead, so late connections never block.
func (c *Client) Register() {
	select {
	case c.hub.register <- c:
	case <-c.hub.shutdown:
		c.CloseSend()
	}
}

func (c *Client) Close() {
	c.connCloseOnce.Do(func() { c.conn.Close() })
}

// CloseSend closes the outbound event channel. Called by the hub only.
func (c *Client) CloseSend() {
	c.sendCloseOnce.Do(func() { close(c.send) })
}

// ReadPump drains the connection to process control frames and detect
// disconnects. Any data frame from a subscriber is ignored.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.Close()
	}()

	c.conn.SetReadLimit(maxInboundMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Debug("feed read error", "component", "feed", "error", err)
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(event); err != nil {
				slog.Debug("feed write error", "component", "feed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/quentinzango/evenement/internal/feed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type FeedHandler struct {
	hub *feed.Hub
}

func NewFeedHandler(hub *feed.Hub) *FeedHandler {
	return &FeedHandler{hub: hub}
}

// GET /feed
//
// Upgrades to a websocket delivering message change events. The feed is
// read-only and unauthenticated, matching the public readability of the
// message history.
func (h *FeedHandler) ServeFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("feed upgrade failed", "error", err)
		return
	}

	client := feed.NewClient(h.hub, conn)
	client.Register()

	go client.WritePump()
	go client.ReadPump()
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/quentinzango/evenement/internal/db"
)

type HistoryHandler struct {
	messageRepo *db.MessageRepository
}

func NewHistoryHandler(messageRepo *db.MessageRepository) *HistoryHandler {
	return &HistoryHandler{messageRepo: messageRepo}
}

// GET /api/v1/messages
//
// Returns the full message history ascending by insertion order, each row
// joined with its author's display name. This ordering is the authoritative
// one; clients append feed events to it without re-sorting.
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messageRepo.History()
	if err != nil {
		slog.Error("error loading message history", "error", err)
		internalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quentinzango/evenement/internal/auth"
	"github.com/quentinzango/evenement/internal/constants"
	"github.com/quentinzango/evenement/internal/db"
	"github.com/quentinzango/evenement/internal/models"
)

// MessageBroadcaster receives the authoritative row after a successful
// insert. The feed hub implements it.
type MessageBroadcaster interface {
	BroadcastInsert(msg *models.Message)
}

type PostMessageHandler struct {
	profileRepo *db.ProfileRepository
	messageRepo *db.MessageRepository
	tokens      *auth.TokenService
	broadcaster MessageBroadcaster
	postLimiter *RateLimiter
}

func NewPostMessageHandler(
	profileRepo *db.ProfileRepository,
	messageRepo *db.MessageRepository,
	tokens *auth.TokenService,
	broadcaster MessageBroadcaster,
	postLimiter *RateLimiter,
) *PostMessageHandler {
	return &PostMessageHandler{
		profileRepo: profileRepo,
		messageRepo: messageRepo,
		tokens:      tokens,
		broadcaster: broadcaster,
		postLimiter: postLimiter,
	}
}

type PostMessageRequest struct {
	Token string `json:"token"`
	Text  string `json:"text"`
}

type PostMessageResponse struct {
	OK bool `json:"ok"`
}

// POST /api/v1/post_message
//
// Checks run in strict fail-fast order: token presence, text presence, then
// signature/expiration, then the profile lookup. An invalid token never
// causes a database round-trip. The relay is insert-only and never
// deduplicates: identical text from the same profile produces distinct rows.
func (h *PostMessageHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if req.Token == "" {
		unauthorized(w, "token required")
		return
	}
	if req.Text == "" {
		badRequest(w, "text required")
		return
	}
	if len(req.Text) > constants.MessageMaxLength {
		badRequest(w, "text too long")
		return
	}

	claims, err := h.tokens.Verify(req.Token)
	if err != nil {
		unauthorized(w, "invalid token")
		return
	}

	if claims.ProfileID == "" {
		unauthorized(w, "invalid token payload")
		return
	}

	if h.postLimiter != nil && !h.postLimiter.Allow(claims.DeviceID) {
		writeError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	// The token may outlive its profile; a since-deleted profile must not
	// accept posts.
	profile, err := h.profileRepo.FindByID(claims.ProfileID)
	if err == db.ErrNotFound {
		notFound(w, "profile not found")
		return
	}
	if err != nil {
		slog.Error("error finding profile", "error", err)
		internalError(w, err.Error())
		return
	}

	message, err := h.messageRepo.Create(profile.ID, req.Text)
	if err != nil {
		slog.Error("error creating message", "error", err)
		internalError(w, err.Error())
		return
	}

	message.AuthorName = profile.DisplayName
	message.AuthorAvatar = profile.Avatar
	if h.broadcaster != nil {
		h.broadcaster.BroadcastInsert(message)
	}

	writeJSON(w, http.StatusOK, PostMessageResponse{OK: true})
}

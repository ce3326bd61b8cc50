package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/quentinzango/evenement/internal/auth"
	"github.com/quentinzango/evenement/internal/constants"
	"github.com/quentinzango/evenement/internal/db"
	"github.com/quentinzango/evenement/internal/models"
)

type RegisterHandler struct {
	profileRepo *db.ProfileRepository
	tokens      *auth.TokenService
	sanitizer   *bluemonday.Policy
}

func NewRegisterHandler(profileRepo *db.ProfileRepository, tokens *auth.TokenService) *RegisterHandler {
	return &RegisterHandler{
		profileRepo: profileRepo,
		tokens:      tokens,
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

type RegisterDeviceRequest struct {
	DeviceID    string  `json:"device_id" validate:"required"`
	DisplayName string  `json:"display_name"`
	Avatar      *string `json:"avatar"`
}

type RegisterDeviceResponse struct {
	Token   string          `json:"token"`
	Profile *models.Profile `json:"profile"`
}

// POST /api/v1/register_device
//
// Upserts the profile keyed by device_id, then mints a capability token
// binding the device to that profile. Registration is idempotent: repeating
// it refreshes display_name/avatar and returns a fresh token for the same
// profile row.
func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterDeviceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	displayName := strings.TrimSpace(h.sanitizer.Sanitize(req.DisplayName))
	if displayName == "" {
		badRequest(w, "display_name required")
		return
	}

	if req.Avatar != nil && len(*req.Avatar) > constants.AvatarMaxBytes {
		badRequest(w, "avatar too large")
		return
	}

	profile, err := h.profileRepo.Upsert(req.DeviceID, displayName, req.Avatar)
	if err != nil {
		slog.Error("error upserting profile", "error", err)
		internalError(w, err.Error())
		return
	}

	token, err := h.tokens.Issue(profile.ID, profile.DeviceID)
	if err != nil {
		slog.Error("error issuing token", "error", err)
		internalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, RegisterDeviceResponse{
		Token:   token,
		Profile: profile,
	})
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quentinzango/evenement/internal/db"
)

type ProfileHandler struct {
	profileRepo *db.ProfileRepository
}

func NewProfileHandler(profileRepo *db.ProfileRepository) *ProfileHandler {
	return &ProfileHandler{profileRepo: profileRepo}
}

// GET /api/v1/profiles/{profileID}
//
// Public author lookup. Clients call this to patch a feed event that arrived
// before its author join resolved. device_id is never exposed here.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")

	profile, err := h.profileRepo.FindByID(profileID)
	if err == db.ErrNotFound {
		notFound(w, "profile not found")
		return
	}
	if err != nil {
		slog.Error("error finding profile", "error", err)
		internalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, profile.Public())
}

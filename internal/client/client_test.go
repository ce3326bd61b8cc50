package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/quentinzango/evenement/internal/identity"
	"github.com/quentinzango/evenement/internal/models"
)

func newTestIdentity(t *testing.T) *identity.Store {
	t.Helper()
	return identity.NewStore(filepath.Join(t.TempDir(), "device.json"))
}

func TestRegisterDeviceStoresTokenAndProfile(t *testing.T) {
	var gotDeviceID string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/register_device" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		var req struct {
			DeviceID    string `json:"device_id"`
			DisplayName string `json:"display_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		gotDeviceID = req.DeviceID

		json.NewEncoder(w).Encode(map[string]any{
			"token": "tok_1",
			"profile": models.Profile{
				ID:          "prf_1",
				DeviceID:    req.DeviceID,
				DisplayName: req.DisplayName,
			},
		})
	}))
	t.Cleanup(ts.Close)

	store := newTestIdentity(t)
	c := New(ts.URL, store)

	profile, err := c.RegisterDevice(context.Background(), "Alice", nil)
	if err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}

	if gotDeviceID == "" {
		t.Fatal("expected a generated device_id in the request")
	}
	if gotDeviceID != store.GetOrCreateDeviceID() {
		t.Fatal("request device_id differs from the stored one")
	}
	if store.StoredToken() != "tok_1" {
		t.Fatalf("stored token = %q, want %q", store.StoredToken(), "tok_1")
	}
	if profile.ID != "prf_1" {
		t.Fatalf("profile ID = %q, want %q", profile.ID, "prf_1")
	}
	if c.Profile() == nil || c.Profile().ID != "prf_1" {
		t.Fatal("client did not retain the registered profile")
	}
}

func TestPostMessageWithoutTokenFailsFast(t *testing.T) {
	c := New("http://invalid", newTestIdentity(t))

	if err := c.PostMessage(context.Background(), "hi"); !errors.Is(err, ErrNoToken) {
		t.Fatalf("error = %v, want ErrNoToken", err)
	}
}

func TestPostMessageSurfacesAuthError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid token"})
	}))
	t.Cleanup(ts.Close)

	store := newTestIdentity(t)
	store.StoreToken("tok_stale")
	c := New(ts.URL, store)

	err := c.PostMessage(context.Background(), "hi")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *AuthError", err)
	}
	if authErr.Message != "invalid token" {
		t.Fatalf("message = %q, want %q", authErr.Message, "invalid token")
	}
}

// An expired token triggers exactly one re-registration, then the retried
// post succeeds.
func TestSendMessageReRegistersOnceOnAuthFailure(t *testing.T) {
	var posts, registers atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/register_device":
			registers.Add(1)
			json.NewEncoder(w).Encode(map[string]any{
				"token":   "tok_fresh",
				"profile": models.Profile{ID: "prf_1", DisplayName: "Alice"},
			})
		case "/api/v1/post_message":
			var req struct {
				Token string `json:"token"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			posts.Add(1)
			if req.Token != "tok_fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid token"})
				return
			}
			json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		default:
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
	}))
	t.Cleanup(ts.Close)

	store := newTestIdentity(t)
	store.StoreToken("tok_stale")
	c := New(ts.URL, store)

	if err := c.SendMessage(context.Background(), "Alice", "hi"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if got := registers.Load(); got != 1 {
		t.Fatalf("register calls = %d, want 1", got)
	}
	if got := posts.Load(); got != 2 {
		t.Fatalf("post calls = %d, want 2", got)
	}
	if store.StoredToken() != "tok_fresh" {
		t.Fatalf("stored token = %q, want refreshed token", store.StoredToken())
	}
}

func TestSendMessageDoesNotRetryServerErrors(t *testing.T) {
	var posts, registers atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/register_device":
			registers.Add(1)
		case "/api/v1/post_message":
			posts.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "database unavailable"})
		}
	}))
	t.Cleanup(ts.Close)

	store := newTestIdentity(t)
	store.StoreToken("tok_1")
	c := New(ts.URL, store)

	err := c.SendMessage(context.Background(), "Alice", "hi")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if got := registers.Load(); got != 0 {
		t.Fatalf("register calls = %d, want 0", got)
	}
	if got := posts.Load(); got != 1 {
		t.Fatalf("post calls = %d, want 1", got)
	}
}

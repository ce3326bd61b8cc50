// Package client implements the device-side half of the posting protocol:
// registration, authorized posting with one re-registration retry, and the
// realtime message view that reconciles optimistic entries against the
// change feed.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/quentinzango/evenement/internal/identity"
	"github.com/quentinzango/evenement/internal/models"
)

// AuthError marks failures whose recovery path is re-registering the device
// for a fresh token and retrying once.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%d): %s", e.Status, e.Message)
}

// APIError carries any other structured server error.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

var ErrNoToken = errors.New("no capability token stored")

type Client struct {
	baseURL  string
	http     *http.Client
	identity *identity.Store

	mu      sync.Mutex
	profile *models.Profile
}

func New(baseURL string, store *identity.Store) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 15 * time.Second},
		identity: store,
	}
}

// Profile returns the profile from the last successful registration, or nil.
func (c *Client) Profile() *models.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

type registerRequest struct {
	DeviceID    string  `json:"device_id"`
	DisplayName string  `json:"display_name"`
	Avatar      *string `json:"avatar,omitempty"`
}

type registerResponse struct {
	Token   string          `json:"token"`
	Profile *models.Profile `json:"profile"`
}

// RegisterDevice upserts this device's profile and stores the returned
// capability token. Safe to repeat; the server treats it as idempotent.
func (c *Client) RegisterDevice(ctx context.Context, displayName string, avatar *string) (*models.Profile, error) {
	deviceID := c.identity.GetOrCreateDeviceID()

	var resp registerResponse
	err := c.postJSON(ctx, "/api/v1/register_device", registerRequest{
		DeviceID:    deviceID,
		DisplayName: displayName,
		Avatar:      avatar,
	}, &resp)
	if err != nil {
		return nil, err
	}

	c.identity.StoreToken(resp.Token)
	c.mu.Lock()
	c.profile = resp.Profile
	c.mu.Unlock()

	return resp.Profile, nil
}

type postMessageRequest struct {
	Token string `json:"token"`
	Text  string `json:"text"`
}

// PostMessage posts with the stored token. Authorization failures (missing,
// invalid or expired token, vanished profile) come back as *AuthError.
func (c *Client) PostMessage(ctx context.Context, text string) error {
	token := c.identity.StoredToken()
	if token == "" {
		return ErrNoToken
	}

	var resp struct {
		OK bool `json:"ok"`
	}
	return c.postJSON(ctx, "/api/v1/post_message", postMessageRequest{
		Token: token,
		Text:  text,
	}, &resp)
}

// SendMessage posts text, re-registering once on an authorization failure
// and retrying the post with the fresh token. displayName is needed for the
// re-registration path.
func (c *Client) SendMessage(ctx context.Context, displayName, text string) error {
	err := c.PostMessage(ctx, text)

	var authErr *AuthError
	if errors.Is(err, ErrNoToken) || errors.As(err, &authErr) {
		if _, regErr := c.RegisterDevice(ctx, displayName, nil); regErr != nil {
			return regErr
		}
		return c.PostMessage(ctx, text)
	}

	return err
}

// History loads the full ordered message history.
func (c *Client) History(ctx context.Context) ([]*models.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/messages", nil)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, decodeError(res)
	}

	var messages []*models.Message
	if err := json.NewDecoder(res.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return messages, nil
}

// LookupProfile fetches the public view of a profile by ID.
func (c *Client) LookupProfile(ctx context.Context, profileID string) (*models.PublicProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/profiles/"+profileID, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, decodeError(res)
	}

	var profile models.PublicProfile
	if err := json.NewDecoder(res.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	return &profile, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	// Never trust the body shape before checking the status.
	if res.StatusCode != http.StatusOK {
		return decodeError(res)
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func decodeError(res *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	message := res.Status
	if err := json.NewDecoder(res.Body).Decode(&body); err == nil && body.Error != "" {
		message = body.Error
	}

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusNotFound {
		return &AuthError{Status: res.StatusCode, Message: message}
	}
	return &APIError{Status: res.StatusCode, Message: message}
}

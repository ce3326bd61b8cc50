// Package identity persists the per-installation device identity: an opaque
// device ID generated once, and the capability token obtained by
// registration. State lives in one JSON file; everything degrades silently
// to in-memory operation if the file is unusable.
package identity

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

type state struct {
	DeviceID    string `json:"device_id"`
	DeviceToken string `json:"device_token"`
}

// Store is an explicit identity context: load it once and hand it to
// whatever needs to authenticate. No ambient globals.
type Store struct {
	path string
	mu   sync.Mutex
	st   state
}

// NewStore loads the identity file at path if it exists. A missing or
// corrupt file is treated as an empty identity, never an error.
func NewStore(path string) *Store {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return s
	}
	s.st = st
	return s
}

// GetOrCreateDeviceID returns the persisted device ID, generating and
// persisting a new one if absent. It never fails: if the secure random
// source is unavailable it falls back to a timestamp-based identifier, and a
// persistence failure still returns the generated ID.
//
// Regenerating the ID (e.g. after losing the file) silently creates a new
// identity server-side; there is no migration path.
func (s *Store) GetOrCreateDeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.DeviceID != "" {
		return s.st.DeviceID
	}

	id, err := uuid.NewRandom()
	if err == nil {
		s.st.DeviceID = id.String()
	} else {
		s.st.DeviceID = fallbackDeviceID()
	}

	s.persistLocked()
	return s.st.DeviceID
}

// StoredToken returns the persisted capability token, or "" if absent.
func (s *Store) StoredToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeviceToken
}

// StoreToken persists the token, overwriting any prior value.
func (s *Store) StoreToken(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.DeviceToken = token
	s.persistLocked()
}

func (s *Store) persistLocked() {
	data, err := json.Marshal(s.st)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return
	}
	// Best effort: client actions must not fail on storage errors.
	_ = os.WriteFile(s.path, data, 0o600)
}

// fallbackDeviceID does not require a secure random source.
func fallbackDeviceID() string {
	return fmt.Sprintf("d_%d_%s", time.Now().UnixMilli(), strconv.FormatUint(rand.Uint64(), 36))
}

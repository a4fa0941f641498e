// Package session persists the one piece of durable client state this
// system owns: the token correlating this machine to its current
// conversation (the browser build keeps it in a cookie).
package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// DefaultTTL mirrors the cookie expiry of the browser client.
const DefaultTTL = 30 * 24 * time.Hour

type record struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store reads and writes the session token file. The token is purely
// advisory: no shape validation happens here, the server rejects unknown or
// expired tokens on restore.
type Store struct {
	path string
	now  func() time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// DefaultPath places the token under the user config dir, e.g.
// ~/.config/support-chat/session.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "support-chat", "session.json"), nil
}

// Read returns the stored token, or ok=false when none is stored or the
// stored one has expired. An expired record is cleared on the way out.
func (s *Store) Read() (string, bool) {
	if s == nil {
		return "", false
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Token == "" {
		return "", false
	}
	if !rec.ExpiresAt.IsZero() && s.now().After(rec.ExpiresAt) {
		_ = s.Clear()
		return "", false
	}
	return rec.Token, true
}

func (s *Store) Write(token string, ttl time.Duration) error {
	if token == "" {
		return errors.New("session: token required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rec := record{Token: token, ExpiresAt: s.now().Add(ttl)}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}

func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

package server

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"

	"support-chat-client/internal/model"
)

// ErrPersistClosed is returned by Append after Close. Pebble itself panics
// on use after close, so the log tracks its own lifecycle.
var ErrPersistClosed = errors.New("server: persist log closed")

// Record is one entry in the append-only log. Exactly one field is set.
type Record struct {
	Chat    *model.Chat    `json:"chat,omitempty"`
	Message *model.Message `json:"message,omitempty"`
	User    *model.User    `json:"user,omitempty"`
}

// Persist is a sequence log over PebbleDB. Keys are 8-byte big-endian
// sequence numbers increasing monotonically; replaying the log in key order
// reproduces the store state.
type Persist struct {
	db     *pebble.DB
	mu     sync.Mutex
	next   uint64
	closed bool
}

func OpenPersist(dir string) (*Persist, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	p := &Persist{db: db}
	it, err := db.NewIter(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	defer func() { _ = it.Close() }()
	if it.Last() {
		if len(it.Key()) >= 8 {
			p.next = binary.BigEndian.Uint64(it.Key()[:8]) + 1
		}
	}
	return p, nil
}

func (p *Persist) Append(rec Record) error {
	if p == nil || p.db == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPersistClosed
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, p.next)
	p.next++
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.db.Set(key, val, pebble.Sync)
}

func (p *Persist) LoadAll() ([]Record, error) {
	if p == nil || p.db == nil {
		return nil, nil
	}
	it, err := p.db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()
	out := make([]Record, 0, 256)
	for it.First(); it.Valid(); it.Next() {
		var rec Record
		if err := json.Unmarshal(it.Value(), &rec); err == nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (p *Persist) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.db.Close()
}

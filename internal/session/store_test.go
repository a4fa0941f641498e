package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "session.json"))
}

func TestReadMissingFile(t *testing.T) {
	store := testStore(t)
	if token, ok := store.Read(); ok || token != "" {
		t.Fatalf("expected no token, got %q", token)
	}
}

func TestWriteThenRead(t *testing.T) {
	store := testStore(t)
	if err := store.Write("chat-123", time.Hour); err != nil {
		t.Fatalf("write: %v", err)
	}

	token, ok := store.Read()
	if !ok {
		t.Fatal("expected stored token")
	}
	if token != "chat-123" {
		t.Fatalf("expected chat-123, got %q", token)
	}
}

func TestWriteEmptyToken(t *testing.T) {
	store := testStore(t)
	if err := store.Write("", time.Hour); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestExpiredTokenReadsAsAbsentAndClears(t *testing.T) {
	store := testStore(t)
	if err := store.Write("chat-123", time.Hour); err != nil {
		t.Fatalf("write: %v", err)
	}

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if token, ok := store.Read(); ok {
		t.Fatalf("expected expired token to read as absent, got %q", token)
	}
	if _, err := os.Stat(store.path); !os.IsNotExist(err) {
		t.Fatal("expected expired record to be removed")
	}
}

func TestClearIsIdempotent(t *testing.T) {
	store := testStore(t)
	if err := store.Write("chat-123", time.Hour); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if _, ok := store.Read(); ok {
		t.Fatal("expected no token after clear")
	}
}

func TestCorruptFileReadsAsAbsent(t *testing.T) {
	store := testStore(t)
	if err := os.MkdirAll(filepath.Dir(store.path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Read(); ok {
		t.Fatal("expected corrupt record to read as absent")
	}
}

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"support-chat-client/internal/chat"
	"support-chat-client/internal/model"
	"support-chat-client/internal/realtime"
	"support-chat-client/internal/rest"
	"support-chat-client/internal/session"
)

type noticeLog struct {
	mu      sync.Mutex
	notices []chat.Notice
}

func (l *noticeLog) record(n chat.Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
}

func (l *noticeLog) has(kind chat.NoticeKind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, n := range l.notices {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func dialChannel(t *testing.T, ts *httptest.Server) *realtime.Channel {
	t.Helper()
	channel, err := realtime.Dial(realtime.Options{
		URL:            "ws" + strings.TrimPrefix(ts.URL, "http") + "/socket",
		MaxAttempts:    3,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("dial channel: %v", err)
	}
	t.Cleanup(func() { _ = channel.Close() })
	return channel
}

func TestWidgetConversationEndToEnd(t *testing.T) {
	srv, ts := newTestServer(t)
	ctx := context.Background()

	api := rest.NewClient(ts.URL)
	tokens := session.NewStore(filepath.Join(t.TempDir(), "session.json"))
	notices := &noticeLog{}

	ctrl := chat.NewController(dialChannel(t, ts), api, tokens,
		chat.WithOnNotice(notices.record))
	ctrl.Attach()
	defer ctrl.Detach()

	if err := ctrl.Start(ctx, "Ana"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if ctrl.Status() != model.ChatStatusActive {
		t.Fatalf("expected ACTIVE after start, got %s", ctrl.Status())
	}
	// The room join is processed asynchronously by the hub.
	time.Sleep(50 * time.Millisecond)

	if err := ctrl.Send("hello there"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitUntil(t, "message echo", func() bool {
		snap := ctrl.Snapshot()
		return len(snap.Messages) == 1 && snap.Messages[0].Content == "hello there"
	})
	waitUntil(t, "delivery ack", func() bool {
		return notices.has(chat.NoticeDelivered)
	})

	_, stored, err := srv.Store().GetChat(ctrl.ChatID())
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected message stored server-side, got %d err=%v", len(stored), err)
	}

	// An operator closes the conversation over REST; the widget hears it
	// through the socket.
	admin := newTestClient(t)
	login(t, admin, ts.URL)
	if status := doJSON(t, admin, http.MethodPost, ts.URL+"/admin/chats/"+ctrl.ChatID()+"/close", nil, nil); status != http.StatusOK {
		t.Fatalf("admin close returned %d", status)
	}
	waitUntil(t, "remote close", func() bool {
		return ctrl.Status() == model.ChatStatusClosed
	})
	if !notices.has(chat.NoticeClosed) {
		t.Fatal("expected a closed notice for the view")
	}
	if err := ctrl.Send("anyone?"); err == nil {
		t.Fatal("expected send rejected after close")
	}
}

func TestWidgetRestoreEndToEnd(t *testing.T) {
	srv, ts := newTestServer(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "session.json")
	api := rest.NewClient(ts.URL)

	first := chat.NewController(dialChannel(t, ts), api, session.NewStore(path))
	first.Attach()
	if err := first.Start(ctx, "Ana"); err != nil {
		t.Fatalf("start: %v", err)
	}
	chatID := first.ChatID()
	if _, err := srv.Store().AppendMessage(chatID, "history line", model.SenderAdmin, "", false); err != nil {
		t.Fatal(err)
	}
	first.Detach()

	// A fresh process with the same session file picks the conversation up.
	second := chat.NewController(dialChannel(t, ts), api, session.NewStore(path))
	second.Attach()
	defer second.Detach()

	restored, err := second.Restore(ctx)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored {
		t.Fatal("expected session restored from token")
	}
	if second.ChatID() != chatID {
		t.Fatalf("expected chat %s restored, got %s", chatID, second.ChatID())
	}
	snap := second.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].Content != "history line" {
		t.Fatalf("expected history seeded, got %+v", snap.Messages)
	}
	time.Sleep(50 * time.Millisecond)

	// Live traffic still flows after the restore rejoined the room.
	if err := second.Send("back again"); err != nil {
		t.Fatalf("send after restore: %v", err)
	}
	waitUntil(t, "echo after restore", func() bool {
		return len(second.Snapshot().Messages) == 2
	})
}

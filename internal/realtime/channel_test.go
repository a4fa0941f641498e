package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"support-chat-client/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer is a minimal backend: it hands out every accepted connection and
// every inbound frame so tests can push and inspect traffic.
type wsServer struct {
	srv     *httptest.Server
	mu      sync.Mutex
	conns   []*websocket.Conn
	inbound chan []byte
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{inbound: make(chan []byte, 16)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go func() {
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				s.inbound <- raw
			}
		}()
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) latestConn(t *testing.T) *websocket.Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		n := len(s.conns)
		var conn *websocket.Conn
		if n > 0 {
			conn = s.conns[n-1]
		}
		s.mu.Unlock()
		if conn != nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no connection accepted")
	return nil
}

func (s *wsServer) push(t *testing.T, event string, payload any) {
	t.Helper()
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.latestConn(t).WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func dialTest(t *testing.T, s *wsServer) *Channel {
	t.Helper()
	c, err := Dial(Options{
		URL:            s.url(),
		MaxAttempts:    3,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestDialFailsWithoutURL(t *testing.T) {
	if _, err := Dial(Options{}); err == nil {
		t.Fatal("expected error for missing URL")
	}
}

func TestSubscribeReceivesPushedEvents(t *testing.T) {
	server := newWSServer(t)
	channel := dialTest(t, server)

	var mu sync.Mutex
	var got []string
	sub := channel.Subscribe("receive-message", func(data json.RawMessage) {
		var payload map[string]string
		_ = json.Unmarshal(data, &payload)
		mu.Lock()
		got = append(got, payload["content"])
		mu.Unlock()
	})
	defer sub.Cancel()

	server.push(t, "receive-message", map[string]string{"content": "hello"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "hello"
	}, "pushed event never delivered")
}

func TestEmitReachesServer(t *testing.T) {
	server := newWSServer(t)
	channel := dialTest(t, server)

	if err := channel.Emit("join-chat", map[string]string{"chatId": "c1"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	select {
	case raw := <-server.inbound:
		env, err := protocol.Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Event != "join-chat" {
			t.Fatalf("expected join-chat, got %s", env.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("emitted frame never arrived")
	}
}

func TestCancelledSubscriptionStopsDelivery(t *testing.T) {
	server := newWSServer(t)
	channel := dialTest(t, server)

	var mu sync.Mutex
	count := 0
	sub := channel.Subscribe("receive-message", func(json.RawMessage) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	server.push(t, "receive-message", map[string]string{"content": "one"})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, "first delivery missing")

	sub.Cancel()
	server.push(t, "receive-message", map[string]string{"content": "two"})

	// Give a wrongly surviving handler time to fire.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected no delivery after cancel, got %d", count)
	}
}

func TestMalformedFrameSkipped(t *testing.T) {
	server := newWSServer(t)
	channel := dialTest(t, server)

	var mu sync.Mutex
	count := 0
	sub := channel.Subscribe("receive-message", func(json.RawMessage) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer sub.Cancel()

	if err := server.latestConn(t).WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	server.push(t, "receive-message", map[string]string{"content": "after"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, "channel did not survive malformed frame")
}

func TestReconnectAfterDrop(t *testing.T) {
	server := newWSServer(t)
	channel := dialTest(t, server)

	var mu sync.Mutex
	var statuses []bool
	sub := channel.OnStatus(func(connected bool) {
		mu.Lock()
		statuses = append(statuses, connected)
		mu.Unlock()
	})
	defer sub.Cancel()

	server.latestConn(t).Close()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) >= 2 && !statuses[0] && statuses[len(statuses)-1]
	}, "expected drop then reconnect notifications")
	waitFor(t, channel.Connected, "channel never reconnected")
}

func TestEmitWhileDisconnected(t *testing.T) {
	server := newWSServer(t)
	channel := dialTest(t, server)

	if err := channel.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := channel.Emit("join-chat", nil); err != ErrDisconnected {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
}

func TestRacingDialKeepsSingleConnection(t *testing.T) {
	server := newWSServer(t)
	channel := dialTest(t, server)

	channel.mu.Lock()
	first := channel.conn
	channel.mu.Unlock()

	// A second successful dial while a connection is live (manual Reconnect
	// racing the retry loop) must discard itself, not replace the winner.
	if err := channel.connect(); err != nil {
		t.Fatalf("racing connect: %v", err)
	}

	channel.mu.Lock()
	current := channel.conn
	channel.mu.Unlock()
	if current != first {
		t.Fatal("expected the live connection to survive a racing dial")
	}
	if !channel.Connected() {
		t.Fatal("channel must stay connected")
	}
	if err := channel.Emit("join-chat", map[string]string{"chatId": "c1"}); err != nil {
		t.Fatalf("emit after racing dial: %v", err)
	}
}

func TestManualReconnect(t *testing.T) {
	server := newWSServer(t)
	channel := dialTest(t, server)

	// Live connection: Reconnect is a no-op.
	if err := channel.Reconnect(); err != nil {
		t.Fatalf("reconnect on live channel: %v", err)
	}

	if err := channel.Close(); err != nil {
		t.Fatal(err)
	}
	if err := channel.Reconnect(); err == nil {
		t.Fatal("expected error reconnecting a closed channel")
	}
}

package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	clientSendBuffer = 16
	clientReadLimit  = 512 * 1024
	pingPeriod       = 30 * time.Second
)

// wsClient is one upgraded socket connection. The write pump owns all writes
// to the connection; keepAlive pings share the mutex with it.
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	id     string
	userID string
	logger zerolog.Logger

	done     chan struct{}
	mu       sync.Mutex
	isClosed bool

	sendOnce sync.Once
}

func newWSClient(conn *websocket.Conn, id string, logger zerolog.Logger) *wsClient {
	return &wsClient{
		conn:   conn,
		send:   make(chan []byte, clientSendBuffer),
		id:     id,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// trySend queues a frame without blocking; false means the client is too
// slow and should be dropped.
func (cl *wsClient) trySend(payload []byte) bool {
	select {
	case cl.send <- payload:
		return true
	default:
		return false
	}
}

func (cl *wsClient) closeSend() {
	cl.sendOnce.Do(func() { close(cl.send) })
}

func (cl *wsClient) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.conn.WriteMessage(websocket.PingMessage, nil)
			cl.mu.Unlock()

			if err != nil {
				cl.logger.Debug().Str("client", cl.id).Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (cl *wsClient) writePump() {
	defer func() {
		cl.mu.Lock()
		cl.isClosed = true
		cl.conn.Close()
		cl.mu.Unlock()
	}()

	for {
		select {
		case <-cl.done:
			return
		case payload, ok := <-cl.send:
			if !ok {
				return
			}

			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.conn.WriteMessage(websocket.TextMessage, payload)
			cl.mu.Unlock()

			if err != nil {
				cl.logger.Debug().Str("client", cl.id).Err(err).Msg("write failed")
				return
			}
		}
	}
}

// readPump decodes inbound envelopes and hands them to onEvent until the
// peer goes away.
func (cl *wsClient) readPump(hub *Hub, onEvent func(*wsClient, []byte)) {
	defer func() {
		if r := recover(); r != nil {
			cl.logger.Error().Interface("panic", r).Msg("recovered in read pump")
		}
		close(cl.done)
		hub.Unregister(cl)
		cl.logger.Debug().Str("client", cl.id).Msg("client disconnected")
	}()

	cl.conn.SetReadLimit(clientReadLimit)

	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				if closeErr.Code == websocket.CloseNormalClosure ||
					closeErr.Code == websocket.CloseGoingAway ||
					closeErr.Code == websocket.CloseNoStatusReceived {
					break
				}
			}
			cl.logger.Debug().Str("client", cl.id).Err(err).Msg("read failed")
			break
		}
		onEvent(cl, raw)
	}
}

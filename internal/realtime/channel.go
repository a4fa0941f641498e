// Package realtime maintains the single live event connection to the
// support backend. One Channel is constructed by the application root and
// injected into every consumer; there is no package-level socket.
package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"support-chat-client/internal/protocol"
)

// ErrDisconnected is returned by Emit while no connection is live. Nothing
// is queued client-side: a message composed while offline is simply not
// deliverable.
var ErrDisconnected = errors.New("realtime: channel disconnected")

// Handler receives the raw payload of one event delivery.
type Handler func(data json.RawMessage)

type Options struct {
	URL string

	// Reconnection policy. Zero values take the defaults below, which match
	// the backend's published client configuration.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	PingInterval   time.Duration

	Dialer *websocket.Dialer
	Logger zerolog.Logger
}

const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 5 * time.Second
	defaultPingInterval   = 30 * time.Second
)

type Channel struct {
	opts   Options
	logger zerolog.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	done         chan struct{}
	connected    bool
	closed       bool
	reconnecting bool
	nextID       int
	subs         map[string]map[int]Handler
	statusSubs   map[int]func(connected bool)

	// writeMu serialises frames; gorilla permits one concurrent writer.
	writeMu sync.Mutex
}

// Dial connects and starts the read and keepalive pumps. On transport
// failure the channel reconnects on its own, bounded by MaxAttempts with
// capped exponential backoff; once the budget is spent it stays
// disconnected until Reconnect is called.
func Dial(opts Options) (*Channel, error) {
	if opts.URL == "" {
		return nil, errors.New("realtime: URL required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	c := &Channel{
		opts:       opts,
		logger:     opts.Logger.With().Str("component", "realtime").Logger(),
		subs:       make(map[string]map[int]Handler),
		statusSubs: make(map[int]func(bool)),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// Subscribe registers a handler for one event name. The returned handle
// must be cancelled when the consumer unmounts.
func (c *Channel) Subscribe(event string, h Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[event] == nil {
		c.subs[event] = make(map[int]Handler)
	}
	id := c.nextID
	c.nextID++
	c.subs[event][id] = h
	return NewSubscription(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs[event], id)
	})
}

// OnStatus registers a connectivity observer. It fires with true after each
// successful (re)connect and false on each drop.
func (c *Channel) OnStatus(fn func(connected bool)) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.statusSubs[id] = fn
	return NewSubscription(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.statusSubs, id)
	})
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Emit sends one event to the server. It fails fast while disconnected.
func (c *Channel) Emit(event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return ErrDisconnected
	}

	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}
	eventsEmitted.Inc()
	return nil
}

// Reconnect restarts a channel whose retry budget ran out. No-op while a
// connection is live.
func (c *Channel) Reconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("realtime: channel closed")
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.connect()
}

func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if wasConnected {
		connectedGauge.Dec()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Channel) connect() error {
	conn, _, err := c.opts.Dialer.Dial(c.opts.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return errors.New("realtime: channel closed")
	}
	if c.connected {
		// A concurrent dial (manual Reconnect racing the retry loop) already
		// installed a connection; this one loses and is discarded.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connected = true
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	connectedGauge.Inc()
	c.logger.Debug().Str("url", c.opts.URL).Msg("connected")
	c.notifyStatus(true)

	go c.readLoop(conn, done)
	go c.keepAlive(conn, done)
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, done, err)
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			decodeErrors.Inc()
			c.logger.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		eventsReceived.WithLabelValues(env.Event).Inc()
		for _, h := range c.handlersFor(env.Event) {
			h(env.Data)
		}
	}
}

// handlersFor snapshots under lock so handlers run without holding it and
// may subscribe or cancel freely.
func (c *Channel) handlersFor(event string) []Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.subs[event]
	if len(m) == 0 {
		return nil
	}
	out := make([]Handler, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	return out
}

func (c *Channel) keepAlive(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Channel) handleDrop(conn *websocket.Conn, done chan struct{}, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	closed := c.closed
	alreadyRetrying := c.reconnecting
	if !closed {
		c.reconnecting = true
	}
	c.mu.Unlock()

	close(done)
	conn.Close()
	connectedGauge.Dec()

	if closed {
		return
	}
	c.logger.Warn().Err(err).Msg("connection dropped")
	c.notifyStatus(false)
	if !alreadyRetrying {
		go c.reconnectLoop()
	}
}

func (c *Channel) reconnectLoop() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	backoff := c.opts.InitialBackoff
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		time.Sleep(backoff)
		backoff *= 2
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}

		c.mu.Lock()
		if c.closed || c.connected {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		reconnectAttempts.Inc()
		if err := c.connect(); err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}
		return
	}
	c.logger.Error().Int("attempts", c.opts.MaxAttempts).Msg("reconnect budget exhausted; manual Reconnect required")
}

func (c *Channel) notifyStatus(connected bool) {
	c.mu.Lock()
	fns := make([]func(bool), 0, len(c.statusSubs))
	for _, fn := range c.statusSubs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(connected)
	}
}

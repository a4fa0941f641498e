// Package chat holds the conversation state for one active support session:
// message list, chat status, connection status and user identity. It
// reconciles REST-fetched history with realtime deliveries and is the only
// owner of this state; views read snapshots and call operations.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"support-chat-client/internal/model"
	"support-chat-client/internal/protocol"
	"support-chat-client/internal/realtime"
	"support-chat-client/internal/rest"
	"support-chat-client/internal/session"
)

// Bus is the slice of the realtime channel the controller consumes.
// *realtime.Channel satisfies it.
type Bus interface {
	Subscribe(event string, h realtime.Handler) *realtime.Subscription
	OnStatus(fn func(connected bool)) *realtime.Subscription
	Emit(event string, payload any) error
	Connected() bool
}

// API is the slice of the REST client the controller consumes.
type API interface {
	StartChat(ctx context.Context, name string) (model.Chat, error)
	GetChat(ctx context.Context, id string) (model.Chat, []model.Message, error)
	CloseChat(ctx context.Context, id string) error
}

// TokenStore is the session store contract. *session.Store satisfies it.
type TokenStore interface {
	Read() (string, bool)
	Write(token string, ttl time.Duration) error
	Clear() error
}

type NoticeKind string

const (
	NoticeClosed    NoticeKind = "closed"
	NoticeBanned    NoticeKind = "banned"
	NoticeError     NoticeKind = "error"
	NoticeDelivered NoticeKind = "delivered"
)

// Notice is a user-visible signal pushed to the view: remote closes, domain
// errors from the server, delivery acks.
type Notice struct {
	Kind    NoticeKind
	ChatID  string
	Message string
}

// Snapshot is a copy of the controller state safe for the view to render.
type Snapshot struct {
	Status    model.ChatStatus
	ChatID    string
	UserID    string
	Connected bool
	Messages  []model.Message
}

const defaultMaxMessageLen = 1000

type Option func(*Controller)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithOnChange installs the view re-render hook, fired after every state
// mutation. It runs on the channel's dispatch goroutine; keep it cheap.
func WithOnChange(fn func()) Option {
	return func(c *Controller) { c.onChange = fn }
}

func WithOnNotice(fn func(Notice)) Option {
	return func(c *Controller) { c.onNotice = fn }
}

func WithMaxMessageLength(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxMessageLen = n
		}
	}
}

type Controller struct {
	bus    Bus
	api    API
	store  TokenStore
	logger zerolog.Logger

	onChange func()
	onNotice func(Notice)

	maxMessageLen int

	mu        sync.Mutex
	status    model.ChatStatus
	chat      model.Chat
	userID    string
	connected bool
	messages  []model.Message
	seen      *idRing
	pending   map[string]struct{}
	subs      []*realtime.Subscription
}

func NewController(bus Bus, api API, store TokenStore, opts ...Option) *Controller {
	c := &Controller{
		bus:           bus,
		api:           api,
		store:         store,
		logger:        zerolog.Nop(),
		status:        model.ChatStatusIdle,
		maxMessageLen: defaultMaxMessageLen,
		seen:          newIDRing(),
		pending:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.connected = bus.Connected()
	return c
}

// Attach registers all event handlers. It detaches first, so calling it
// again cannot double-deliver.
func (c *Controller) Attach() {
	c.Detach()

	subs := []*realtime.Subscription{
		c.bus.Subscribe(protocol.EventReceiveMessage, c.handleReceiveMessage),
		c.bus.Subscribe(protocol.EventChatClosed, c.handleClosed(false)),
		c.bus.Subscribe(protocol.EventChatClosedByAdmin, c.handleClosed(true)),
		c.bus.Subscribe(protocol.EventUserBanned, c.handleBanned),
		c.bus.Subscribe(protocol.EventChatError, c.handleChatError),
		c.bus.Subscribe(protocol.EventMessageSent, c.handleMessageSent),
		c.bus.OnStatus(c.handleConnectivity),
	}

	c.mu.Lock()
	c.subs = subs
	c.mu.Unlock()
}

// Detach cancels every handler this controller registered. Must be called
// when the owning view unmounts.
func (c *Controller) Detach() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]model.Message, len(c.messages))
	copy(msgs, c.messages)
	return Snapshot{
		Status:    c.status,
		ChatID:    c.chat.ID,
		UserID:    c.userID,
		Connected: c.connected,
		Messages:  msgs,
	}
}

func (c *Controller) Status() model.ChatStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) ChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chat.ID
}

// Start creates a new conversation for the named visitor, persists the
// session token and joins the conversation room.
func (c *Controller) Start(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return newError(ErrorCodeValidation, "name is required", nil)
	}

	c.mu.Lock()
	if c.status == model.ChatStatusActive {
		c.mu.Unlock()
		return newError(ErrorCodeConflict, "a conversation is already active", nil)
	}
	c.mu.Unlock()

	chat, err := c.api.StartChat(ctx, name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.chat.ID != "" && c.chat.ID != chat.ID {
		if c.status != model.ChatStatusClosed {
			// An establishment already happened (realtime event won the race
			// with a different id). Keep the REST result: it is authoritative.
			c.logger.Warn().Str("event_chat", c.chat.ID).Str("rest_chat", chat.ID).Msg("conflicting conversation establishment")
		}
		// The new identifier owns a clean slate: nothing from the previous
		// conversation may leak into it.
		c.messages = nil
		c.seen.Reset()
		c.pending = make(map[string]struct{})
	}
	c.chat = chat
	c.userID = chat.UserID
	c.status = model.ChatStatusActive
	c.mu.Unlock()

	if err := c.store.Write(chat.ID, session.DefaultTTL); err != nil {
		c.logger.Warn().Err(err).Msg("persist session token failed")
	}
	c.joinRoom(chat.ID)
	c.notifyChange()
	return nil
}

// Restore re-enters a conversation using the stored session token. It
// returns false when no token is stored or the server no longer knows the
// conversation; in the latter case the stale token is cleared and the
// controller stays IDLE.
func (c *Controller) Restore(ctx context.Context) (bool, error) {
	token, ok := c.store.Read()
	if !ok {
		return false, nil
	}

	chat, messages, err := c.api.GetChat(ctx, token)
	if err != nil {
		if errors.Is(err, rest.ErrNotFound) {
			// Expired or unknown conversation: drop the stale token and
			// stay IDLE. Transport errors keep the token for a later try.
			if clearErr := c.store.Clear(); clearErr != nil {
				c.logger.Warn().Err(clearErr).Msg("clear stale session token failed")
			}
			return false, nil
		}
		return false, err
	}

	c.mu.Lock()
	c.chat = chat
	c.userID = chat.UserID
	c.status = chat.Status
	c.messages = messages
	c.seen.Reset()
	for _, m := range messages {
		c.seen.Add(m.ID)
	}
	c.mu.Unlock()

	if chat.Status == model.ChatStatusActive {
		c.joinRoom(chat.ID)
	}
	c.notifyChange()
	return true, nil
}

// Send emits one message over the realtime channel. It is fire-and-forget:
// the message is rendered only when the server echoes it back. Local
// rejections never touch the network.
func (c *Controller) Send(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return newError(ErrorCodeValidation, "message is empty", nil)
	}
	if len(content) > c.maxMessageLen {
		return newError(ErrorCodeValidation, "message exceeds maximum length", nil)
	}

	c.mu.Lock()
	switch {
	case c.status == model.ChatStatusClosed:
		c.mu.Unlock()
		return newError(ErrorCodeClosed, "conversation is closed", nil)
	case c.chat.ID == "":
		c.mu.Unlock()
		return newError(ErrorCodeNoChat, "no conversation started", nil)
	case c.userID == "":
		c.mu.Unlock()
		return newError(ErrorCodeValidation, "user identity unknown", nil)
	}
	chatID := c.chat.ID
	userID := c.userID
	c.mu.Unlock()

	if !c.bus.Connected() {
		return newError(ErrorCodeDisconnected, "channel disconnected", realtime.ErrDisconnected)
	}

	nonce := uuid.NewString()
	c.mu.Lock()
	c.pending[nonce] = struct{}{}
	c.mu.Unlock()

	err := c.bus.Emit(protocol.EventSendMessage, protocol.SendMessagePayload{
		ChatID:  chatID,
		Content: content,
		Sender:  model.SenderUser,
		UserID:  userID,
		Nonce:   nonce,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.pending, nonce)
		c.mu.Unlock()
		if errors.Is(err, realtime.ErrDisconnected) {
			return newError(ErrorCodeDisconnected, "channel disconnected", err)
		}
		return err
	}
	return nil
}

// Close ends the conversation from the user side: REST call first, then the
// local status flip.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.status != model.ChatStatusActive || c.chat.ID == "" {
		c.mu.Unlock()
		return newError(ErrorCodeNoChat, "no active conversation", nil)
	}
	chatID := c.chat.ID
	c.mu.Unlock()

	if err := c.api.CloseChat(ctx, chatID); err != nil {
		return err
	}

	c.mu.Lock()
	c.status = model.ChatStatusClosed
	c.mu.Unlock()
	c.notifyChange()
	return nil
}

// StartNew abandons the current conversation: state returns to IDLE and the
// stored token is cleared. A closed conversation is never re-entered with
// its old identifier from this side.
func (c *Controller) StartNew() error {
	c.mu.Lock()
	c.chat = model.Chat{}
	c.userID = ""
	c.status = model.ChatStatusIdle
	c.messages = nil
	c.seen.Reset()
	c.pending = make(map[string]struct{})
	c.mu.Unlock()

	err := c.store.Clear()
	c.notifyChange()
	return err
}

func (c *Controller) joinRoom(chatID string) {
	err := c.bus.Emit(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: chatID})
	if err != nil {
		// Harmless while offline: the connectivity handler rejoins after
		// the next successful reconnect.
		c.logger.Debug().Err(err).Str("chat", chatID).Msg("join-chat deferred")
	}
}

func (c *Controller) handleReceiveMessage(data json.RawMessage) {
	var payload protocol.ReceiveMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("bad receive-message payload")
		return
	}

	c.mu.Lock()
	if c.chat.ID == "" && c.status != model.ChatStatusClosed {
		// The first realtime delivery can beat the REST response that
		// assigns the conversation id; whichever arrives first establishes
		// the conversation.
		c.chat.ID = payload.ChatID
		c.status = model.ChatStatusActive
	}
	if payload.ChatID != c.chat.ID {
		c.mu.Unlock()
		return
	}

	msg := payload.Message
	if c.isDuplicateLocked(msg) {
		dupSuppressed.Inc()
		c.mu.Unlock()
		return
	}
	if msg.Nonce != "" {
		delete(c.pending, msg.Nonce)
	}
	c.messages = append(c.messages, msg)
	c.seen.Add(msg.ID)
	last := msg.Content
	c.chat.LastMessage = &last
	c.mu.Unlock()

	messagesAppended.Inc()
	c.notifyChange()
}

// isDuplicateLocked decides whether an incoming message was already
// appended. Server-assigned ids are the preferred key; id-less messages use
// the original last-message sender+content comparison, which only catches
// immediate-predecessor duplicates.
func (c *Controller) isDuplicateLocked(msg model.Message) bool {
	if msg.ID != "" {
		return c.seen.Contains(msg.ID)
	}
	if msg.Nonce != "" {
		if _, ok := c.pending[msg.Nonce]; !ok {
			// A nonce we no longer wait on is a redelivered echo.
			return true
		}
	}
	if n := len(c.messages); n > 0 {
		last := c.messages[n-1]
		if last.Content == msg.Content && last.Sender == msg.Sender {
			return true
		}
	}
	return false
}

func (c *Controller) handleClosed(byAdmin bool) realtime.Handler {
	return func(data json.RawMessage) {
		var payload protocol.ChatClosedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			c.logger.Warn().Err(err).Msg("bad chat-closed payload")
			return
		}

		c.mu.Lock()
		if c.chat.ID == "" || payload.ChatID != c.chat.ID || c.status == model.ChatStatusClosed {
			c.mu.Unlock()
			return
		}
		c.status = model.ChatStatusClosed
		c.mu.Unlock()

		message := "conversation closed"
		if byAdmin {
			message = "conversation closed by support"
		}
		if payload.Reason != "" {
			message += ": " + payload.Reason
		}
		c.notify(Notice{Kind: NoticeClosed, ChatID: payload.ChatID, Message: message})
		c.notifyChange()
	}
}

func (c *Controller) handleBanned(data json.RawMessage) {
	var payload protocol.ErrorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	c.notify(Notice{Kind: NoticeBanned, Message: payload.Message})
}

func (c *Controller) handleChatError(data json.RawMessage) {
	var payload protocol.ErrorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	c.notify(Notice{Kind: NoticeError, Message: payload.Message})
}

func (c *Controller) handleMessageSent(data json.RawMessage) {
	var payload protocol.MessageSentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	c.notify(Notice{Kind: NoticeDelivered, ChatID: payload.ChatID})
}

func (c *Controller) handleConnectivity(connected bool) {
	c.mu.Lock()
	c.connected = connected
	rejoin := connected && c.status == model.ChatStatusActive && c.chat.ID != ""
	chatID := c.chat.ID
	c.mu.Unlock()

	if rejoin {
		// Room membership does not survive a reconnect.
		c.joinRoom(chatID)
	}
	c.notifyChange()
}

func (c *Controller) notifyChange() {
	if c.onChange != nil {
		c.onChange()
	}
}

func (c *Controller) notify(n Notice) {
	if c.onNotice != nil {
		c.onNotice(n)
	}
}

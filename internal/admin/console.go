// Package admin holds the operator console state: the active and closed
// conversation collections, the currently open conversation, analytics and
// settings. It is an independent consumer of the same realtime channel the
// widget uses and never shares mutable state with it.
package admin

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"support-chat-client/internal/dto"
	"support-chat-client/internal/model"
	"support-chat-client/internal/protocol"
	"support-chat-client/internal/realtime"
)

// Bus is the slice of the realtime channel the console consumes.
type Bus interface {
	Subscribe(event string, h realtime.Handler) *realtime.Subscription
	OnStatus(fn func(connected bool)) *realtime.Subscription
	Emit(event string, payload any) error
	Connected() bool
}

// API is the slice of the REST client the console consumes.
type API interface {
	ListChats(ctx context.Context, status model.ChatStatus) ([]model.ChatSummary, error)
	ChatMessages(ctx context.Context, id string) ([]model.Message, error)
	CloseChatAsAdmin(ctx context.Context, id, reason string) error
	ReopenChat(ctx context.Context, id, reason string) error
	SaveNotes(ctx context.Context, id, notes string) error
	Analytics(ctx context.Context) (model.AnalyticsSummary, error)
	Users(ctx context.Context, role string) ([]model.User, error)
	SetUserBanned(ctx context.Context, id string, banned bool) error
	SetUserRole(ctx context.Context, id, role string) error
	Settings(ctx context.Context) (model.Settings, error)
	UpdateSettings(ctx context.Context, patch dto.UpdateSettingsRequest) (model.Settings, error)
}

type Option func(*Console)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Console) { c.logger = logger }
}

func WithOnChange(fn func()) Option {
	return func(c *Console) { c.onChange = fn }
}

// WithOperator records the logged-in operator; Reply stamps messages with
// this identity.
func WithOperator(u model.User) Option {
	return func(c *Console) { c.operator = u }
}

type openChat struct {
	summary  model.ChatSummary
	messages []model.Message
}

type Console struct {
	bus      Bus
	api      API
	logger   zerolog.Logger
	onChange func()
	operator model.User

	mu        sync.Mutex
	active    []model.ChatSummary
	closed    []model.ChatSummary
	analytics model.AnalyticsSummary
	current   *openChat
	connected bool
	subs      []*realtime.Subscription

	settingsLoaded bool
	committed      model.Settings
	draft          model.Settings
}

func NewConsole(bus Bus, api API, opts ...Option) *Console {
	c := &Console{
		bus:    bus,
		api:    api,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.connected = bus.Connected()
	return c
}

// Attach registers realtime handlers; detaches first so re-attaching cannot
// double-deliver.
func (c *Console) Attach() {
	c.Detach()

	subs := []*realtime.Subscription{
		c.bus.Subscribe(protocol.EventReceiveMessage, c.handleReceiveMessage),
		c.bus.Subscribe(protocol.EventChatClosed, c.handleChatClosed),
		c.bus.Subscribe(protocol.EventChatClosedByAdmin, c.handleChatClosed),
		c.bus.OnStatus(c.handleConnectivity),
	}

	c.mu.Lock()
	c.subs = subs
	c.mu.Unlock()
}

func (c *Console) Detach() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
}

// Refresh replaces both collections and the analytics from authoritative
// fetches. Runs on view switch and on every poll tick.
func (c *Console) Refresh(ctx context.Context) error {
	active, err := c.api.ListChats(ctx, model.ChatStatusActive)
	if err != nil {
		return err
	}
	closed, err := c.api.ListChats(ctx, model.ChatStatusClosed)
	if err != nil {
		return err
	}
	analytics, err := c.api.Analytics(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.active = active
	c.closed = closed
	c.analytics = analytics
	// Keep the open conversation's summary in sync with the fetch.
	if c.current != nil {
		if s, ok := findChat(active, c.current.summary.ID); ok {
			c.current.summary = s
		} else if s, ok := findChat(closed, c.current.summary.ID); ok {
			c.current.summary = s
		}
	}
	c.mu.Unlock()

	c.notifyChange()
	return nil
}

// Open loads a conversation's history and joins its room.
func (c *Console) Open(ctx context.Context, id string) error {
	c.mu.Lock()
	summary, ok := findChat(c.active, id)
	if !ok {
		summary, ok = findChat(c.closed, id)
	}
	c.mu.Unlock()
	if !ok {
		return ErrUnknownChat
	}

	if err := c.bus.Emit(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: id}); err != nil {
		c.logger.Debug().Err(err).Str("chat", id).Msg("join-chat deferred")
	}

	messages, err := c.api.ChatMessages(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.current = &openChat{summary: summary, messages: messages}
	c.mu.Unlock()
	c.notifyChange()
	return nil
}

// Reply sends an operator message into the open conversation.
func (c *Console) Reply(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNoOpenChat
	}
	if c.current.summary.Status == model.ChatStatusClosed {
		c.mu.Unlock()
		return ErrChatClosed
	}
	chatID := c.current.summary.ID
	c.mu.Unlock()

	if !c.bus.Connected() {
		return realtime.ErrDisconnected
	}
	return c.bus.Emit(protocol.EventSendMessage, protocol.SendMessagePayload{
		ChatID:  chatID,
		Content: content,
		Sender:  model.SenderAdmin,
		UserID:  c.operator.ID,
	})
}

// CloseCurrent closes the open conversation and moves it to the head of the
// closed collection, patching the analytics without a refetch.
func (c *Console) CloseCurrent(ctx context.Context, reason string) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNoOpenChat
	}
	if c.current.summary.Status == model.ChatStatusClosed {
		c.mu.Unlock()
		return ErrChatClosed
	}
	chatID := c.current.summary.ID
	c.mu.Unlock()

	if err := c.api.CloseChatAsAdmin(ctx, chatID, reason); err != nil {
		return err
	}

	c.mu.Lock()
	c.moveToClosedLocked(chatID)
	if c.current != nil && c.current.summary.ID == chatID {
		c.current.summary.Status = model.ChatStatusClosed
	}
	c.mu.Unlock()
	c.notifyChange()
	return nil
}

// Reopen returns a closed conversation to the active collection. This is
// the one path that reactivates an existing identifier.
func (c *Console) Reopen(ctx context.Context, id, reason string) error {
	if err := c.api.ReopenChat(ctx, id, reason); err != nil {
		return err
	}

	c.mu.Lock()
	for i, chat := range c.closed {
		if chat.ID != id {
			continue
		}
		chat.Status = model.ChatStatusActive
		c.closed = append(c.closed[:i], c.closed[i+1:]...)
		c.active = append([]model.ChatSummary{chat}, c.active...)
		c.analytics.ClosedCount--
		c.analytics.ActiveCount++
		break
	}
	if c.current != nil && c.current.summary.ID == id {
		c.current.summary.Status = model.ChatStatusActive
	}
	c.mu.Unlock()

	if err := c.bus.Emit(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: id}); err != nil {
		c.logger.Debug().Err(err).Str("chat", id).Msg("join-chat deferred")
	}
	c.notifyChange()
	return nil
}

// SaveNotes stores operator notes on the open conversation.
func (c *Console) SaveNotes(ctx context.Context, notes string) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNoOpenChat
	}
	chatID := c.current.summary.ID
	c.mu.Unlock()
	return c.api.SaveNotes(ctx, chatID, notes)
}

// Search filters both collections by a client-local substring match over
// user name, preview and id.
func (c *Console) Search(query string) []model.ChatSummary {
	query = strings.ToLower(strings.TrimSpace(query))
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []model.ChatSummary
	for _, list := range [][]model.ChatSummary{c.active, c.closed} {
		for _, chat := range list {
			if query == "" ||
				strings.Contains(strings.ToLower(chat.UserName), query) ||
				strings.Contains(strings.ToLower(chat.LastMessage), query) ||
				strings.Contains(strings.ToLower(chat.ID), query) {
				out = append(out, chat)
			}
		}
	}
	return out
}

func (c *Console) ActiveChats() []model.ChatSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ChatSummary(nil), c.active...)
}

func (c *Console) ClosedChats() []model.ChatSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ChatSummary(nil), c.closed...)
}

func (c *Console) Analytics() model.AnalyticsSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analytics
}

// Current returns the open conversation and a copy of its message list.
func (c *Console) Current() (model.ChatSummary, []model.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return model.ChatSummary{}, nil, false
	}
	msgs := make([]model.Message, len(c.current.messages))
	copy(msgs, c.current.messages)
	return c.current.summary, msgs, true
}

func (c *Console) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Console) handleReceiveMessage(data json.RawMessage) {
	var payload protocol.ReceiveMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("bad receive-message payload")
		return
	}

	c.mu.Lock()
	if c.current != nil && c.current.summary.ID == payload.ChatID {
		if !c.isDuplicateLocked(payload.Message) {
			c.current.messages = append(c.current.messages, payload.Message)
		}
	}
	c.patchPreviewLocked(payload.ChatID, payload.Message.Content)
	c.mu.Unlock()
	c.notifyChange()
}

// isDuplicateLocked mirrors the widget controller's policy: id first,
// last-message sender+content for id-less deliveries.
func (c *Console) isDuplicateLocked(msg model.Message) bool {
	msgs := c.current.messages
	if msg.ID != "" {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].ID == msg.ID {
				return true
			}
		}
		return false
	}
	if n := len(msgs); n > 0 {
		last := msgs[n-1]
		return last.Content == msg.Content && last.Sender == msg.Sender
	}
	return false
}

// patchPreviewLocked updates the last-message preview of whichever
// collection currently holds the chat.
func (c *Console) patchPreviewLocked(chatID, content string) {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, list := range [][]model.ChatSummary{c.active, c.closed} {
		for i := range list {
			if list[i].ID == chatID {
				list[i].LastMessage = content
				list[i].UpdatedAt = now
			}
		}
	}
}

func (c *Console) handleChatClosed(data json.RawMessage) {
	var payload protocol.ChatClosedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	c.mu.Lock()
	c.moveToClosedLocked(payload.ChatID)
	if c.current != nil && c.current.summary.ID == payload.ChatID {
		c.current.summary.Status = model.ChatStatusClosed
	}
	c.mu.Unlock()
	c.notifyChange()
}

// moveToClosedLocked moves a conversation from active to closed. The
// reverse never happens here: only the explicit reopen flow reactivates.
func (c *Console) moveToClosedLocked(chatID string) {
	for i, chat := range c.active {
		if chat.ID != chatID {
			continue
		}
		chat.Status = model.ChatStatusClosed
		c.active = append(c.active[:i], c.active[i+1:]...)
		c.closed = append([]model.ChatSummary{chat}, c.closed...)
		c.analytics.ActiveCount--
		if c.analytics.ActiveCount < 0 {
			c.analytics.ActiveCount = 0
		}
		c.analytics.ClosedCount++
		return
	}
}

func (c *Console) handleConnectivity(connected bool) {
	c.mu.Lock()
	c.connected = connected
	rejoin := connected && c.current != nil
	var chatID string
	if rejoin {
		chatID = c.current.summary.ID
	}
	c.mu.Unlock()

	if rejoin {
		if err := c.bus.Emit(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: chatID}); err != nil {
			c.logger.Debug().Err(err).Str("chat", chatID).Msg("rejoin deferred")
		}
	}
	c.notifyChange()
}

func (c *Console) notifyChange() {
	if c.onChange != nil {
		c.onChange()
	}
}

func findChat(list []model.ChatSummary, id string) (model.ChatSummary, bool) {
	for _, chat := range list {
		if chat.ID == id {
			return chat, true
		}
	}
	return model.ChatSummary{}, false
}

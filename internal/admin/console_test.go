package admin

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"support-chat-client/internal/dto"
	"support-chat-client/internal/model"
	"support-chat-client/internal/protocol"
	"support-chat-client/internal/realtime"
)

type fakeBus struct {
	mu        sync.Mutex
	connected bool
	nextID    int
	handlers  map[string]map[int]realtime.Handler
	statusFns map[int]func(bool)
	emits     []string
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		connected: true,
		handlers:  make(map[string]map[int]realtime.Handler),
		statusFns: make(map[int]func(bool)),
	}
}

func (b *fakeBus) Subscribe(event string, h realtime.Handler) *realtime.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[event] == nil {
		b.handlers[event] = make(map[int]realtime.Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[event][id] = h
	return realtime.NewSubscription(func() {
		b.mu.Lock()
		delete(b.handlers[event], id)
		b.mu.Unlock()
	})
}

func (b *fakeBus) OnStatus(fn func(bool)) *realtime.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.statusFns[id] = fn
	return realtime.NewSubscription(func() {
		b.mu.Lock()
		delete(b.statusFns, id)
		b.mu.Unlock()
	})
}

func (b *fakeBus) Emit(event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emits = append(b.emits, event)
	return nil
}

func (b *fakeBus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBus) fire(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	b.mu.Lock()
	var hs []realtime.Handler
	for _, h := range b.handlers[event] {
		hs = append(hs, h)
	}
	b.mu.Unlock()
	for _, h := range hs {
		h(raw)
	}
}

func (b *fakeBus) emitCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.emits {
		if e == event {
			n++
		}
	}
	return n
}

type fakeAdminAPI struct {
	mu        sync.Mutex
	active    []model.ChatSummary
	closed    []model.ChatSummary
	messages  map[string][]model.Message
	analytics model.AnalyticsSummary
	users     []model.User
	settings  model.Settings

	closeCalls  []string
	reopenCalls []string
	notesCalls  map[string]string
	patches     []dto.UpdateSettingsRequest
}

func newFakeAdminAPI() *fakeAdminAPI {
	return &fakeAdminAPI{
		messages:   make(map[string][]model.Message),
		notesCalls: make(map[string]string),
		settings: model.Settings{
			Widget:           model.WidgetSettings{BubbleText: "Hi", HeaderText: "Support", ThemeColor: "#111111"},
			SupportHours:     "9-17",
			MaxMessageLength: 1000,
		},
	}
}

func (a *fakeAdminAPI) ListChats(ctx context.Context, status model.ChatStatus) ([]model.ChatSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if status == model.ChatStatusClosed {
		return append([]model.ChatSummary(nil), a.closed...), nil
	}
	return append([]model.ChatSummary(nil), a.active...), nil
}

func (a *fakeAdminAPI) ChatMessages(ctx context.Context, id string) ([]model.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.Message(nil), a.messages[id]...), nil
}

func (a *fakeAdminAPI) CloseChatAsAdmin(ctx context.Context, id, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeCalls = append(a.closeCalls, id)
	return nil
}

func (a *fakeAdminAPI) ReopenChat(ctx context.Context, id, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reopenCalls = append(a.reopenCalls, id)
	return nil
}

func (a *fakeAdminAPI) SaveNotes(ctx context.Context, id, notes string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notesCalls[id] = notes
	return nil
}

func (a *fakeAdminAPI) Analytics(ctx context.Context) (model.AnalyticsSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.analytics, nil
}

func (a *fakeAdminAPI) Users(ctx context.Context, role string) ([]model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.User(nil), a.users...), nil
}

func (a *fakeAdminAPI) SetUserBanned(ctx context.Context, id string, banned bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.users {
		if a.users[i].ID == id {
			a.users[i].IsBanned = banned
		}
	}
	return nil
}

func (a *fakeAdminAPI) SetUserRole(ctx context.Context, id, role string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.users {
		if a.users[i].ID == id {
			a.users[i].Role = role
		}
	}
	return nil
}

func (a *fakeAdminAPI) Settings(ctx context.Context) (model.Settings, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings, nil
}

func (a *fakeAdminAPI) UpdateSettings(ctx context.Context, patch dto.UpdateSettingsRequest) (model.Settings, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.patches = append(a.patches, patch)
	if patch.BubbleText != nil {
		a.settings.Widget.BubbleText = *patch.BubbleText
	}
	if patch.HeaderText != nil {
		a.settings.Widget.HeaderText = *patch.HeaderText
	}
	if patch.ThemeColor != nil {
		a.settings.Widget.ThemeColor = *patch.ThemeColor
	}
	if patch.SupportHours != nil {
		a.settings.SupportHours = *patch.SupportHours
	}
	if patch.MaxMessageLength != nil {
		a.settings.MaxMessageLength = *patch.MaxMessageLength
	}
	return a.settings, nil
}

func summary(id, user, last string, status model.ChatStatus) model.ChatSummary {
	return model.ChatSummary{
		ID:          id,
		Status:      status,
		UserName:    user,
		LastMessage: last,
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

func setupConsole(t *testing.T) (*Console, *fakeBus, *fakeAdminAPI) {
	t.Helper()
	bus := newFakeBus()
	api := newFakeAdminAPI()
	api.active = []model.ChatSummary{
		summary("c1", "Ana", "hello", model.ChatStatusActive),
		summary("c2", "Bob", "hi there", model.ChatStatusActive),
	}
	api.closed = []model.ChatSummary{
		summary("c3", "Cleo", "bye", model.ChatStatusClosed),
	}
	api.analytics = model.AnalyticsSummary{ActiveCount: 2, ClosedCount: 1, TotalCount: 3}
	api.messages["c1"] = []model.Message{
		{ID: "m1", Content: "hello", Sender: model.SenderUser},
	}

	console := NewConsole(bus, api, WithOperator(model.User{ID: "op1", Name: "Operator"}))
	console.Attach()
	t.Cleanup(console.Detach)

	if err := console.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return console, bus, api
}

func TestRefreshLoadsCollections(t *testing.T) {
	console, _, _ := setupConsole(t)

	if got := len(console.ActiveChats()); got != 2 {
		t.Fatalf("expected 2 active chats, got %d", got)
	}
	if got := len(console.ClosedChats()); got != 1 {
		t.Fatalf("expected 1 closed chat, got %d", got)
	}
	if a := console.Analytics(); a.TotalCount != 3 {
		t.Fatalf("expected analytics total 3, got %d", a.TotalCount)
	}
}

func TestOpenJoinsRoomAndLoadsHistory(t *testing.T) {
	console, bus, _ := setupConsole(t)

	if err := console.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if bus.emitCount(protocol.EventJoinChat) != 1 {
		t.Fatal("expected a join-chat emit")
	}

	current, messages, ok := console.Current()
	if !ok || current.ID != "c1" || len(messages) != 1 {
		t.Fatalf("unexpected open state: ok=%v id=%s msgs=%d", ok, current.ID, len(messages))
	}
}

func TestOpenUnknownChat(t *testing.T) {
	console, _, _ := setupConsole(t)
	if err := console.Open(context.Background(), "nope"); err != ErrUnknownChat {
		t.Fatalf("expected ErrUnknownChat, got %v", err)
	}
}

func TestReplyRequiresOpenChat(t *testing.T) {
	console, _, _ := setupConsole(t)
	if err := console.Reply("hi"); err != ErrNoOpenChat {
		t.Fatalf("expected ErrNoOpenChat, got %v", err)
	}
}

func TestReplyRejectsEmpty(t *testing.T) {
	console, _, _ := setupConsole(t)
	if err := console.Reply("   "); err != ErrEmptyMessage {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestRealtimePreviewPatch(t *testing.T) {
	console, bus, _ := setupConsole(t)

	bus.fire(t, protocol.EventReceiveMessage, protocol.ReceiveMessagePayload{
		ChatID:  "c2",
		Message: model.Message{ID: "m5", Content: "new question", Sender: model.SenderUser},
	})

	for _, chat := range console.ActiveChats() {
		if chat.ID == "c2" {
			if chat.LastMessage != "new question" {
				t.Fatalf("expected preview patched, got %q", chat.LastMessage)
			}
			return
		}
	}
	t.Fatal("chat c2 missing from active collection")
}

func TestOpenChatReceivesRealtimeMessages(t *testing.T) {
	console, bus, _ := setupConsole(t)
	if err := console.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	delivery := protocol.ReceiveMessagePayload{
		ChatID:  "c1",
		Message: model.Message{ID: "m2", Content: "anyone there?", Sender: model.SenderUser},
	}
	bus.fire(t, protocol.EventReceiveMessage, delivery)
	bus.fire(t, protocol.EventReceiveMessage, delivery)

	_, messages, _ := console.Current()
	if len(messages) != 2 {
		t.Fatalf("expected dedup to keep 2 messages, got %d", len(messages))
	}
}

func TestCloseCurrentMovesAndPatchesAnalytics(t *testing.T) {
	console, _, api := setupConsole(t)
	if err := console.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := console.CloseCurrent(context.Background(), "resolved"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(api.closeCalls) != 1 || api.closeCalls[0] != "c1" {
		t.Fatalf("expected close API call for c1, got %v", api.closeCalls)
	}

	closed := console.ClosedChats()
	if len(closed) != 2 || closed[0].ID != "c1" {
		t.Fatalf("expected c1 at head of closed collection, got %v", closed)
	}
	a := console.Analytics()
	if a.ActiveCount != 1 || a.ClosedCount != 2 {
		t.Fatalf("expected patched analytics 1/2, got %d/%d", a.ActiveCount, a.ClosedCount)
	}

	if err := console.Reply("too late"); err != ErrChatClosed {
		t.Fatalf("expected ErrChatClosed after close, got %v", err)
	}
}

func TestChatClosedEventMovesCollection(t *testing.T) {
	console, bus, _ := setupConsole(t)

	bus.fire(t, protocol.EventChatClosed, protocol.ChatClosedPayload{ChatID: "c2"})

	for _, chat := range console.ActiveChats() {
		if chat.ID == "c2" {
			t.Fatal("expected c2 moved out of active")
		}
	}
	closed := console.ClosedChats()
	if len(closed) != 2 || closed[0].ID != "c2" {
		t.Fatalf("expected c2 at head of closed, got %v", closed)
	}

	// Redelivery must not double-move.
	bus.fire(t, protocol.EventChatClosed, protocol.ChatClosedPayload{ChatID: "c2"})
	if a := console.Analytics(); a.ClosedCount != 2 {
		t.Fatalf("expected closed count stable at 2, got %d", a.ClosedCount)
	}
}

func TestAdminInitiatedCloseEventMovesCollection(t *testing.T) {
	console, bus, _ := setupConsole(t)

	// Closes performed by another operator arrive as chat-closed-by-admin;
	// they must patch the collections without waiting for the next poll.
	bus.fire(t, protocol.EventChatClosedByAdmin, protocol.ChatClosedPayload{ChatID: "c2"})

	for _, chat := range console.ActiveChats() {
		if chat.ID == "c2" {
			t.Fatal("expected c2 moved out of active")
		}
	}
	closed := console.ClosedChats()
	if len(closed) != 2 || closed[0].ID != "c2" {
		t.Fatalf("expected c2 at head of closed, got %v", closed)
	}
	if a := console.Analytics(); a.ActiveCount != 1 || a.ClosedCount != 2 {
		t.Fatalf("expected analytics patched, got %+v", a)
	}
}

func TestReopenMovesBackAndRejoins(t *testing.T) {
	console, bus, api := setupConsole(t)

	if err := console.Reopen(context.Background(), "c3", ""); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(api.reopenCalls) != 1 || api.reopenCalls[0] != "c3" {
		t.Fatalf("expected reopen API call, got %v", api.reopenCalls)
	}

	active := console.ActiveChats()
	if len(active) != 3 || active[0].ID != "c3" {
		t.Fatalf("expected c3 at head of active, got %v", active)
	}
	if bus.emitCount(protocol.EventJoinChat) != 1 {
		t.Fatal("expected rejoin emit on reopen")
	}
}

func TestSearchFiltersBothCollections(t *testing.T) {
	console, _, _ := setupConsole(t)

	if got := console.Search("ana"); len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("expected c1 for query 'ana', got %v", got)
	}
	if got := console.Search("BYE"); len(got) != 1 || got[0].ID != "c3" {
		t.Fatalf("expected case-insensitive match on preview, got %v", got)
	}
	if got := console.Search(""); len(got) != 3 {
		t.Fatalf("expected empty query to return everything, got %d", len(got))
	}
}

func TestSaveNotesTargetsOpenChat(t *testing.T) {
	console, _, api := setupConsole(t)
	if err := console.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := console.SaveNotes(context.Background(), "VIP customer"); err != nil {
		t.Fatalf("save notes: %v", err)
	}
	if api.notesCalls["c1"] != "VIP customer" {
		t.Fatalf("expected notes saved for c1, got %v", api.notesCalls)
	}
}

func TestSettingsDraftAndDiffedSave(t *testing.T) {
	console, _, api := setupConsole(t)
	if _, err := console.LoadSettings(context.Background()); err != nil {
		t.Fatalf("load settings: %v", err)
	}

	console.EditDraft(func(s *model.Settings) {
		s.Widget.HeaderText = "Helpdesk"
		s.SupportHours = "24/7"
	})

	// Nothing sent until save.
	if len(api.patches) != 0 {
		t.Fatalf("expected no patch before save, got %v", api.patches)
	}

	if err := console.SaveSettings(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(api.patches) != 1 {
		t.Fatalf("expected one patch, got %d", len(api.patches))
	}
	patch := api.patches[0]
	if patch.HeaderText == nil || *patch.HeaderText != "Helpdesk" {
		t.Fatalf("expected header in patch, got %+v", patch)
	}
	if patch.SupportHours == nil || *patch.SupportHours != "24/7" {
		t.Fatalf("expected hours in patch, got %+v", patch)
	}
	if patch.BubbleText != nil || patch.ThemeColor != nil || patch.MaxMessageLength != nil {
		t.Fatalf("expected unchanged fields omitted, got %+v", patch)
	}

	// A second save with no edits is a no-op.
	if err := console.SaveSettings(context.Background()); err != nil {
		t.Fatalf("noop save: %v", err)
	}
	if len(api.patches) != 1 {
		t.Fatalf("expected no-op save to send nothing, got %d patches", len(api.patches))
	}
}

func TestSetThemeColorAppliesImmediately(t *testing.T) {
	console, _, api := setupConsole(t)
	if _, err := console.LoadSettings(context.Background()); err != nil {
		t.Fatalf("load settings: %v", err)
	}

	if err := console.SetThemeColor(context.Background(), "#ff0000"); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if len(api.patches) != 1 || api.patches[0].ThemeColor == nil {
		t.Fatalf("expected immediate theme patch, got %v", api.patches)
	}
	if console.Draft().Widget.ThemeColor != "#ff0000" {
		t.Fatal("expected draft to follow applied theme")
	}
}

func TestReconnectRejoinsOpenChat(t *testing.T) {
	console, bus, _ := setupConsole(t)
	if err := console.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	before := bus.emitCount(protocol.EventJoinChat)
	bus.mu.Lock()
	fns := make([]func(bool), 0, len(bus.statusFns))
	for _, fn := range bus.statusFns {
		fns = append(fns, fn)
	}
	bus.mu.Unlock()
	for _, fn := range fns {
		fn(true)
	}

	if got := bus.emitCount(protocol.EventJoinChat); got != before+1 {
		t.Fatalf("expected rejoin after reconnect, got %d emits", got)
	}
}

func TestUserManagementPassthrough(t *testing.T) {
	console, _, api := setupConsole(t)
	api.users = []model.User{{ID: "u1", Name: "Ana", Role: model.RoleVisitor}}

	if err := console.SetUserBanned(context.Background(), "u1", true); err != nil {
		t.Fatalf("ban: %v", err)
	}
	users, err := console.Users(context.Background(), "")
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if len(users) != 1 || !users[0].IsBanned {
		t.Fatalf("expected u1 banned, got %+v", users)
	}

	if err := console.SetUserRole(context.Background(), "u1", model.RoleAdmin); err != nil {
		t.Fatalf("role: %v", err)
	}
	users, _ = console.Users(context.Background(), "")
	if users[0].Role != model.RoleAdmin {
		t.Fatalf("expected promoted role, got %s", users[0].Role)
	}
}

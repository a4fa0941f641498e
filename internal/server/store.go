package server

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"support-chat-client/internal/dto"
	"support-chat-client/internal/model"
)

var (
	ErrChatNotFound = errors.New("server: chat not found")
	ErrUserNotFound = errors.New("server: user not found")
)

type chatRecord struct {
	chat     model.Chat
	messages []model.Message
}

// Store holds every chat, message, user and the settings in memory. With a
// data path configured, writes also land in the pebble log and are replayed
// on boot; users are re-seeded instead.
type Store struct {
	mu           sync.Mutex
	chats        map[string]*chatRecord
	users        map[string]model.User
	passwordHash map[string]string
	settings     model.Settings
	persist      *Persist
	logger       zerolog.Logger
	now          func() time.Time
}

func NewStore() *Store {
	return &Store{
		chats:        make(map[string]*chatRecord),
		users:        make(map[string]model.User),
		passwordHash: make(map[string]string),
		logger:       zerolog.Nop(),
		settings: model.Settings{
			Widget: model.WidgetSettings{
				BubbleText: "How can we help?",
				HeaderText: "Customer Support",
				ThemeColor: "#2563eb",
			},
			SupportHours:     "Mon-Fri 9:00-17:00",
			MaxMessageLength: 1000,
		},
		now: time.Now,
	}
}

// SetLogger replaces the store's logger. The zero store logs nowhere.
func (s *Store) SetLogger(logger zerolog.Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// AttachPersist replays the log into the store and keeps appending to it.
func (s *Store) AttachPersist(p *Persist) error {
	records, err := p.LoadAll()
	if err != nil {
		return err
	}
	s.mu.Lock()
	for _, rec := range records {
		switch {
		case rec.Chat != nil:
			existing, ok := s.chats[rec.Chat.ID]
			if !ok {
				s.chats[rec.Chat.ID] = &chatRecord{chat: *rec.Chat}
			} else {
				existing.chat = *rec.Chat
			}
		case rec.Message != nil:
			if cr, ok := s.chats[rec.Message.ChatID]; ok {
				cr.messages = append(cr.messages, *rec.Message)
			}
		case rec.User != nil:
			s.users[rec.User.ID] = *rec.User
		}
	}
	s.persist = p
	s.mu.Unlock()
	return nil
}

// SeedAdmin ensures an operator account exists with the given credentials.
func (s *Store) SeedAdmin(name, email, password string) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return model.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			s.passwordHash[email] = string(hash)
			return u, nil
		}
	}
	user := model.User{
		ID:    uuid.NewString(),
		Name:  name,
		Email: email,
		Role:  model.RoleAdmin,
	}
	s.users[user.ID] = user
	s.passwordHash[email] = string(hash)
	return user, nil
}

// Authenticate checks operator credentials.
func (s *Store) Authenticate(email, password string) (model.User, bool) {
	s.mu.Lock()
	hash, ok := s.passwordHash[email]
	var user model.User
	if ok {
		ok = false
		for _, u := range s.users {
			if u.Email == email {
				user = u
				ok = true
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return model.User{}, false
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return model.User{}, false
	}
	return user, true
}

// CreateChat makes a visitor user plus an ACTIVE conversation.
func (s *Store) CreateChat(name string) (model.Chat, model.User) {
	now := s.now().UTC().Format(time.RFC3339)
	user := model.User{
		ID:   uuid.NewString(),
		Name: name,
		Role: model.RoleVisitor,
	}
	chat := model.Chat{
		ID:        uuid.NewString(),
		Status:    model.ChatStatusActive,
		UserID:    user.ID,
		User:      &model.UserRef{ID: user.ID, Name: user.Name, Role: user.Role},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.users[user.ID] = user
	s.chats[chat.ID] = &chatRecord{chat: chat}
	s.mu.Unlock()

	s.persistChat(chat)
	s.persistUser(user)
	return chat, user
}

func (s *Store) GetChat(id string) (model.Chat, []model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cr, ok := s.chats[id]
	if !ok {
		return model.Chat{}, nil, ErrChatNotFound
	}
	msgs := make([]model.Message, len(cr.messages))
	copy(msgs, cr.messages)
	return cr.chat, msgs, nil
}

// AppendMessage stores one message and updates the conversation preview.
func (s *Store) AppendMessage(chatID, content string, sender model.MessageSender, userID string, isBot bool) (model.Message, error) {
	now := s.now().UTC().Format(time.RFC3339)
	msg := model.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Content:   content,
		Sender:    sender,
		IsBot:     isBot,
		UserID:    userID,
		CreatedAt: now,
	}

	s.mu.Lock()
	cr, ok := s.chats[chatID]
	if !ok {
		s.mu.Unlock()
		return model.Message{}, ErrChatNotFound
	}
	cr.messages = append(cr.messages, msg)
	last := content
	cr.chat.LastMessage = &last
	cr.chat.UpdatedAt = now
	chat := cr.chat
	s.mu.Unlock()

	s.persistChat(chat)
	s.persistMessage(msg)
	return msg, nil
}

func (s *Store) ChatStatus(id string) (model.ChatStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cr, ok := s.chats[id]
	if !ok {
		return "", ErrChatNotFound
	}
	return cr.chat.Status, nil
}

func (s *Store) CloseChat(id string) error {
	now := s.now().UTC().Format(time.RFC3339)
	s.mu.Lock()
	cr, ok := s.chats[id]
	if !ok {
		s.mu.Unlock()
		return ErrChatNotFound
	}
	cr.chat.Status = model.ChatStatusClosed
	cr.chat.ClosedAt = &now
	cr.chat.UpdatedAt = now
	chat := cr.chat
	s.mu.Unlock()

	s.persistChat(chat)
	return nil
}

func (s *Store) ReopenChat(id string) error {
	now := s.now().UTC().Format(time.RFC3339)
	s.mu.Lock()
	cr, ok := s.chats[id]
	if !ok {
		s.mu.Unlock()
		return ErrChatNotFound
	}
	cr.chat.Status = model.ChatStatusActive
	cr.chat.ClosedAt = nil
	cr.chat.UpdatedAt = now
	chat := cr.chat
	s.mu.Unlock()

	s.persistChat(chat)
	return nil
}

func (s *Store) SetNotes(id, notes string) error {
	s.mu.Lock()
	cr, ok := s.chats[id]
	if !ok {
		s.mu.Unlock()
		return ErrChatNotFound
	}
	cr.chat.Notes = notes
	chat := cr.chat
	s.mu.Unlock()

	s.persistChat(chat)
	return nil
}

// ListChats returns summaries for one status, most recently updated first.
func (s *Store) ListChats(status model.ChatStatus) []model.ChatSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.ChatSummary, 0)
	for _, cr := range s.chats {
		if status != "" && cr.chat.Status != status {
			continue
		}
		summary := model.ChatSummary{
			ID:        cr.chat.ID,
			Status:    cr.chat.Status,
			UpdatedAt: cr.chat.UpdatedAt,
		}
		if cr.chat.User != nil {
			summary.UserName = cr.chat.User.Name
		}
		if cr.chat.LastMessage != nil {
			summary.LastMessage = *cr.chat.LastMessage
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) Analytics() model.AnalyticsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary model.AnalyticsSummary
	for _, cr := range s.chats {
		summary.TotalCount++
		switch cr.chat.Status {
		case model.ChatStatusActive:
			summary.ActiveCount++
		case model.ChatStatusClosed:
			summary.ClosedCount++
		}
	}
	return summary
}

func (s *Store) Users(role string) []model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.User, 0)
	for _, u := range s.users {
		if role != "" && !strings.EqualFold(u.Role, role) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) UserByID(id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *Store) SetUserBanned(id string, banned bool) (model.User, error) {
	s.mu.Lock()
	u, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		return model.User{}, ErrUserNotFound
	}
	u.IsBanned = banned
	s.users[id] = u
	s.mu.Unlock()

	s.persistUser(u)
	return u, nil
}

func (s *Store) SetUserRole(id, role string) (model.User, error) {
	s.mu.Lock()
	u, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		return model.User{}, ErrUserNotFound
	}
	u.Role = role
	s.users[id] = u
	s.mu.Unlock()

	s.persistUser(u)
	return u, nil
}

func (s *Store) UserBanned(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return ok && u.IsBanned
}

// ActiveChatOfUser finds the user's current conversation, if any.
func (s *Store) ActiveChatOfUser(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cr := range s.chats {
		if cr.chat.UserID == userID && cr.chat.Status == model.ChatStatusActive {
			return id, true
		}
	}
	return "", false
}

func (s *Store) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Store) UpdateSettings(patch dto.UpdateSettingsRequest) model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.BubbleText != nil {
		s.settings.Widget.BubbleText = *patch.BubbleText
	}
	if patch.HeaderText != nil {
		s.settings.Widget.HeaderText = *patch.HeaderText
	}
	if patch.ThemeColor != nil {
		s.settings.Widget.ThemeColor = *patch.ThemeColor
	}
	if patch.SupportHours != nil {
		s.settings.SupportHours = *patch.SupportHours
	}
	if patch.MaxMessageLength != nil && *patch.MaxMessageLength > 0 {
		s.settings.MaxMessageLength = *patch.MaxMessageLength
	}
	return s.settings
}

func (s *Store) MaxMessageLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.MaxMessageLength
}

func (s *Store) persistChat(chat model.Chat) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Append(Record{Chat: &chat}); err != nil {
		// The in-memory state stays authoritative for this process.
		s.logger.Error().Err(err).Str("chat", chat.ID).Msg("persist chat failed")
	}
}

func (s *Store) persistMessage(msg model.Message) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Append(Record{Message: &msg}); err != nil {
		s.logger.Error().Err(err).Str("message", msg.ID).Msg("persist message failed")
	}
}

func (s *Store) persistUser(u model.User) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Append(Record{User: &u}); err != nil {
		s.logger.Error().Err(err).Str("user", u.ID).Msg("persist user failed")
	}
}

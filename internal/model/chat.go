package model

type ChatStatus string

const (
	// ChatStatusIdle is a client-side placeholder: no conversation has been
	// created yet. The server never stores or returns it.
	ChatStatusIdle   ChatStatus = "IDLE"
	ChatStatusActive ChatStatus = "ACTIVE"
	ChatStatusClosed ChatStatus = "CLOSED"
)

type MessageSender string

const (
	SenderUser  MessageSender = "USER"
	SenderAdmin MessageSender = "ADMIN"
)

// Chat is one support conversation between an end-user and the support side.
// Timestamps are RFC3339 strings as delivered by the API.
type Chat struct {
	ID          string     `json:"id"`
	Status      ChatStatus `json:"status"`
	UserID      string     `json:"userId"`
	User        *UserRef   `json:"user,omitempty"`
	CreatedAt   string     `json:"createdAt"`
	UpdatedAt   string     `json:"updatedAt"`
	ClosedAt    *string    `json:"closedAt,omitempty"`
	LastMessage *string    `json:"lastMessage,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Message is append-only within its conversation; the client never edits or
// deletes one. Nonce is the client-generated echo key and is only set on
// messages that originated from this process.
type Message struct {
	ID        string        `json:"id"`
	ChatID    string        `json:"chatId,omitempty"`
	Content   string        `json:"content"`
	Sender    MessageSender `json:"sender"`
	IsBot     bool          `json:"isBot,omitempty"`
	UserID    string        `json:"userId,omitempty"`
	Nonce     string        `json:"nonce,omitempty"`
	CreatedAt string        `json:"createdAt,omitempty"`
}

// ChatSummary is the admin list shape: enough to render a conversation card
// without fetching its history.
type ChatSummary struct {
	ID          string     `json:"id"`
	Status      ChatStatus `json:"status"`
	UserName    string     `json:"userName,omitempty"`
	LastMessage string     `json:"lastMessage,omitempty"`
	UpdatedAt   string     `json:"updatedAt,omitempty"`
}

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsBanned bool   `json:"isBanned"`
}

const (
	RoleVisitor = "VISITOR"
	RoleAdmin   = "ADMIN"
)

// AnalyticsSummary is derived state: recomputed from authoritative fetches
// and incrementally patched by the console, never persisted client-side.
type AnalyticsSummary struct {
	ActiveCount int `json:"activeCount"`
	ClosedCount int `json:"closedCount"`
	TotalCount  int `json:"totalCount"`
}

type WidgetSettings struct {
	BubbleText string `json:"bubbleText"`
	HeaderText string `json:"headerText"`
	ThemeColor string `json:"themeColor"`
}

type Settings struct {
	Widget           WidgetSettings `json:"widget"`
	SupportHours     string         `json:"supportHours"`
	MaxMessageLength int            `json:"maxMessageLength"`
}

// Package protocol defines the event contract spoken over the realtime
// socket. The event names and payload shapes are fixed by the support
// backend; both the client channel and the stub server speak exactly this.
package protocol

import (
	"encoding/json"
	"fmt"

	"support-chat-client/internal/model"
)

const (
	// Client -> server.
	EventJoinChat    = "join-chat"
	EventSendMessage = "send-message"

	// Server -> client.
	EventReceiveMessage    = "receive-message"
	EventChatClosed        = "chat-closed"
	EventChatClosedByAdmin = "chat-closed-by-admin"
	EventUserBanned        = "user-banned"
	EventChatError         = "chat-error"
	EventMessageSent       = "message-sent"
)

// Envelope frames every socket message: one event name plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s payload: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("protocol: envelope without event name")
	}
	return env, nil
}

type JoinChatPayload struct {
	ChatID string `json:"chatId"`
}

type SendMessagePayload struct {
	ChatID  string              `json:"chatId"`
	Content string              `json:"content"`
	Sender  model.MessageSender `json:"sender"`
	UserID  string              `json:"userId,omitempty"`
	IsBot   bool                `json:"isBot,omitempty"`
	Nonce   string              `json:"nonce,omitempty"`
}

type ReceiveMessagePayload struct {
	ChatID  string        `json:"chatId"`
	Message model.Message `json:"message"`
}

type ChatClosedPayload struct {
	ChatID string `json:"chatId"`
	Reason string `json:"reason,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// MessageSentPayload acknowledges delivery of a send-message emit. Nonce
// matches the one the client attached, so the sender can mark the message
// delivered before (or after) the echo arrives.
type MessageSentPayload struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Nonce     string `json:"nonce,omitempty"`
}

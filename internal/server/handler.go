package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"support-chat-client/internal/model"
	"support-chat-client/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SocketHandler owns the /socket endpoint: it upgrades connections, routes
// join-chat and send-message events, and pushes conversation events back out
// through the publisher.
type SocketHandler struct {
	hub       *Hub
	store     *Store
	publisher Publisher
	logger    zerolog.Logger
}

func NewSocketHandler(hub *Hub, store *Store, publisher Publisher, logger zerolog.Logger) *SocketHandler {
	return &SocketHandler{
		hub:       hub,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("socket upgrade failed")
		return
	}

	cl := newWSClient(conn, uuid.NewString(), h.logger)
	h.hub.Register(cl)

	go cl.keepAlive()
	go cl.writePump()
	go cl.readPump(h.hub, h.dispatch)
}

func (h *SocketHandler) dispatch(cl *wsClient, raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		h.logger.Debug().Str("client", cl.id).Err(err).Msg("bad envelope")
		h.sendError(cl, "malformed event")
		return
	}

	switch env.Event {
	case protocol.EventJoinChat:
		var payload protocol.JoinChatPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.ChatID == "" {
			h.sendError(cl, "join-chat requires a chatId")
			return
		}
		if _, err := h.store.ChatStatus(payload.ChatID); err != nil {
			h.sendError(cl, "unknown conversation")
			return
		}
		h.hub.Join(cl, payload.ChatID)

	case protocol.EventSendMessage:
		var payload protocol.SendMessagePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			h.sendError(cl, "malformed send-message payload")
			return
		}
		h.handleSendMessage(cl, payload)

	default:
		h.logger.Debug().Str("client", cl.id).Str("event", env.Event).Msg("ignoring event")
	}
}

func (h *SocketHandler) handleSendMessage(cl *wsClient, payload protocol.SendMessagePayload) {
	status, err := h.store.ChatStatus(payload.ChatID)
	if err != nil {
		h.sendError(cl, "unknown conversation")
		return
	}
	if status == model.ChatStatusClosed {
		h.sendError(cl, "conversation is closed")
		return
	}

	if payload.UserID != "" && h.store.UserBanned(payload.UserID) {
		h.sendDirect(cl, protocol.EventUserBanned, protocol.ErrorPayload{
			Message: "your account has been banned",
		})
		return
	}

	content := strings.TrimSpace(payload.Content)
	if content == "" {
		h.sendError(cl, "message content is required")
		return
	}
	if max := h.store.MaxMessageLength(); len([]rune(content)) > max {
		h.sendError(cl, fmt.Sprintf("message exceeds %d characters", max))
		return
	}

	sender := payload.Sender
	if sender != model.SenderAdmin {
		sender = model.SenderUser
	}

	msg, err := h.store.AppendMessage(payload.ChatID, content, sender, payload.UserID, payload.IsBot)
	if err != nil {
		h.sendError(cl, "unknown conversation")
		return
	}
	msg.Nonce = payload.Nonce

	h.broadcast(payload.ChatID, protocol.EventReceiveMessage, protocol.ReceiveMessagePayload{
		ChatID:  payload.ChatID,
		Message: msg,
	})

	h.sendDirect(cl, protocol.EventMessageSent, protocol.MessageSentPayload{
		ChatID:    payload.ChatID,
		MessageID: msg.ID,
		Nonce:     payload.Nonce,
	})
}

// NotifyClosed tells the room a conversation ended. Admin-initiated closes
// use a dedicated event so the widget can say who ended the chat.
func (h *SocketHandler) NotifyClosed(chatID string, byAdmin bool) {
	event := protocol.EventChatClosed
	reason := "closed"
	if byAdmin {
		event = protocol.EventChatClosedByAdmin
		reason = "closed by support"
	}
	h.broadcast(chatID, event, protocol.ChatClosedPayload{ChatID: chatID, Reason: reason})
}

func (h *SocketHandler) broadcast(roomID, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		h.logger.Error().Str("event", event).Err(err).Msg("encode failed")
		return
	}
	h.publisher.Publish(roomID, frame)
}

func (h *SocketHandler) sendError(cl *wsClient, message string) {
	h.sendDirect(cl, protocol.EventChatError, protocol.ErrorPayload{Message: message})
}

// sendDirect targets one client, bypassing the room fan-out.
func (h *SocketHandler) sendDirect(cl *wsClient, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		h.logger.Error().Str("event", event).Err(err).Msg("encode failed")
		return
	}
	if !cl.trySend(frame) {
		h.logger.Debug().Str("client", cl.id).Msg("dropping direct frame for slow client")
	}
}

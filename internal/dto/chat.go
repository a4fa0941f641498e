package dto

import "support-chat-client/internal/model"

type StartChatRequest struct {
	Name string `json:"name"`
}

type StartChatResponse struct {
	Chat model.Chat `json:"chat"`
}

type ChatHistoryResponse struct {
	Chat     model.Chat      `json:"chat"`
	Messages []model.Message `json:"messages"`
}

type CloseChatRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ReopenChatRequest struct {
	Reason string `json:"reason,omitempty"`
}

type NotesRequest struct {
	Notes string `json:"notes"`
}

package rest

import (
	"context"
	"net/http"

	"support-chat-client/internal/dto"
	"support-chat-client/internal/model"
)

// StartChat creates a new conversation for the named visitor and returns
// the server-assigned chat, including the id used as the session token.
func (c *Client) StartChat(ctx context.Context, name string) (model.Chat, error) {
	var res dto.StartChatResponse
	err := c.do(ctx, http.MethodPost, "/chat/start", dto.StartChatRequest{Name: name}, &res)
	if err != nil {
		return model.Chat{}, err
	}
	return res.Chat, nil
}

// GetChat restores an existing conversation and its full history.
func (c *Client) GetChat(ctx context.Context, id string) (model.Chat, []model.Message, error) {
	var res dto.ChatHistoryResponse
	err := c.do(ctx, http.MethodGet, "/chat/"+pathEscape(id), nil, &res)
	if err != nil {
		return model.Chat{}, nil, err
	}
	return res.Chat, res.Messages, nil
}

// CloseChat closes the visitor's own conversation.
func (c *Client) CloseChat(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/chat/"+pathEscape(id)+"/close", nil, nil)
}

package rest

import (
	"context"
	"net/http"

	"support-chat-client/internal/dto"
	"support-chat-client/internal/model"
)

func (c *Client) ListChats(ctx context.Context, status model.ChatStatus) ([]model.ChatSummary, error) {
	var res []model.ChatSummary
	err := c.do(ctx, http.MethodGet, "/admin/chats?status="+string(status), nil, &res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) ChatMessages(ctx context.Context, id string) ([]model.Message, error) {
	var res []model.Message
	err := c.do(ctx, http.MethodGet, "/admin/chats/"+pathEscape(id)+"/messages", nil, &res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) CloseChatAsAdmin(ctx context.Context, id, reason string) error {
	return c.do(ctx, http.MethodPost, "/admin/chats/"+pathEscape(id)+"/close", dto.CloseChatRequest{Reason: reason}, nil)
}

func (c *Client) ReopenChat(ctx context.Context, id, reason string) error {
	return c.do(ctx, http.MethodPost, "/admin/chats/"+pathEscape(id)+"/reopen", dto.ReopenChatRequest{Reason: reason}, nil)
}

func (c *Client) SaveNotes(ctx context.Context, id, notes string) error {
	return c.do(ctx, http.MethodPost, "/admin/chats/"+pathEscape(id)+"/notes", dto.NotesRequest{Notes: notes}, nil)
}

func (c *Client) Analytics(ctx context.Context) (model.AnalyticsSummary, error) {
	var res model.AnalyticsSummary
	err := c.do(ctx, http.MethodGet, "/admin/analytics", nil, &res)
	if err != nil {
		return model.AnalyticsSummary{}, err
	}
	return res, nil
}

func (c *Client) Users(ctx context.Context, role string) ([]model.User, error) {
	path := "/admin/users"
	if role != "" {
		path += "?role=" + role
	}
	var res []model.User
	err := c.do(ctx, http.MethodGet, path, nil, &res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) SetUserBanned(ctx context.Context, id string, banned bool) error {
	return c.do(ctx, http.MethodPatch, "/admin/users/"+pathEscape(id)+"/status", dto.UpdateUserStatusRequest{IsBanned: banned}, nil)
}

func (c *Client) SetUserRole(ctx context.Context, id, role string) error {
	return c.do(ctx, http.MethodPatch, "/admin/users/"+pathEscape(id)+"/role", dto.UpdateUserRoleRequest{Role: role}, nil)
}

func (c *Client) Settings(ctx context.Context) (model.Settings, error) {
	var res dto.SettingsResponse
	err := c.do(ctx, http.MethodGet, "/admin/settings", nil, &res)
	if err != nil {
		return model.Settings{}, err
	}
	return res.Settings, nil
}

func (c *Client) UpdateSettings(ctx context.Context, patch dto.UpdateSettingsRequest) (model.Settings, error) {
	var res dto.SettingsResponse
	err := c.do(ctx, http.MethodPatch, "/admin/settings", patch, &res)
	if err != nil {
		return model.Settings{}, err
	}
	return res.Settings, nil
}

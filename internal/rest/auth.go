package rest

import (
	"context"
	"net/http"

	"support-chat-client/internal/dto"
	"support-chat-client/internal/model"
)

// Login establishes the admin session; the server sets a session cookie
// which the client's jar carries on subsequent admin calls.
func (c *Client) Login(ctx context.Context, email, password string) (model.User, error) {
	var res dto.MeResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", dto.LoginRequest{Email: email, Password: password}, &res)
	if err != nil {
		return model.User{}, err
	}
	return res.User, nil
}

func (c *Client) Me(ctx context.Context) (model.User, error) {
	var res dto.MeResponse
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &res)
	if err != nil {
		return model.User{}, err
	}
	return res.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

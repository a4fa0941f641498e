package admin

import (
	"context"

	"support-chat-client/internal/model"
)

// User management is operator-only and stateless on the console side: every
// call goes straight to the API and the caller re-lists afterwards.

func (c *Console) Users(ctx context.Context, role string) ([]model.User, error) {
	return c.api.Users(ctx, role)
}

// SetUserBanned toggles the ban flag. A banned user keeps their history but
// the server rejects their sends with a user-banned event.
func (c *Console) SetUserBanned(ctx context.Context, id string, banned bool) error {
	return c.api.SetUserBanned(ctx, id, banned)
}

func (c *Console) SetUserRole(ctx context.Context, id, role string) error {
	return c.api.SetUserRole(ctx, id, role)
}

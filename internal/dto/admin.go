package dto

import "support-chat-client/internal/model"

type UpdateUserStatusRequest struct {
	IsBanned bool `json:"isBanned"`
}

type UpdateUserRoleRequest struct {
	Role string `json:"role"`
}

type SettingsResponse struct {
	Settings model.Settings `json:"settings"`
}

// UpdateSettingsRequest is a partial patch: nil fields are left untouched.
// The console's save action populates only the fields that differ from its
// last committed snapshot.
type UpdateSettingsRequest struct {
	BubbleText       *string `json:"bubbleText,omitempty"`
	HeaderText       *string `json:"headerText,omitempty"`
	ThemeColor       *string `json:"themeColor,omitempty"`
	SupportHours     *string `json:"supportHours,omitempty"`
	MaxMessageLength *int    `json:"maxMessageLength,omitempty"`
}

func (r UpdateSettingsRequest) Empty() bool {
	return r.BubbleText == nil &&
		r.HeaderText == nil &&
		r.ThemeColor == nil &&
		r.SupportHours == nil &&
		r.MaxMessageLength == nil
}

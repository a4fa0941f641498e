package dto

import "support-chat-client/internal/model"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type MeResponse struct {
	User model.User `json:"user"`
}

type ApiMessageResponse struct {
	Message string `json:"message"`
}

package admin

import "errors"

var (
	ErrUnknownChat  = errors.New("admin: conversation not in either collection")
	ErrNoOpenChat   = errors.New("admin: no conversation open")
	ErrChatClosed   = errors.New("admin: conversation is closed")
	ErrEmptyMessage = errors.New("admin: message is empty")
)

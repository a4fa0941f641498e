package chat

import "errors"

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeNoChat       ErrorCode = "no_conversation"
	ErrorCodeClosed       ErrorCode = "conversation_closed"
	ErrorCodeDisconnected ErrorCode = "disconnected"
	ErrorCodeConflict     ErrorCode = "conflict"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// HasCode reports whether err is a controller error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var cerr *Error
	return errors.As(err, &cerr) && cerr.Code == code
}

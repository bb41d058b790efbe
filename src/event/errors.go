package event

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code. Calling code branches on codes,
// never on error strings.
type Code string

const (
	CodeInvalidRequest          Code = "INVALID_REQUEST"
	CodeEventSubscriptionFailed Code = "EVENT_SUBSCRIPTION_FAILED"
	CodeTypingStartFailed       Code = "TYPING_START_FAILED"
	CodeTypingStopFailed        Code = "TYPING_STOP_FAILED"
	CodePresenceUpdateFailed    Code = "PRESENCE_UPDATE_FAILED"
	CodeConnectionFailed        Code = "CONNECTION_FAILED"
	CodeParseError              Code = "PARSE_ERROR"
)

// Error is the tagged error type shared by the bus, the stream adapters and
// the notification bridge.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a new tagged error.
func E(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap tags an underlying error with a code.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, or "" if err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool { return CodeOf(err) == code }

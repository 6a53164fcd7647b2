package client

import (
	"errors"
	"fmt"
)

// Kind classifies why a call produced no result.
type Kind string

const (
	KindConfig     Kind = "config"
	KindValidation Kind = "validation"
	KindHTTP       Kind = "http"
	KindNetwork    Kind = "network"
	KindStream     Kind = "stream"
	KindDecode     Kind = "decode"
)

const (
	msgNotConfigured = "API URL not configured. Please set WAF_API_URL or api.base_url"
	msgNetwork       = "Network error. Please try again."
)

// Error is the uniform failure value of every gateway call.
type Error struct {
	Kind    Kind
	Status  int // HTTP status, 0 when no response was read
	Message string
	Err     error
}

// ErrNotConfigured is returned, without any request, when no base URL is set.
var ErrNotConfigured = &Error{Kind: KindConfig, Message: msgNotConfigured}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s error (HTTP %d): %s", e.Kind, e.Status, e.Message)
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	default:
		return string(e.Kind) + " error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err,
// ErrNotConfigured) works for copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Status == 0 && t.Message == e.Message
}

// IsKind reports whether err is a client error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}

// Validation wraps a local validation failure; the message is the user text.
func Validation(err error) *Error {
	return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
}

// UserMessage returns the text a user should see for err.
func UserMessage(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		switch {
		case ce.Message != "":
			return ce.Message
		case ce.Kind == KindNetwork:
			return msgNetwork
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// The backend boundary produces five failure classes. Callers branch with
// errors.As; the CLI turns each into a distinct user-facing message.

// NetworkError wraps a transport failure (backend unreachable, timeout).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError carries a backend rejection of the payload. Message is the
// backend's message field, surfaced verbatim when present.
type ValidationError struct {
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError reports a claim lost to a concurrent actor (HTTP 409).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	if e.Message == "" {
		return "someone else claimed this report"
	}
	return e.Message
}

// AuthError reports invalid credentials or an expired/missing token.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "authentication failed"
	}
	return e.Message
}

// NotFoundError reports a missing or malformed report id.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message == "" {
		return "not found"
	}
	return e.Message
}

// APIError wraps any other non-2xx response (backend bugs, 5xx).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// classify maps a non-2xx response to the error taxonomy. The message body
// is expected to be JSON with a message field; anything else is passed
// through as-is.
func classify(status int, body []byte) error {
	msg := messageFrom(body)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Message: msg}
	case http.StatusNotFound:
		return &NotFoundError{Message: msg}
	case http.StatusConflict:
		return &ConflictError{Message: msg}
	}
	if status >= 400 && status < 500 {
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &ValidationError{StatusCode: status, Message: msg}
	}
	return &APIError{StatusCode: status, Body: string(body)}
}

func messageFrom(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	return ""
}

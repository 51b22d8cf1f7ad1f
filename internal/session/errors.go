package session

import (
	"errors"
	"fmt"
)

// Precondition and lifecycle errors. Callers match them with errors.Is.
var (
	ErrNotConnected     = errors.New("socket session: not connected")
	ErrNotAuthenticated = errors.New("socket session: not authenticated")
	ErrRequestTimeout   = errors.New("socket session: request timed out")
	ErrConnectionClosed = errors.New("socket session: connection closed")
)

// ServerError is a failure reported by the relay in an error frame.
type ServerError struct {
	Code      string
	Message   string
	MessageAr string
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error (%s): %s", e.Code, e.Message)
	}
	return "server error: " + e.Message
}

// AuthError records why the relay refused the session token.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

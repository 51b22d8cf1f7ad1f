// Package protocol defines the WebSocket message protocol between the AI
// session client and the relay.
package protocol

import (
	"encoding/json"
	"time"
)

// Message types from relay to client
const (
	TypeConnected    = "connected"
	TypeAuthSuccess  = "auth_success"
	TypeAuthFailed   = "auth_failed"
	TypeChatStream   = "chat_stream"
	TypeChatComplete = "chat_complete"
	TypeChatResponse = "chat_response"
	TypeCodeResult   = "code_result"
	TypeStatusUpdate = "status_update"
	TypeError        = "error"
)

// Message types from client to relay
const (
	TypeAuthRequest = "auth_request"
	TypeChatRequest = "chat_request"
	TypeCodeExecute = "code_execute"
)

// Heartbeat types, valid in both directions.
const (
	TypePing = "ping"
	TypePong = "pong"
)

// Envelope is decoded first to dispatch on the message type. It carries the
// correlation fields so handlers that only need them can skip a second decode.
type Envelope struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Delta     string `json:"delta,omitempty"`
}

// ConnectedMessage is the relay's first frame on a new connection.
type ConnectedMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	Timestamp    int64  `json:"timestamp,omitempty"`
}

// AuthRequestMessage authenticates the connection.
type AuthRequestMessage struct {
	Type         string `json:"type"`
	SessionToken string `json:"sessionToken"`
}

// AuthSuccessMessage marks the connection as authenticated.
type AuthSuccessMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
}

// AuthFailedMessage carries the reason authentication was refused.
type AuthFailedMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ChatContext carries hints about the caller's locale.
type ChatContext struct {
	Language string `json:"language"`
}

// ChatRequestMessage starts a chat turn.
type ChatRequestMessage struct {
	Type      string      `json:"type"`
	RequestID string      `json:"requestId"`
	Message   string      `json:"message"`
	Context   ChatContext `json:"context"`
	Stream    bool        `json:"stream"`
}

// ChatStreamMessage is a partial chunk of a streamed reply.
type ChatStreamMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Delta     string `json:"delta"`
}

// ChatCompleteMessage is the terminal frame of a chat turn. The same shape is
// used for chat_response when the reply was not streamed.
type ChatCompleteMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Response  string `json:"response"`
	Intent    string `json:"intent,omitempty"`
}

// CodeExecuteMessage asks the relay to run a snippet.
type CodeExecuteMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Language  string `json:"language"`
	Code      string `json:"code"`
	Timeout   int64  `json:"timeout"` // milliseconds
}

// CodeResult is the structured outcome of a code_execute request.
type CodeResult struct {
	RequestID  string `json:"requestId"`
	Language   string `json:"language"`
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	Error      string `json:"error,omitempty"`
	ExitCode   int    `json:"exitCode"`
	DurationMs int64  `json:"durationMs"`
}

// CodeResultMessage is the terminal frame of a code_execute request.
type CodeResultMessage struct {
	Type string `json:"type"`
	CodeResult
}

// StatusUpdateMessage tells the client the relay is working on a request.
type StatusUpdateMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Status    string `json:"status,omitempty"`
}

// ErrorMessage reports a failure. RequestID is set when the failure belongs
// to a specific request.
type ErrorMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error"`
	ErrorAr   string `json:"errorAr,omitempty"`
}

// HeartbeatMessage is used for both ping and pong.
type HeartbeatMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Error codes
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeUnauthorized    = "unauthorized"
	ErrorCodePolicyBlocked   = "policy_blocked"
	ErrorCodeExecutionFailed = "execution_failed"
	ErrorCodeInternalError   = "internal_error"
)

// Decode parses the envelope of a raw frame.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// NewHeartbeat builds a ping or pong frame stamped with now.
func NewHeartbeat(kind string, now time.Time) HeartbeatMessage {
	return HeartbeatMessage{Type: kind, Timestamp: now.UnixMilli()}
}

// IsTerminal reports whether a message type ends a request's lifecycle.
func IsTerminal(msgType string) bool {
	switch msgType {
	case TypeChatComplete, TypeChatResponse, TypeCodeResult, TypeError:
		return true
	}
	return false
}

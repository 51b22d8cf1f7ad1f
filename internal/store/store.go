// Package store persists relay sessions and their conversation transcripts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/intent"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Session is an authenticated relay session.
type Session struct {
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Turn is one stored utterance of a session.
type Turn struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	RequestID string        `json:"request_id,omitempty"`
	Speaker   string        `json:"speaker"`
	Text      string        `json:"text"`
	Intent    intent.Intent `json:"intent,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Speakers.
const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

// Store defines the interface for transcript persistence.
type Store interface {
	GetOrCreateSession(ctx context.Context, sessionID string) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	TouchSession(ctx context.Context, sessionID string) error
	CountSessions(ctx context.Context) (int, error)

	AppendTurn(ctx context.Context, turn *Turn) error
	// ListTurns returns the newest limit turns oldest first. limit <= 0 returns all.
	ListTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	Close() error
}

// History converts stored turns into classifier history.
func History(turns []Turn) []intent.Turn {
	out := make([]intent.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, intent.Turn{
			Speaker:   t.Speaker,
			Text:      t.Text,
			Timestamp: t.CreatedAt,
			Intent:    t.Intent,
		})
	}
	return out
}

package relay

import (
	"context"
	"fmt"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/intent"
)

// Prompt is what a Responder answers.
type Prompt struct {
	SessionID string
	Text      string
	Language  string
	Intent    intent.Intent
	History   []intent.Turn
}

// Responder produces the assistant's reply to a chat turn.
type Responder interface {
	Respond(ctx context.Context, p Prompt) (string, error)
}

// StreamResponder produces the reply incrementally, calling emit for each
// delta in order, and returns the full text.
type StreamResponder interface {
	Responder
	RespondStream(ctx context.Context, p Prompt, emit func(delta string) error) (string, error)
}

// CannedResponder answers from fixed per-intent templates in Arabic or
// English.
type CannedResponder struct{}

var cannedReplies = map[intent.Intent][2]string{
	intent.Command:    {"Running that for you: %s", "جاري التنفيذ: %s"},
	intent.Inquiry:    {"Here is what I know about %s", "إليك ما أعرفه عن: %s"},
	intent.Discussion: {"Noted. Tell me more about %s", "فهمت. أخبرني المزيد عن: %s"},
	intent.Security:   {"Starting a security review of %s", "سأبدأ مراجعة أمنية لـ: %s"},
	intent.Build:      {"Drafting a build plan for %s", "سأعد خطة بناء لـ: %s"},
}

func (CannedResponder) Respond(_ context.Context, p Prompt) (string, error) {
	tmpl, ok := cannedReplies[p.Intent]
	if !ok {
		tmpl = cannedReplies[intent.Inquiry]
	}
	if p.Language == "ar" {
		return fmt.Sprintf(tmpl[1], p.Text), nil
	}
	return fmt.Sprintf(tmpl[0], p.Text), nil
}

// chunk splits text into pieces of at most size runes.
func chunk(text string, size int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	var out []string
	for len(runes) > size {
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	return append(out, string(runes))
}

package llm

import (
	"context"
	"fmt"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/relay"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/store"
)

// Responder answers relay chat turns with a chat completions model.
type Responder struct {
	client *Client
	model  string
}

// NewResponder uses model on client.
func NewResponder(client *Client, model string) *Responder {
	return &Responder{client: client, model: model}
}

func (r *Responder) Respond(ctx context.Context, p relay.Prompt) (string, error) {
	return r.client.Complete(ctx, ChatCompletionRequest{Model: r.model, Messages: Messages(p)})
}

func (r *Responder) RespondStream(ctx context.Context, p relay.Prompt, emit func(delta string) error) (string, error) {
	return r.client.Stream(ctx, ChatCompletionRequest{Model: r.model, Messages: Messages(p)}, emit)
}

// Messages builds the conversation sent upstream: a system message naming
// the detected intent and reply language, the history, then the new text.
func Messages(p relay.Prompt) []ChatMessage {
	language := "English"
	if p.Language == "ar" {
		language = "Arabic"
	}
	msgs := make([]ChatMessage, 0, len(p.History)+2)
	msgs = append(msgs, ChatMessage{
		Role:    RoleSystem,
		Content: fmt.Sprintf("You are the WebNova platform assistant. The user's request was classified as %q. Reply in %s.", p.Intent, language),
	})
	for _, turn := range p.History {
		role := RoleUser
		if turn.Speaker == store.SpeakerAssistant {
			role = RoleAssistant
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: turn.Text})
	}
	return append(msgs, ChatMessage{Role: RoleUser, Content: p.Text})
}

var (
	_ relay.Responder       = (*Responder)(nil)
	_ relay.StreamResponder = (*Responder)(nil)
)

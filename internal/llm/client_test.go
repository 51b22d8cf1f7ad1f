package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/intent"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/relay"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/store"
)

func sseChunk(content string) string {
	return fmt.Sprintf("data: {\"id\":\"c1\",\"model\":\"gpt\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":%q}}]}\n\n", content)
}

func TestClientComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Stream {
			t.Errorf("unexpected request: %+v (%v)", req, err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret", time.Second)
	text, err := client.Complete(context.Background(), ChatCompletionRequest{
		Model:    "gpt",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "hi" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestClientCompleteErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Authorization"), "empty") {
			fmt.Fprint(w, `{"id":"c1","choices":[]}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", time.Second).Complete(context.Background(), ChatCompletionRequest{Model: "gpt"})
	if err == nil || !strings.Contains(err.Error(), "invalid_request_error") {
		t.Fatalf("expected API error, got %v", err)
	}

	_, err = NewClient(server.URL, "empty", time.Second).Complete(context.Background(), ChatCompletionRequest{Model: "gpt"})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestClientStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, sseChunk("Hel"))
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, sseChunk(""))
		fmt.Fprint(w, sseChunk("lo"))
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, sseChunk("ignored"))
	}))
	defer server.Close()

	var deltas []string
	text, err := NewClient(server.URL, "", time.Second).Stream(context.Background(), ChatCompletionRequest{Model: "gpt"}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if text != "Hello" || strings.Join(deltas, "|") != "Hel|lo" {
		t.Fatalf("unexpected stream: %q %v", text, deltas)
	}
}

func TestClientStreamStopsOnEmitError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseChunk("a"))
		fmt.Fprint(w, sseChunk("b"))
	}))
	defer server.Close()

	stop := errors.New("client gone")
	calls := 0
	_, err := NewClient(server.URL, "", time.Second).Stream(context.Background(), ChatCompletionRequest{Model: "gpt"}, func(string) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expected to stop after first delta, got %v after %d calls", err, calls)
	}
}

func TestMessages(t *testing.T) {
	msgs := Messages(relay.Prompt{
		Text:     "أضف صفحة دفع",
		Language: "ar",
		Intent:   intent.Build,
		History: []intent.Turn{
			{Speaker: store.SpeakerUser, Text: "أنشئ متجر"},
			{Speaker: store.SpeakerAssistant, Text: "حسناً"},
		},
	})

	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleSystem || !strings.Contains(msgs[0].Content, "Arabic") || !strings.Contains(msgs[0].Content, `"build"`) {
		t.Fatalf("unexpected system message: %+v", msgs[0])
	}
	if msgs[1].Role != RoleUser || msgs[2].Role != RoleAssistant {
		t.Fatalf("unexpected history roles: %+v", msgs[1:3])
	}
	if msgs[3].Role != RoleUser || msgs[3].Content != "أضف صفحة دفع" {
		t.Fatalf("unexpected last message: %+v", msgs[3])
	}
}

func TestClientStreamOutlivesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for _, part := range []string{"slow", " but", " steady"} {
			time.Sleep(60 * time.Millisecond)
			fmt.Fprint(w, sseChunk(part))
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 100*time.Millisecond)
	text, err := client.Stream(context.Background(), ChatCompletionRequest{Model: "gpt"}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if text != "slow but steady" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestClientTimeouts(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, "", 50*time.Millisecond)
	if _, err := client.Stream(context.Background(), ChatCompletionRequest{Model: "gpt"}, func(string) error { return nil }); err == nil {
		t.Fatal("expected Stream to time out waiting for headers")
	}
	if _, err := client.Complete(context.Background(), ChatCompletionRequest{Model: "gpt"}); err == nil {
		t.Fatal("expected Complete to time out")
	}
}

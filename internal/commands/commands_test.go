package commands

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/config"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/protocol"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/session"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	assert.Equal(t, "webnova dev\n", execute(t, "version"))
}

func TestClassifyCommand(t *testing.T) {
	assert.Equal(t, "build\n", execute(t, "classify", "أنشئ", "منصة", "تجارة", "إلكترونية"))
	assert.Equal(t, "inquiry\n", execute(t, "classify", "What is the pricing model?"))
	assert.Equal(t, "meaningless\n", execute(t, "classify", "?!"))

	out := execute(t, "classify", "--explain", "أنشئ منصة تجارة إلكترونية")
	assert.Contains(t, out, "command: 1")
	assert.Contains(t, out, "build: 2")
}

func TestClassifyRequiresText(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"classify"})
	assert.Error(t, cmd.Execute())
}

type fakeClient struct {
	sent     []string
	executed []string
	reply    string
	err      error
	result   *protocol.CodeResult
}

func (f *fakeClient) SendMessage(_ context.Context, text, language string) (string, error) {
	f.sent = append(f.sent, language+":"+text)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeClient) ExecuteCode(_ context.Context, code, language string) (*protocol.CodeResult, error) {
	f.executed = append(f.executed, language+":"+code)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeClient) State() session.Snapshot {
	return session.Snapshot{Status: session.StatusAuthenticated, ConnectionID: "conn_1"}
}

func TestChatLoop(t *testing.T) {
	client := &fakeClient{
		reply:  "سأعد خطة بناء",
		result: &protocol.CodeResult{Success: true, Output: "hi\n", DurationMs: 3},
	}
	in := strings.NewReader("أنشئ منصة تجارة إلكترونية\n\n?!\n/exec sh echo hi\n/exec\n/status\n/quit\nnever sent\n")
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), client, "ar", in, &out))

	assert.Equal(t, []string{"ar:أنشئ منصة تجارة إلكترونية"}, client.sent)
	assert.Equal(t, []string{"sh:echo hi"}, client.executed)

	text := out.String()
	assert.Contains(t, text, "[build]")
	assert.Contains(t, text, "سأعد خطة بناء")
	assert.Contains(t, text, "(skipped: nothing to send)")
	assert.Contains(t, text, "hi\n(exit 0, 3ms)")
	assert.Contains(t, text, "usage: /exec <language> <code>")
	assert.Contains(t, text, "connection: conn_1")
	assert.Contains(t, text, "Bye!")
}

func TestChatLoopReportsErrors(t *testing.T) {
	client := &fakeClient{err: &session.ServerError{Code: "internal_error", Message: "internal error", MessageAr: "حدث خطأ داخلي"}}
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), client, "ar", strings.NewReader("تمام\n"), &out))
	assert.Contains(t, out.String(), "error: حدث خطأ داخلي")

	out.Reset()
	client.err = session.ErrNotAuthenticated
	require.NoError(t, chatLoop(context.Background(), client, "en", strings.NewReader("hello there\n/exec go fmt.Println(1)\n"), &out))
	assert.Equal(t, 2, strings.Count(out.String(), "error: "))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.DatabaseURL = ":memory:"
	cfg.ListenAddr = "127.0.0.1:0"

	a := &app{cfg: cfg, logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, "") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServeRejectsMissingPolicy(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	a := &app{cfg: cfg, logger: zap.NewNop()}

	assert.Error(t, a.serve(context.Background(), "/nonexistent/policy.rego"))
}

package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/intent"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/protocol"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/session"
)

const readyTimeout = 10 * time.Second

// chatClient is the part of session.Manager the chat loop uses.
type chatClient interface {
	SendMessage(ctx context.Context, text, language string) (string, error)
	ExecuteCode(ctx context.Context, code, language string) (*protocol.CodeResult, error)
	State() session.Snapshot
}

func newChatCommand(a *app) *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a relay interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if language == "" {
				language = a.cfg.Language
			}
			opts, err := a.cfg.SessionOptions()
			if err != nil {
				return err
			}
			opts.AutoConnect = true

			m := session.New(opts,
				session.WithDialer(session.WebSocketDialer{}),
				session.WithLogger(a.logger),
			)
			defer m.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Connecting to %s...\n", opts.URL)
			if err := m.Start(ctx); err != nil {
				a.logger.Warn("Initial connect failed, retrying", zap.Error(err))
			}
			readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
			defer cancel()
			if err := m.WaitReady(readyCtx); err != nil {
				if last := m.State().LastError; last != nil {
					return fmt.Errorf("session not ready: %w", last)
				}
				return fmt.Errorf("session not ready: %w", err)
			}

			fmt.Fprintln(out, "Authenticated.")
			fmt.Fprintln(out, "Commands: /exec <language> <code>, /status, /quit")
			fmt.Fprintln(out)
			return chatLoop(ctx, m, language, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVar(&language, "lang", "", "language hint sent with messages (default from config)")
	return cmd
}

// chatLoop reads lines from in until EOF or /quit. Lines that carry no
// meaning are not sent.
func chatLoop(ctx context.Context, client chatClient, language string, in io.Reader, out io.Writer) error {
	memory := intent.NewMemory(intent.DefaultMemoryCapacity)
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "/quit":
			fmt.Fprintln(out, "Bye!")
			return nil
		case input == "/status":
			printStatus(out, client.State())
			continue
		case strings.HasPrefix(input, "/exec"):
			runExec(ctx, client, strings.TrimSpace(strings.TrimPrefix(input, "/exec")), out)
			continue
		case intent.IsMeaningless(input):
			fmt.Fprintln(out, "(skipped: nothing to send)")
			continue
		}

		kind := intent.Detect(input, memory.Turns())
		fmt.Fprintf(out, "[%s]\n", kind)
		memory.Add(intent.Turn{Speaker: "user", Text: input, Timestamp: time.Now(), Intent: kind})

		reply, err := client.SendMessage(ctx, input, language)
		if err != nil {
			fmt.Fprintf(out, "error: %s\n", describeError(err, language))
			continue
		}
		fmt.Fprintln(out, reply)
		memory.Add(intent.Turn{Speaker: "assistant", Text: reply, Timestamp: time.Now(), Intent: kind})
	}
}

func runExec(ctx context.Context, client chatClient, rest string, out io.Writer) {
	language, code, ok := strings.Cut(rest, " ")
	if !ok || strings.TrimSpace(code) == "" {
		fmt.Fprintln(out, "usage: /exec <language> <code>")
		return
	}

	res, err := client.ExecuteCode(ctx, code, language)
	if err != nil {
		fmt.Fprintf(out, "error: %s\n", describeError(err, ""))
		return
	}
	if res.Output != "" {
		fmt.Fprint(out, res.Output)
		if !strings.HasSuffix(res.Output, "\n") {
			fmt.Fprintln(out)
		}
	}
	if res.Success {
		fmt.Fprintf(out, "(exit 0, %dms)\n", res.DurationMs)
		return
	}
	fmt.Fprintf(out, "(exit %d, %dms) %s\n", res.ExitCode, res.DurationMs, res.Error)
}

func printStatus(out io.Writer, s session.Snapshot) {
	fmt.Fprintf(out, "status: %s, processing: %t", s.Status, s.Processing)
	if s.ConnectionID != "" {
		fmt.Fprintf(out, ", connection: %s", s.ConnectionID)
	}
	if s.LastError != nil {
		fmt.Fprintf(out, ", last error: %v", s.LastError)
	}
	fmt.Fprintln(out)
}

// describeError prefers the Arabic server message when chatting in Arabic.
func describeError(err error, language string) string {
	var serverErr *session.ServerError
	if language == "ar" && errors.As(err, &serverErr) && serverErr.MessageAr != "" {
		return serverErr.MessageAr
	}
	return err.Error()
}

package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ErrNotPermitted is reported for denied commands and file access.
var ErrNotPermitted = errors.New("not permitted")

// ShellRunner interprets POSIX sh or bash with mvdan.cc/sh. Only builtins
// run: external commands fail with status 127 and every file open except
// /dev/null is refused.
type ShellRunner struct {
	variant syntax.LangVariant
}

// NewShellRunner returns a bash runner when bash is true, POSIX sh otherwise.
func NewShellRunner(bash bool) *ShellRunner {
	if bash {
		return &ShellRunner{variant: syntax.LangBash}
	}
	return &ShellRunner{variant: syntax.LangPOSIX}
}

func (r *ShellRunner) Run(ctx context.Context, code string, out *Output) (int, error) {
	file, err := syntax.NewParser(syntax.Variant(r.variant)).Parse(strings.NewReader(code), "snippet")
	if err != nil {
		return 2, fmt.Errorf("parse error: %w", err)
	}

	runner, err := interp.New(
		interp.StdIO(nil, out, out),
		interp.Env(expand.ListEnviron("HOME=/", "PATH=", "LANG=C.UTF-8")),
		// -f disables globbing, which would list the host filesystem.
		interp.Params("-f"),
		interp.ExecHandlers(denyExec),
		interp.OpenHandler(denyOpen),
	)
	if err != nil {
		return ExitFailure, fmt.Errorf("failed to create shell: %w", err)
	}

	err = runner.Run(ctx, file)
	status, isExit := interp.IsExitStatus(err)
	switch {
	case err == nil:
		return 0, nil
	case isExit:
		return int(status), nil
	default:
		return ExitFailure, err
	}
}

func denyExec(interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		hc := interp.HandlerCtx(ctx)
		fmt.Fprintf(hc.Stderr, "%s: command %v\n", args[0], ErrNotPermitted)
		return interp.NewExitStatus(ExitNotFound)
	}
}

func denyOpen(_ context.Context, path string, _ int, _ os.FileMode) (io.ReadWriteCloser, error) {
	if path == os.DevNull {
		return devNull{}, nil
	}
	return nil, &os.PathError{Op: "open", Path: path, Err: ErrNotPermitted}
}

type devNull struct{}

func (devNull) Read([]byte) (int, error)    { return 0, io.EOF }
func (devNull) Write(p []byte) (int, error) { return len(p), nil }
func (devNull) Close() error                { return nil }

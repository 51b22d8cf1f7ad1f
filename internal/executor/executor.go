// Package executor runs untrusted code snippets in embedded interpreters.
// Go runs in yaegi with a stdlib allow-list, shell runs in mvdan.cc/sh with
// external commands and file access denied. Nothing spawns a process.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnsupportedLanguage is returned for languages without a runner.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Exit codes reported for failures outside the snippet's own exit status.
const (
	ExitFailure  = 1
	ExitTimeout  = 124
	ExitNotFound = 127
)

// DefaultMaxOutput caps the combined output kept per run.
const DefaultMaxOutput = 64 * 1024

// Result is the outcome of one run. A snippet that fails still produces a
// Result; only infrastructure problems are returned as errors.
type Result struct {
	Language string
	Success  bool
	Output   string
	Error    string
	ExitCode int
	Duration time.Duration
}

// Runner executes code for one language, writing output to out.
type Runner interface {
	Run(ctx context.Context, code string, out *Output) (exitCode int, err error)
}

// Executor dispatches snippets to runners by language.
type Executor struct {
	runners   map[string]Runner
	timeout   time.Duration
	maxOutput int
	logger    *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithRunner registers r for language, replacing any existing runner.
func WithRunner(language string, r Runner) Option {
	return func(e *Executor) { e.runners[strings.ToLower(language)] = r }
}

// WithMaxOutput sets the output cap in bytes.
func WithMaxOutput(n int) Option {
	return func(e *Executor) { e.maxOutput = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New returns an executor with Go, sh and bash runners. Every run is bounded
// by timeout; zero means only the caller's context applies.
func New(timeout time.Duration, opts ...Option) *Executor {
	e := &Executor{
		runners: map[string]Runner{
			"go":   NewGoRunner(),
			"sh":   NewShellRunner(false),
			"bash": NewShellRunner(true),
		},
		timeout:   timeout,
		maxOutput: DefaultMaxOutput,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Languages lists the registered languages in order.
func (e *Executor) Languages() []string {
	langs := make([]string, 0, len(e.runners))
	for lang := range e.runners {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Execute runs code and reports how it went.
func (e *Executor) Execute(ctx context.Context, language, code string) (Result, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	runner, ok := e.runners[language]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out := NewOutput(e.maxOutput)
	start := time.Now()
	exitCode, runErr := runner.Run(ctx, code, out)
	res := Result{
		Language: language,
		Output:   out.String(),
		ExitCode: exitCode,
		Duration: time.Since(start),
	}

	switch {
	case ctx.Err() != nil:
		res.ExitCode = ExitTimeout
		res.Error = "execution timed out"
		if errors.Is(ctx.Err(), context.Canceled) {
			res.Error = "execution cancelled"
		}
	case runErr != nil:
		res.Error = runErr.Error()
		if res.ExitCode == 0 {
			res.ExitCode = ExitFailure
		}
	}
	res.Success = res.ExitCode == 0 && res.Error == ""

	e.logger.Debug("code executed",
		zap.String("language", language),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
		zap.Bool("truncated", out.Truncated()),
	)
	return res, nil
}

package executor

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"testing/fstest"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// DefaultGoPackages are the stdlib packages snippets may import. Anything
// reaching the filesystem, network or processes is left out.
var DefaultGoPackages = []string{
	"bytes",
	"encoding/base64",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
	"unicode/utf8",
}

var packageClause = regexp.MustCompile(`(?m)^\s*package\s+\w+`)

// GoRunner interprets Go with yaegi. A fresh interpreter is used per run.
type GoRunner struct {
	symbols interp.Exports
}

// NewGoRunner allows the given stdlib packages, or DefaultGoPackages when
// none are given.
func NewGoRunner(packages ...string) *GoRunner {
	if len(packages) == 0 {
		packages = DefaultGoPackages
	}
	allowed := make(map[string]bool, len(packages))
	for _, p := range packages {
		allowed[p] = true
	}

	symbols := interp.Exports{}
	for key, syms := range stdlib.Symbols {
		// Keys are "import/path/name".
		if allowed[path.Dir(key)] {
			symbols[key] = syms
		}
	}
	return &GoRunner{symbols: symbols}
}

// Run evaluates a full program (with a package clause and main) or a
// snippet of statements preceded by optional imports.
func (r *GoRunner) Run(ctx context.Context, code string, out *Output) (int, error) {
	i := interp.New(interp.Options{
		Stdout: out,
		Stderr: out,
		// No source tree: imports resolve only against the allowed symbols.
		SourcecodeFilesystem: fstest.MapFS{},
	})
	if err := i.Use(r.symbols); err != nil {
		return ExitFailure, fmt.Errorf("failed to load stdlib: %w", err)
	}

	if packageClause.MatchString(code) {
		if _, err := i.EvalWithContext(ctx, code); err != nil {
			return ExitFailure, err
		}
		return 0, nil
	}

	imports, body := splitImports(code)
	if imports != "" {
		if _, err := i.EvalWithContext(ctx, imports); err != nil {
			return ExitFailure, err
		}
	}
	if strings.TrimSpace(body) == "" {
		return 0, nil
	}
	if _, err := i.EvalWithContext(ctx, body); err != nil {
		return ExitFailure, err
	}
	return 0, nil
}

// splitImports separates leading import declarations from the statements
// that follow them.
func splitImports(code string) (imports, body string) {
	lines := strings.Split(code, "\n")
	var head []string
	inBlock := false
	i := 0
scan:
	for ; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		switch {
		case inBlock:
			head = append(head, lines[i])
			if strings.HasPrefix(trimmed, ")") {
				inBlock = false
			}
			continue
		case trimmed == "" || strings.HasPrefix(trimmed, "//"):
			continue
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
			head = append(head, lines[i])
			continue
		case strings.HasPrefix(trimmed, "import "):
			head = append(head, lines[i])
			continue
		}
		break scan
	}
	return strings.Join(head, "\n"), strings.Join(lines[i:], "\n")
}

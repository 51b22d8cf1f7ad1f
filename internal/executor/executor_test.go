package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteGoSnippet(t *testing.T) {
	e := New(5 * time.Second)

	res, err := e.Execute(context.Background(), "go", "import \"fmt\"\nimport \"strings\"\n\nfmt.Println(strings.ToUpper(\"webnova\"))")
	require.NoError(t, err)
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, "WEBNOVA\n", res.Output)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "go", res.Language)
}

func TestExecuteGoProgram(t *testing.T) {
	e := New(5 * time.Second)

	code := `package main

import (
	"fmt"
	"sort"
)

func main() {
	xs := []int{3, 1, 2}
	sort.Ints(xs)
	fmt.Println(xs)
}
`
	res, err := e.Execute(context.Background(), "Go", code)
	require.NoError(t, err)
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, "[1 2 3]\n", res.Output)
}

func TestExecuteGoRejectsUnsafeImports(t *testing.T) {
	e := New(5 * time.Second)

	for _, pkg := range []string{"os", "os/exec", "net/http", "syscall"} {
		t.Run(pkg, func(t *testing.T) {
			res, err := e.Execute(context.Background(), "go", "import \""+pkg+"\"\n")
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.NotEqual(t, 0, res.ExitCode)
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestExecuteGoCompileError(t *testing.T) {
	res, err := New(5*time.Second).Execute(context.Background(), "go", "x := ")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ExitFailure, res.ExitCode)
}

func TestExecuteShell(t *testing.T) {
	e := New(5 * time.Second)

	res, err := e.Execute(context.Background(), "sh", "x=web; echo \"${x}nova\"")
	require.NoError(t, err)
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, "webnova\n", res.Output)

	res, err = e.Execute(context.Background(), "bash", "arr=(a b c); echo ${#arr[@]}")
	require.NoError(t, err)
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, "3\n", res.Output)
}

func TestExecuteShellExitStatus(t *testing.T) {
	res, err := New(5*time.Second).Execute(context.Background(), "sh", "echo before; exit 3")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "before\n", res.Output)
	assert.Empty(t, res.Error)
}

func TestExecuteShellDeniesCommandsAndFiles(t *testing.T) {
	e := New(5 * time.Second)

	res, err := e.Execute(context.Background(), "sh", "ls /")
	require.NoError(t, err)
	assert.Equal(t, ExitNotFound, res.ExitCode)
	assert.Contains(t, res.Output, "not permitted")

	res, err = e.Execute(context.Background(), "sh", "echo secret > /tmp/webnova-test")
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = e.Execute(context.Background(), "sh", "echo quiet > /dev/null; echo loud")
	require.NoError(t, err)
	assert.True(t, res.Success, res.Output)
	assert.Equal(t, "loud\n", res.Output)
}

func TestExecuteShellParseError(t *testing.T) {
	res, err := New(5*time.Second).Execute(context.Background(), "bash", "if then fi (")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "parse error")
}

func TestExecuteTimeout(t *testing.T) {
	e := New(100 * time.Millisecond)

	res, err := e.Execute(context.Background(), "sh", "while true; do :; done")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ExitTimeout, res.ExitCode)
	assert.Equal(t, "execution timed out", res.Error)
}

func TestExecuteUnsupportedLanguage(t *testing.T) {
	_, err := New(time.Second).Execute(context.Background(), "python", "print(1)")
	assert.True(t, errors.Is(err, ErrUnsupportedLanguage))
}

func TestExecuteTruncatesOutput(t *testing.T) {
	e := New(5*time.Second, WithMaxOutput(8))

	res, err := e.Execute(context.Background(), "sh", "echo 0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, "01234567", res.Output)
}

type stubRunner struct {
	out  string
	exit int
	err  error
}

func (s stubRunner) Run(_ context.Context, code string, out *Output) (int, error) {
	_, _ = out.Write([]byte(s.out + code))
	return s.exit, s.err
}

func TestWithRunner(t *testing.T) {
	e := New(time.Second, WithRunner("Echo", stubRunner{out: "hi"}))
	assert.Equal(t, []string{"bash", "echo", "go", "sh"}, e.Languages())

	res, err := e.Execute(context.Background(), "echo", "")
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Output)
}

func TestExecuteReportsRunnerExitCode(t *testing.T) {
	e := New(time.Second,
		WithRunner("exit", stubRunner{out: "code:", exit: 42}),
		WithRunner("fail", stubRunner{err: errors.New("boom")}),
	)

	res, err := e.Execute(context.Background(), "exit", "payload")
	require.NoError(t, err)
	assert.Equal(t, 42, res.ExitCode)
	assert.Equal(t, "code:payload", res.Output)
	assert.False(t, res.Success)

	res, err = e.Execute(context.Background(), "fail", "")
	require.NoError(t, err)
	assert.Equal(t, ExitFailure, res.ExitCode)
	assert.Equal(t, "boom", res.Error)
}

func TestSplitImports(t *testing.T) {
	imports, body := splitImports("// demo\nimport \"fmt\"\nimport (\n\t\"strings\"\n)\n\nfmt.Println(strings.Repeat(\"a\", 2))")
	assert.Equal(t, "import \"fmt\"\nimport (\n\t\"strings\"\n)", imports)
	assert.Equal(t, "fmt.Println(strings.Repeat(\"a\", 2))", body)

	imports, body = splitImports("x := 1")
	assert.Empty(t, imports)
	assert.True(t, strings.HasPrefix(body, "x"))
}

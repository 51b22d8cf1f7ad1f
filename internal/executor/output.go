package executor

import (
	"strings"
	"sync"
)

// Output is a size-capped writer safe for concurrent use. Interpreters can
// keep writing after a run is abandoned, so writes are serialized.
type Output struct {
	mu        sync.Mutex
	buf       strings.Builder
	limit     int
	truncated bool
}

// NewOutput returns a writer that keeps at most limit bytes. limit <= 0 keeps
// everything.
func NewOutput(limit int) *Output {
	return &Output{limit: limit}
}

// Write never fails; bytes past the limit are dropped.
func (o *Output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := len(p)
	if o.limit > 0 {
		room := o.limit - o.buf.Len()
		if room <= 0 {
			o.truncated = o.truncated || n > 0
			return n, nil
		}
		if len(p) > room {
			p = p[:room]
			o.truncated = true
		}
	}
	o.buf.Write(p)
	return n, nil
}

func (o *Output) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

// Truncated reports whether output was dropped.
func (o *Output) Truncated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.truncated
}

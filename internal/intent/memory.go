package intent

import (
	"sync"
	"time"
)

// DefaultMemoryCapacity is how many turns a Memory keeps when no capacity is given.
const DefaultMemoryCapacity = 10

// Turn is one entry of conversation history.
type Turn struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Intent    Intent    `json:"intent"`
}

// Memory is a bounded rolling history. Once full, adding a turn evicts the
// oldest one. It is safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	turns []Turn
	start int
	size  int
}

// NewMemory returns an empty history holding at most capacity turns.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{turns: make([]Turn, capacity)}
}

// Add appends a turn.
func (m *Memory) Add(t Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.size < len(m.turns) {
		m.turns[(m.start+m.size)%len(m.turns)] = t
		m.size++
		return
	}
	m.turns[m.start] = t
	m.start = (m.start + 1) % len(m.turns)
}

// Turns returns the history oldest first.
func (m *Memory) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Turn, m.size)
	for i := range out {
		out[i] = m.turns[(m.start+i)%len(m.turns)]
	}
	return out
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Last returns the most recent turn.
func (m *Memory) Last() (Turn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.size == 0 {
		return Turn{}, false
	}
	return m.turns[(m.start+m.size-1)%len(m.turns)], true
}

// Cap returns the capacity.
func (m *Memory) Cap() int { return len(m.turns) }

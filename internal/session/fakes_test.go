package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/protocol"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// Active counts timers that are armed.
func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeConn struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	sent [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// push delivers a frame from the relay.
func (c *fakeConn) push(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	c.in <- data
}

func (c *fakeConn) pushRaw(data string) {
	c.in <- []byte(data)
}

// sentOfType returns the frames written by the client with the given type.
func (c *fakeConn) sentOfType(msgType string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, data := range c.sent {
		var m map[string]any
		if json.Unmarshal(data, &m) == nil && m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	dials int
}

func (d *fakeDialer) Dial(context.Context, string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.conns) == 0 {
		return nil, errors.New("no connection queued")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) queue(c *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns = append(d.conns, c)
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// gatedDialer holds each dial until release is closed.
type gatedDialer struct {
	inner   *fakeDialer
	entered chan struct{}
	release chan struct{}
}

func (d *gatedDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.entered <- struct{}{}
	<-d.release
	return d.inner.Dial(ctx, url)
}

func testOptions() Options {
	opts := DefaultOptions("ws://relay.test/ws/ai")
	opts.PingInterval = 0
	return opts
}

type harness struct {
	mgr    *Manager
	clock  *fakeClock
	dialer *fakeDialer
	conn   *fakeConn
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{clock: newFakeClock(), dialer: &fakeDialer{}, conn: newFakeConn()}
	h.dialer.queue(h.conn)

	seq := 0
	h.mgr = New(opts,
		WithDialer(h.dialer),
		WithClock(h.clock),
		WithTokenGenerator(func() string { return "session_test" }),
		WithIDGenerator(func() string {
			seq++
			return "req_" + string(rune('a'+seq-1))
		}),
	)
	t.Cleanup(func() { _ = h.mgr.Close() })
	return h
}

// ready connects and completes the handshake on the first connection.
func (h *harness) ready(t *testing.T) {
	t.Helper()
	require.NoError(t, h.mgr.Connect(context.Background()))
	h.conn.push(t, protocol.ConnectedMessage{Type: protocol.TypeConnected, ConnectionID: "conn_1"})
	require.Eventually(t, func() bool { return len(h.conn.sentOfType(protocol.TypeAuthRequest)) == 1 }, time.Second, 5*time.Millisecond)
	h.conn.push(t, protocol.AuthSuccessMessage{Type: protocol.TypeAuthSuccess})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.mgr.WaitReady(ctx))
}

// waitPending blocks until n requests are in flight.
func (h *harness) waitPending(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.mgr.mu.Lock()
		defer h.mgr.mu.Unlock()
		return len(h.mgr.pending) == n
	}, time.Second, 5*time.Millisecond)
}

// flush waits until every frame pushed so far has been handled. Frames are
// processed in order, so the pong for a trailing ping marks the point.
func (h *harness) flush(t *testing.T) {
	t.Helper()
	before := len(h.conn.sentOfType(protocol.TypePong))
	h.conn.push(t, protocol.HeartbeatMessage{Type: protocol.TypePing})
	require.Eventually(t, func() bool { return len(h.conn.sentOfType(protocol.TypePong)) > before }, time.Second, 5*time.Millisecond)
}

// Package session maintains the single authenticated AI socket and
// multiplexes correlated chat and code-execution requests over it.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/logging"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/protocol"
)

// Status is the connection state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected // transport open, not yet authenticated
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Options configures a Manager.
type Options struct {
	URL            string
	AutoConnect    bool
	ChatTimeout    time.Duration
	ExecTimeout    time.Duration
	ReconnectDelay time.Duration
	PingInterval   time.Duration // 0 disables the heartbeat
	CodeRunTimeout time.Duration // sent to the relay as the execution budget
	DialTimeout    time.Duration
}

// DefaultOptions returns the protocol's standard timings.
func DefaultOptions(url string) Options {
	return Options{
		URL:            url,
		AutoConnect:    true,
		ChatTimeout:    120 * time.Second,
		ExecTimeout:    60 * time.Second,
		ReconnectDelay: 3 * time.Second,
		PingInterval:   30 * time.Second,
		CodeRunTimeout: 30 * time.Second,
		DialTimeout:    10 * time.Second,
	}
}

// Snapshot is a read-only view of the manager state.
type Snapshot struct {
	Status        Status
	Connected     bool
	Authenticated bool
	Processing    bool
	StreamingText string
	LastResponse  string
	LastError     error
	ConnectionID  string
	LastPong      time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithDialer replaces the gorilla dialer.
func WithDialer(d Dialer) Option { return func(m *Manager) { m.dialer = d } }

// WithClock replaces the wall clock used for timeouts and reconnects.
func WithClock(c Clock) Option { return func(m *Manager) { m.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = logging.OrNop(l) } }

// WithIDGenerator replaces the request id generator.
func WithIDGenerator(f func() string) Option { return func(m *Manager) { m.newRequestID = f } }

// WithTokenGenerator replaces the session token generator.
func WithTokenGenerator(f func() string) Option { return func(m *Manager) { m.newToken = f } }

// WithStateListener registers a callback invoked with a fresh snapshot after
// every state change. It runs outside the manager lock, one call at a time,
// and never receives a snapshot older than one it has already seen. It must
// not call methods that change the manager's state.
func WithStateListener(f func(Snapshot)) Option { return func(m *Manager) { m.listener = f } }

// Manager owns the transport and the pending request table.
type Manager struct {
	opts         Options
	dialer       Dialer
	clock        Clock
	log          *zap.Logger
	newRequestID func() string
	newToken     func() string
	listener     func(Snapshot)

	writeMu sync.Mutex

	listenerMu sync.Mutex
	delivered  uint64

	mu             sync.Mutex
	conn           Conn
	status         Status
	manualClose    bool
	closed         bool
	reconnectTimer Timer
	stopPing       chan struct{}
	changed        chan struct{}
	version        uint64
	pending        map[string]*pendingRequest
	activeStream   string
	processing     bool
	lastResponse   string
	lastErr        error
	connectionID   string
	lastPong       time.Time
}

// New creates a manager. It does not connect; call Start or Connect.
func New(opts Options, options ...Option) *Manager {
	m := &Manager{
		opts:         opts,
		dialer:       WebSocketDialer{},
		clock:        realClock{},
		log:          zap.NewNop(),
		newRequestID: NewRequestID,
		newToken:     NewSessionToken,
		changed:      make(chan struct{}),
		pending:      make(map[string]*pendingRequest),
	}
	for _, o := range options {
		o(m)
	}
	if m.opts.DialTimeout <= 0 {
		m.opts.DialTimeout = 10 * time.Second
	}
	return m
}

// Start connects when auto-connect is enabled.
func (m *Manager) Start(ctx context.Context) error {
	if !m.opts.AutoConnect {
		return nil
	}
	return m.Connect(ctx)
}

// Connect opens the transport. It is a no-op when a transport is already
// open or being opened. Authentication proceeds asynchronously once the relay
// sends its connected frame; use WaitReady to block until it completes.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrConnectionClosed
	}
	if m.status != StatusDisconnected {
		// A dial still in flight after Disconnect completes for this call.
		if m.status == StatusConnecting {
			m.manualClose = false
		}
		m.mu.Unlock()
		return nil
	}
	m.status = StatusConnecting
	m.manualClose = false
	m.cancelReconnectLocked()
	m.commitLocked()

	m.log.Info("Connecting to AI socket", zap.String("url", m.opts.URL))
	conn, err := m.dialer.Dial(ctx, m.opts.URL)
	if err != nil {
		err = fmt.Errorf("dial %s: %w", m.opts.URL, err)
		m.update(func() {
			m.status = StatusDisconnected
			m.lastErr = err
			m.scheduleReconnectLocked()
		})
		m.log.Warn("AI socket dial failed", zap.Error(err))
		return err
	}

	m.mu.Lock()
	if m.manualClose || m.closed {
		m.status = StatusDisconnected
		m.commitLocked()
		conn.Close()
		return ErrConnectionClosed
	}
	m.conn = conn
	stop := make(chan struct{})
	m.stopPing = stop
	m.mu.Unlock()

	go m.readLoop(conn)
	if m.opts.PingInterval > 0 {
		go m.heartbeat(conn, stop)
	}
	return nil
}

// Disconnect closes the transport and suppresses the automatic reconnect for
// this closure. Pending requests fail with ErrConnectionClosed.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.manualClose = true
	m.cancelReconnectLocked()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	m.handleClose(conn, nil)
	return err
}

// Close disconnects and prevents any further connects.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Disconnect()
}

// State returns a snapshot of the observable state.
func (m *Manager) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// WaitReady blocks until the connection is authenticated or ctx is done.
func (m *Manager) WaitReady(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.status == StatusAuthenticated {
			m.mu.Unlock()
			return nil
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SendMessage sends a streamed chat request and waits for its full reply.
func (m *Manager) SendMessage(ctx context.Context, text, language string) (string, error) {
	p, conn, err := m.register(kindChat, m.opts.ChatTimeout)
	if err != nil {
		return "", err
	}

	m.log.Debug("Sending chat request", zap.String("request_id", p.id), zap.String("language", language))
	msg := protocol.ChatRequestMessage{
		Type:      protocol.TypeChatRequest,
		RequestID: p.id,
		Message:   text,
		Context:   protocol.ChatContext{Language: language},
		Stream:    true,
	}
	if err := m.write(conn, msg); err != nil {
		m.fail(p.id, fmt.Errorf("send chat request: %w", err))
	}

	res, err := m.wait(ctx, p)
	if err != nil {
		return "", err
	}
	return res.text, nil
}

// ExecuteCode asks the relay to run code and waits for the structured result.
func (m *Manager) ExecuteCode(ctx context.Context, code, language string) (*protocol.CodeResult, error) {
	p, conn, err := m.register(kindCode, m.opts.ExecTimeout)
	if err != nil {
		return nil, err
	}

	m.log.Debug("Sending code execution", zap.String("request_id", p.id), zap.String("language", language))
	msg := protocol.CodeExecuteMessage{
		Type:      protocol.TypeCodeExecute,
		RequestID: p.id,
		Language:  language,
		Code:      code,
		Timeout:   m.opts.CodeRunTimeout.Milliseconds(),
	}
	if err := m.write(conn, msg); err != nil {
		m.fail(p.id, fmt.Errorf("send code execution: %w", err))
	}

	res, err := m.wait(ctx, p)
	if err != nil {
		return nil, err
	}
	return res.code, nil
}

// register validates the preconditions and adds a pending request. On
// precondition failure nothing is mutated.
func (m *Manager) register(kind requestKind, timeout time.Duration) (*pendingRequest, Conn, error) {
	m.mu.Lock()
	if m.conn == nil || m.status < StatusConnected {
		m.mu.Unlock()
		return nil, nil, ErrNotConnected
	}
	if m.status != StatusAuthenticated {
		m.mu.Unlock()
		return nil, nil, ErrNotAuthenticated
	}

	id := m.newRequestID()
	p := &pendingRequest{
		id:        id,
		kind:      kind,
		createdAt: m.clock.Now(),
		done:      make(chan result, 1),
	}
	p.timer = m.clock.AfterFunc(timeout, func() { m.expire(id, timeout) })
	m.pending[id] = p
	if kind == kindChat {
		m.activeStream = id
	}
	m.processing = true
	conn := m.conn
	m.commitLocked()
	return p, conn, nil
}

// wait blocks until p settles. A cancelled ctx settles p with ctx.Err().
func (m *Manager) wait(ctx context.Context, p *pendingRequest) (result, error) {
	select {
	case res := <-p.done:
		return res, res.err
	case <-ctx.Done():
		m.fail(p.id, ctx.Err())
		res := <-p.done
		return res, res.err
	}
}

func (m *Manager) expire(id string, timeout time.Duration) {
	err := fmt.Errorf("%w after %s", ErrRequestTimeout, timeout)
	if m.fail(id, err) {
		m.log.Warn("Request timed out", zap.String("request_id", id), zap.Duration("timeout", timeout))
	}
}

func (m *Manager) fail(id string, err error) bool {
	return m.settle(id, func(*pendingRequest) result { return result{err: err} })
}

// settle removes the pending request and delivers its result. Only the first
// call for an id has any effect; later calls return false.
func (m *Manager) settle(id string, resolve func(p *pendingRequest) result) bool {
	m.mu.Lock()
	p, ok := m.pending[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	res := resolve(p)
	delete(m.pending, id)
	p.timer.Stop()
	if m.activeStream == id {
		m.activeStream = ""
	}
	if len(m.pending) == 0 {
		m.processing = false
	}
	if res.err == nil && p.kind == kindChat {
		m.lastResponse = res.text
	}
	m.commitLocked()

	p.done <- res
	return true
}

func (m *Manager) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn, err)
			return
		}
		m.handleMessage(conn, data)
	}
}

func (m *Manager) heartbeat(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.write(conn, protocol.NewHeartbeat(protocol.TypePing, m.clock.Now())); err != nil {
				m.log.Debug("Heartbeat write failed", zap.Error(err))
				return
			}
		}
	}
}

// handleClose moves to Disconnected, fails every pending request and
// schedules a reconnect unless the closure was requested. Stale connections
// are ignored.
func (m *Manager) handleClose(conn Conn, cause error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.stopPing != nil {
		close(m.stopPing)
		m.stopPing = nil
	}
	m.status = StatusDisconnected
	m.connectionID = ""
	m.activeStream = ""
	m.processing = false

	failed := make([]*pendingRequest, 0, len(m.pending))
	for id, p := range m.pending {
		delete(m.pending, id)
		p.timer.Stop()
		failed = append(failed, p)
	}

	manual := m.manualClose
	if !manual {
		if cause != nil && !websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
			m.lastErr = fmt.Errorf("transport: %w", cause)
		}
		m.scheduleReconnectLocked()
	}
	m.commitLocked()

	for _, p := range failed {
		p.done <- result{err: ErrConnectionClosed}
	}
	conn.Close()

	if manual {
		m.log.Info("AI socket disconnected")
	} else {
		m.log.Warn("AI socket closed", zap.Error(cause), zap.Int("failed_requests", len(failed)))
	}
}

// scheduleReconnectLocked arms at most one reconnect timer.
func (m *Manager) scheduleReconnectLocked() {
	if !m.opts.AutoConnect || m.manualClose || m.closed || m.reconnectTimer != nil {
		return
	}
	m.reconnectTimer = m.clock.AfterFunc(m.opts.ReconnectDelay, m.reconnect)
	m.log.Info("Reconnect scheduled", zap.Duration("delay", m.opts.ReconnectDelay))
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	skip := m.manualClose || m.closed
	m.mu.Unlock()
	if skip {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		m.log.Debug("Reconnect attempt failed", zap.Error(err))
	}
}

func (m *Manager) handleMessage(conn Conn, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		m.log.Warn("Dropping malformed frame", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}
	if protocol.IsTerminal(env.Type) && env.RequestID != "" && !m.isPending(env.RequestID) {
		m.log.Debug("Ignoring response for settled request", zap.String("type", env.Type), zap.String("request_id", env.RequestID))
		return
	}

	switch env.Type {
	case protocol.TypeConnected:
		var msg protocol.ConnectedMessage
		if m.decode(data, &msg) {
			m.onConnected(conn, msg)
		}

	case protocol.TypeAuthSuccess:
		m.updateFor(conn, func() {
			m.status = StatusAuthenticated
			m.lastErr = nil
		})
		m.log.Info("AI socket authenticated")

	case protocol.TypeAuthFailed:
		var msg protocol.AuthFailedMessage
		if m.decode(data, &msg) {
			m.updateFor(conn, func() { m.lastErr = &AuthError{Reason: msg.Error} })
			m.log.Warn("AI socket authentication failed", zap.String("reason", msg.Error))
		}

	case protocol.TypeChatStream:
		m.appendDelta(env.RequestID, env.Delta)

	case protocol.TypeChatComplete, protocol.TypeChatResponse:
		var msg protocol.ChatCompleteMessage
		if m.decode(data, &msg) {
			m.settle(msg.RequestID, func(p *pendingRequest) result {
				text := msg.Response
				if text == "" {
					text = p.stream.String()
				}
				return result{text: text}
			})
		}

	case protocol.TypeCodeResult:
		var msg protocol.CodeResultMessage
		if m.decode(data, &msg) {
			code := msg.CodeResult
			m.settle(msg.RequestID, func(*pendingRequest) result { return result{code: &code} })
		}

	case protocol.TypeStatusUpdate:
		var msg protocol.StatusUpdateMessage
		if !m.decode(data, &msg) {
			return
		}
		m.updateFor(conn, func() {
			if msg.RequestID != "" {
				if _, ok := m.pending[msg.RequestID]; !ok {
					return
				}
			} else if len(m.pending) == 0 {
				return
			}
			m.processing = true
		})

	case protocol.TypeError:
		var msg protocol.ErrorMessage
		if !m.decode(data, &msg) {
			return
		}
		serverErr := &ServerError{Code: msg.Code, Message: msg.Error, MessageAr: msg.ErrorAr}
		if msg.RequestID != "" {
			m.fail(msg.RequestID, serverErr)
			return
		}
		m.updateFor(conn, func() { m.lastErr = serverErr })
		m.log.Warn("AI socket error", zap.Error(serverErr))

	case protocol.TypePing:
		if err := m.write(conn, protocol.NewHeartbeat(protocol.TypePong, m.clock.Now())); err != nil {
			m.log.Debug("Pong write failed", zap.Error(err))
		}

	case protocol.TypePong:
		now := m.clock.Now()
		m.mu.Lock()
		m.lastPong = now
		m.mu.Unlock()

	default:
		if env.Delta != "" {
			m.appendDelta(env.RequestID, env.Delta)
			return
		}
		m.log.Debug("Ignoring unknown message type", zap.String("type", env.Type))
	}
}

func (m *Manager) onConnected(conn Conn, msg protocol.ConnectedMessage) {
	m.mu.Lock()
	if m.conn != conn || m.status != StatusConnecting {
		m.mu.Unlock()
		return
	}
	m.status = StatusConnected
	m.connectionID = msg.ConnectionID
	m.commitLocked()

	m.log.Info("AI socket connected", zap.String("connection_id", msg.ConnectionID))
	auth := protocol.AuthRequestMessage{Type: protocol.TypeAuthRequest, SessionToken: m.newToken()}
	if err := m.write(conn, auth); err != nil {
		m.updateFor(conn, func() { m.lastErr = fmt.Errorf("send auth request: %w", err) })
	}
}

// appendDelta feeds a chunk to the pending chat request. An empty id targets
// the most recently started chat request.
func (m *Manager) appendDelta(id, delta string) {
	m.mu.Lock()
	if id == "" {
		id = m.activeStream
	}
	p, ok := m.pending[id]
	if !ok || p.kind != kindChat {
		m.mu.Unlock()
		return
	}
	p.stream.WriteString(delta)
	m.activeStream = id
	m.commitLocked()
}

func (m *Manager) isPending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[id]
	return ok
}

func (m *Manager) decode(data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		m.log.Warn("Dropping undecodable frame", zap.Error(err))
		return false
	}
	return true
}

func (m *Manager) write(conn Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// update applies fn under the lock and publishes the change.
func (m *Manager) update(fn func()) {
	m.mu.Lock()
	fn()
	m.commitLocked()
}

// updateFor is update restricted to the current connection.
func (m *Manager) updateFor(conn Conn, fn func()) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	fn()
	m.commitLocked()
}

// commitLocked wakes WaitReady callers, releases the lock and notifies the
// state listener. It must be called with m.mu held.
func (m *Manager) commitLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
	m.version++
	version := m.version
	var snap Snapshot
	if m.listener != nil {
		snap = m.snapshotLocked()
	}
	m.mu.Unlock()
	if m.listener == nil {
		return
	}

	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	if version <= m.delivered {
		return
	}
	m.delivered = version
	m.listener(snap)
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:        m.status,
		Connected:     m.status >= StatusConnected,
		Authenticated: m.status == StatusAuthenticated,
		Processing:    m.processing,
		LastResponse:  m.lastResponse,
		LastError:     m.lastErr,
		ConnectionID:  m.connectionID,
		LastPong:      m.lastPong,
	}
	if p, ok := m.pending[m.activeStream]; ok {
		snap.StreamingText = p.stream.String()
	}
	return snap
}

type requestKind int

const (
	kindChat requestKind = iota
	kindCode
)

type result struct {
	text string
	code *protocol.CodeResult
	err  error
}

// pendingRequest is one in-flight correlated request.
type pendingRequest struct {
	id        string
	kind      requestKind
	createdAt time.Time
	timer     Timer
	done      chan result // buffered; receives exactly one result
	stream    strings.Builder
}

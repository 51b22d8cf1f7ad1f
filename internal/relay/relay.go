// Package relay is a development server for the AI socket protocol. It
// authenticates sessions, classifies and answers chat turns, stores
// transcripts and runs code snippets under a policy.
package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jellydator/ttlcache/v3"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/executor"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/intent"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/policy"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/store"
)

// Config holds relay settings.
type Config struct {
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	SessionTTL       time.Duration
	CodeRunTimeout   time.Duration
	MaxCodeSize      int
	AllowedLanguages []string
	// StreamChunkSize is the number of runes per chat_stream delta.
	StreamChunkSize int
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   64 * 1024,
		SessionTTL:       30 * time.Minute,
		CodeRunTimeout:   30 * time.Second,
		MaxCodeSize:      16 * 1024,
		AllowedLanguages: []string{"go", "sh", "bash"},
		StreamChunkSize:  16,
	}
}

// Server handles relay WebSocket connections and HTTP endpoints.
type Server struct {
	cfg        Config
	hub        *Hub
	store      store.Store
	tokens     *ttlcache.Cache[string, string]
	classifier *intent.Classifier
	policy     *policy.Engine
	executor   *executor.Executor
	responder  Responder
	upgrader   websocket.Upgrader
	echo       *echo.Echo
	logger     *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithResponder replaces the canned chat responder.
func WithResponder(r Responder) Option { return func(s *Server) { s.responder = r } }

// WithClassifier replaces intent.Default.
func WithClassifier(c *intent.Classifier) Option { return func(s *Server) { s.classifier = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.logger = l } }

// New builds a relay. The store, policy engine and executor are required.
func New(cfg Config, st store.Store, engine *policy.Engine, exec *executor.Executor, opts ...Option) *Server {
	if cfg.StreamChunkSize <= 0 {
		cfg.StreamChunkSize = DefaultConfig().StreamChunkSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultConfig().PingInterval
	}

	s := &Server{
		cfg:        cfg,
		store:      st,
		classifier: intent.Default,
		policy:     engine,
		executor:   exec,
		responder:  CannedResponder{},
		logger:     zap.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Development relay: any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.hub = NewHub(s.logger)
	s.tokens = ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](cfg.SessionTTL),
	)
	s.echo = s.newEcho()
	return s
}

// Run drives the connection hub and session token expiry until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.hub.Run(ctx) })
	g.Go(func() error {
		s.tokens.Start()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.tokens.Stop()
		return nil
	})
	return g.Wait()
}

// Handler returns the HTTP handler serving the socket and the HTTP API.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Hub exposes connection counts.
func (s *Server) Hub() *Hub { return s.hub }

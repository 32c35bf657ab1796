// Package gateway is the relay core: it accepts device WebSocket
// connections, authenticates them, tracks presence, runs the pairing state
// machine and forwards commands between paired devices.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/devlink/internal/auth"
	"github.com/nextlevelbuilder/devlink/internal/config"
	"github.com/nextlevelbuilder/devlink/internal/store"
	"github.com/nextlevelbuilder/devlink/pkg/protocol"
)

// readGrace is added to two heartbeat intervals to form the read deadline.
const readGrace = 15 * time.Second

// Server owns the connection registry and everything that acts on it.
type Server struct {
	store    store.Store
	verifier auth.Verifier
	registry *Registry
	limiter  *RateLimiter
	monitor  *Monitor
	sink     PresenceSink
	tracer   trace.Tracer
	upgrader websocket.Upgrader

	authTimeout       time.Duration
	heartbeatInterval time.Duration
	maxMessageBytes   int64
	sendBuffer        int

	ctx     context.Context
	cancel  context.CancelFunc
	clients sync.Map // client id → *Client, authenticated or not
	conns   sync.WaitGroup
}

// Option customizes a Server.
type Option func(*Server)

// WithPresenceSink mirrors presence changes to an external sink.
func WithPresenceSink(sink PresenceSink) Option {
	return func(s *Server) { s.sink = sink }
}

// WithAuthTimeout overrides the unauthenticated-connection timeout.
func WithAuthTimeout(d time.Duration) Option {
	return func(s *Server) { s.authTimeout = d }
}

// WithHeartbeatInterval overrides the presence probe interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Server) { s.heartbeatInterval = d }
}

// NewServer creates a gateway server.
func NewServer(cfg config.GatewayConfig, st store.Store, verifier auth.Verifier, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:             st,
		verifier:          verifier,
		registry:          NewRegistry(),
		limiter:           NewRateLimiter(cfg.CommandsPerMinute, cfg.CommandBurst),
		sink:              noopSink{},
		tracer:            otel.Tracer("github.com/nextlevelbuilder/devlink/internal/gateway"),
		authTimeout:       cfg.AuthTimeout(),
		heartbeatInterval: cfg.HeartbeatInterval(),
		maxMessageBytes:   cfg.MaxMessageBytes,
		sendBuffer:        cfg.SendBuffer,
		ctx:               ctx,
		cancel:            cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	for _, opt := range opts {
		opt(s)
	}

	d := config.Default().Gateway
	if s.authTimeout <= 0 {
		s.authTimeout = d.AuthTimeout()
	}
	if s.heartbeatInterval <= 0 {
		s.heartbeatInterval = d.HeartbeatInterval()
	}
	if s.maxMessageBytes <= 0 {
		s.maxMessageBytes = d.MaxMessageBytes
	}
	if s.sendBuffer <= 0 {
		s.sendBuffer = d.SendBuffer
	}

	s.monitor = NewMonitor(s, s.heartbeatInterval)
	return s
}

// Start launches the heartbeat monitor.
func (s *Server) Start() {
	s.monitor.Start()
}

// Shutdown closes every connection and waits for their disconnects to be
// processed, or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.monitor.Stop()
	s.clients.Range(func(_, v any) bool {
		v.(*Client).CloseWith(websocket.CloseGoingAway, "server shutting down")
		return true
	})

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	defer s.cancel()
	defer s.limiter.Stop()
	select {
	case <-done:
		slog.Info("gateway stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleWebSocket upgrades the request and serves the connection until it closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()

	client := NewClient(conn, s)
	s.clients.Store(client.id, client)
	defer s.clients.Delete(client.id)

	slog.Debug("websocket connected", "client", client.id, "remote", r.RemoteAddr)
	client.Run(s.ctx)
}

// Registry exposes the live session set (read-mostly).
func (s *Server) Registry() *Registry { return s.registry }

// UpdateLimits applies a new command rate limit, e.g. after a config reload.
func (s *Server) UpdateLimits(commandsPerMinute, burst int) {
	s.limiter.Update(commandsPerMinute, burst)
}

func (s *Server) readTimeout() time.Duration {
	return 2*s.heartbeatInterval + readGrace
}

// broadcast sends f to every session of userID except exceptDeviceID.
func (s *Server) broadcast(userID, exceptDeviceID string, f protocol.Frame) {
	for _, sess := range s.registry.ForUser(userID, exceptDeviceID) {
		sess.Client.Send(f)
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		// Native device apps do not send a browser Origin.
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// SessionCount returns the number of live device sessions.
func (s *Server) SessionCount() int { return s.registry.Count() }

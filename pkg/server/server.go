package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikedelcastillo/pip-pip/pkg/manifest"
	"github.com/mikedelcastillo/pip-pip/pkg/metrics"
	"github.com/mikedelcastillo/pip-pip/pkg/protocol"
	"github.com/mikedelcastillo/pip-pip/pkg/transport"
)

// Server is the relay server.
//
// Every client gets a connection id on connect, is pinged periodically and
// has each group frame it sends relayed to every other client. Units that
// fail to decode are dropped; reserved packets are never relayed.
type Server struct {
	config   *Config
	reg      *protocol.Registry
	codec    transport.Codec
	metrics  *metrics.Codec
	gatherer prometheus.Gatherer
	hub      *Hub
	upgrader websocket.Upgrader
	router   chi.Router
	httpMW   []func(http.Handler) http.Handler
	manifest []byte
	logger   *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithConfig sets the server configuration.
func WithConfig(c *Config) Option {
	return func(s *Server) {
		s.config = c.Clone()
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics routes all encoding and decoding through m and serves the
// metrics gathered by g on /metrics. A nil g serves the default gatherer.
func WithMetrics(m *metrics.Codec, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
		if g == nil {
			s.gatherer = prometheus.DefaultGatherer
		}
	}
}

// WithMiddleware adds HTTP middleware to every route. It runs inside the
// panic recoverer, in the order given.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.httpMW = append(s.httpMW, mw...)
	}
}

// New creates a relay server for reg.
func New(reg *protocol.Registry, opts ...Option) (*Server, error) {
	s := &Server{
		config: DefaultConfig(),
		reg:    reg,
		codec:  reg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")

	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.codec = s.metrics
	}

	data, err := manifest.FromRegistry(reg).JSON()
	if err != nil {
		return nil, fmt.Errorf("server: build manifest: %w", err)
	}
	s.manifest = data

	s.hub = NewHub(s.config.ConnectionIDLength, s.logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  s.config.ReadBufferSize,
		WriteBufferSize: s.config.WriteBufferSize,
		CheckOrigin:     s.config.CheckOrigin,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) validate() error {
	var errs []error
	if s.reg == nil {
		errs = append(errs, errors.New("server: registry is nil"))
	} else {
		for _, id := range protocol.ReservedIDs() {
			if !s.reg.IsReserved(id) {
				errs = append(errs, fmt.Errorf("server: registry lacks reserved packet %q", id))
			}
		}
	}
	if s.metrics != nil && s.metrics.Registry() != s.reg {
		errs = append(errs, errors.New("server: metrics codec wraps a different registry"))
	}
	if n := s.config.ConnectionIDLength; n < 1 || n > 16 {
		errs = append(errs, fmt.Errorf("server: connection id length %d out of range [1, 16]", n))
	}
	if s.config.PingInterval <= 0 {
		errs = append(errs, errors.New("server: ping interval must be positive"))
	}
	return errors.Join(errs...)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.httpMW...)

	r.Get("/ws", s.HandleWebSocket)
	r.Get("/schema", s.handleSchema)
	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the connected client set.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns a copy of the server configuration.
func (s *Server) Config() *Config {
	return s.config.Clone()
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(s.manifest)
}

// HealthStatus is the body of /healthz.
type HealthStatus struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Fingerprint string `json:"fingerprint"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthStatus{
		Status:      "ok",
		Connections: s.hub.Count(),
		Fingerprint: s.reg.Fingerprint(),
	})
}

// HandleWebSocket upgrades the request and serves the connection until the
// peer disconnects.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		s.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		s.transportError("upgrade")
		return
	}

	conn := transport.New(ws, s.codec,
		transport.WithConfig(transport.Config{
			ReadTimeout:    s.config.ReadTimeout,
			WriteTimeout:   s.config.WriteTimeout,
			MaxMessageSize: s.config.MaxMessageSize,
		}),
		transport.WithLogger(s.logger.With("remote", r.RemoteAddr)),
	)

	c, err := s.hub.Add(conn)
	if err != nil {
		s.logger.Error("rejecting connection", "remote", r.RemoteAddr, "error", err)
		conn.Close()
		return
	}
	logger := s.logger.With("conn", c.id)

	s.connectionOpened()
	defer func() {
		s.hub.Remove(c.id)
		conn.Close()
		s.connectionClosed()
		logger.Info("connection closed")
	}()

	err = conn.SendPacket(protocol.IDConnectionReconcile, protocol.Record{
		protocol.FieldConnectionID: protocol.StringValue(c.id),
	})
	if err != nil {
		logger.Warn("reconcile failed", "error", err)
		s.transportError("write")
		return
	}
	logger.Info("connection opened", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.pingLoop(ctx, c, logger)

	s.readLoop(ctx, c, logger)
}

func (s *Server) readLoop(ctx context.Context, c *Client, logger *slog.Logger) {
	for {
		results, err := c.conn.Receive(ctx)
		if err != nil {
			if protocol.Classify(err) == protocol.ClassLimit {
				logger.Warn("dropping frame", "kind", protocol.ErrorKind(err), "error", err)
				continue
			}
			if kind := readErrorKind(err); kind != "" {
				logger.Debug("read failed", "kind", kind, "error", err)
				s.transportError(kind)
			}
			return
		}
		s.relay(c, results, logger)
	}
}

// relay forwards the decoded application units of one inbound frame to the
// other clients as a single group frame.
func (s *Server) relay(c *Client, results []protocol.UnitResult, logger *slog.Logger) {
	units := make([][]byte, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if s.reg.IsReserved(r.Decoded.ID) {
			s.handleReserved(c, r.Decoded, logger)
			continue
		}
		unit, err := s.codec.Encode(r.Decoded.ID, r.Decoded.Value)
		if err != nil {
			logger.Warn("dropping unit", "packet", r.Decoded.ID, "error", err)
			continue
		}
		units = append(units, unit)
	}
	if len(units) == 0 {
		return
	}
	s.hub.Broadcast(c.id, units...)
}

func (s *Server) handleReserved(c *Client, d protocol.Decoded, logger *slog.Logger) {
	switch d.ID {
	case protocol.IDPing:
		if c.pong(uint32(d.Value.Uint64(protocol.FieldPing)), time.Now()) {
			logger.Debug("ping echoed", "latency", c.Latency())
		}
	default:
		logger.Debug("ignoring reserved packet", "packet", d.ID)
	}
}

func (s *Server) pingLoop(ctx context.Context, c *Client, logger *slog.Logger) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n := c.nextPing(now)
			err := c.conn.SendPacket(protocol.IDPing, protocol.Record{
				protocol.FieldPing: protocol.UintValue(uint64(n)),
			})
			if err != nil {
				logger.Debug("ping failed", "error", err)
				s.transportError("write")
				c.conn.Close()
				return
			}
		}
	}
}

// readErrorKind classifies a read error for metrics. Normal closes
// return "".
func readErrorKind(err error) string {
	var netErr net.Error
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return ""
	case transport.IsUnexpectedClose(err):
		return "unexpected_close"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, net.ErrClosed):
		return ""
	default:
		return "read"
	}
}

func (s *Server) connectionOpened() {
	if s.metrics != nil {
		s.metrics.ConnectionOpened()
	}
}

func (s *Server) connectionClosed() {
	if s.metrics != nil {
		s.metrics.ConnectionClosed()
	}
}

func (s *Server) transportError(kind string) {
	if s.metrics != nil {
		s.metrics.TransportError(kind)
	}
}

// Run listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("listening", "addr", ln.Addr().String(), "fingerprint", s.reg.Fingerprint())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown closes every client connection and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down", "connections", s.hub.Count())
	s.hub.CloseAll()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

package api

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"cassette/pkg/config"
	"cassette/pkg/recorder"
)

// Server is the standalone cassette server: admin and metrics routes, then
// the cassette middleware in front of the upstream forwarder
type Server struct {
	config  *config.Config
	engine  *recorder.Engine
	metrics *Metrics
	router  *Router
	handler fasthttp.RequestHandler
	server  *fasthttp.Server
	logger  *zap.Logger

	mu        sync.RWMutex
	running   bool
	startTime time.Time
	addr      string
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	return newServer(cfg, logger)
}

func newServer(cfg *config.Config, logger *zap.Logger, engineOpts ...recorder.EngineOption) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	engine, err := recorder.NewEngine(cfg, logger.With(zap.String("component", "engine")), engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create cassette engine: %w", err)
	}

	forwarder, err := NewForwarder(cfg.Upstream, logger.With(zap.String("component", "forwarder")))
	if err != nil {
		return nil, err
	}

	var metrics *Metrics
	if cfg.Metrics.Enabled {
		metrics = NewMetrics()
	}

	cassette := Cassette(engine, metrics, logger.With(zap.String("component", "cassette")))
	router, err := NewRouter(cassette(forwarder.Handler), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	if metrics != nil {
		exposition := metrics.Handler()
		router.Handle("GET", cfg.Metrics.Path, func(ctx *fasthttp.RequestCtx) error {
			exposition(ctx)
			return nil
		})
	}

	if cfg.Admin.Enabled {
		NewAdmin(engine, cfg.Admin, logger.With(zap.String("component", "admin"))).Register(router)
	}

	stack := NewStack(
		RequestID(cfg.Middleware.RequestID),
		Logger(logger),
		Recovery(logger, cfg.Middleware.Recovery),
		Instrument(metrics),
		CORS(cfg.Middleware.CORS),
		RateLimit(cfg.Middleware.RateLimit, logger),
		Timeout(cfg.Middleware.Timeout),
	)
	handler := stack.Apply(router.Handler)

	server := &fasthttp.Server{
		Handler:       handler,
		Name:          "cassette",
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		MaxConnsPerIP: cfg.Server.MaxConnsPerIP,
		Concurrency:   cfg.Server.Concurrency,
		ErrorHandler: func(ctx *fasthttp.RequestCtx, err error) {
			logger.Error("FastHTTP error",
				zap.Error(err),
				zap.String("path", string(ctx.Path())),
				zap.String("method", string(ctx.Method())))
		},
	}

	return &Server{
		config:  cfg,
		engine:  engine,
		metrics: metrics,
		router:  router,
		handler: handler,
		server:  server,
		logger:  logger,
		addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
	}, nil
}

// Start binds the configured address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.GetAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.GetAddr(), err)
	}
	return s.Serve(ln)
}

// Serve serves on ln in the background until Stop
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	s.logger.Info("Starting HTTP server",
		zap.String("address", ln.Addr().String()),
		zap.String("mode", string(s.engine.Mode())),
		zap.String("upstream", s.config.Upstream.URL),
		zap.Int("concurrency", s.config.Server.Concurrency),
		zap.Duration("read_timeout", s.config.Server.ReadTimeout),
		zap.Duration("write_timeout", s.config.Server.WriteTimeout))

	s.running = true
	s.startTime = time.Now()
	server := s.server

	go func() {
		if err := server.Serve(ln); err != nil {
			s.logger.Error("Server stopped with error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Debug("Server is not running")
		return nil
	}

	s.logger.Info("Stopping HTTP server...")

	if err := s.server.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.running = false
	s.logger.Info("HTTP server stopped successfully")
	return nil
}

// Restart rebuilds the server from newConfig and starts it again. When the
// new configuration cannot be built the old server keeps running. While the
// recordings directory and counter kind stay the same, {counter} continues
// from where the old engine left off.
func (s *Server) Restart(newConfig *config.Config) error {
	s.logger.Info("Restarting server with new configuration")

	var engineOpts []recorder.EngineOption
	if newConfig != nil {
		s.mu.RLock()
		current, engine := s.config, s.engine
		s.mu.RUnlock()
		if newConfig.RecordingsDir == current.RecordingsDir &&
			newConfig.Store.PersistCounter == current.Store.PersistCounter {
			engineOpts = append(engineOpts, recorder.WithCounter(engine.Counter()))
		}
	}

	next, err := newServer(newConfig, s.logger, engineOpts...)
	if err != nil {
		return fmt.Errorf("failed to create new server: %w", err)
	}

	if err := s.Stop(); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	s.mu.Lock()
	s.config = next.config
	s.engine = next.engine
	s.metrics = next.metrics
	s.router = next.router
	s.handler = next.handler
	s.server = next.server
	s.addr = next.addr
	s.mu.Unlock()

	if err := s.Start(); err != nil {
		return fmt.Errorf("failed to start server with new configuration: %w", err)
	}

	s.logger.Info("Server restarted successfully")
	return nil
}

// GetAddr returns the server address
func (s *Server) GetAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler returns the complete request handler, middleware included
func (s *Server) Handler() fasthttp.RequestHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// Engine returns the cassette engine currently serving
func (s *Server) Engine() *recorder.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// InvalidateRecordings drops the engine's requestKey index so the next lookup
// rescans the recordings directory
func (s *Server) InvalidateRecordings() {
	s.Engine().Invalidate()
}

// IsRunning returns true if the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetStats returns server statistics
func (s *Server) GetStats() ServerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStats{
		Addr:      s.addr,
		Mode:      string(s.engine.Mode()),
		Routes:    s.router.Routes(),
		StartTime: s.startTime,
		IsRunning: s.running,
		Recorder:  s.engine.Recorder().Stats(),
		Replayer:  s.engine.Replayer().Stats(),
	}
}

// ServerStats represents server statistics
type ServerStats struct {
	Addr      string                  `json:"addr"`
	Mode      string                  `json:"mode"`
	Routes    int                     `json:"routes"`
	StartTime time.Time               `json:"start_time"`
	IsRunning bool                    `json:"is_running"`
	Recorder  recorder.RecordingStats `json:"recorder"`
	Replayer  recorder.ReplayStats    `json:"replayer"`
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/scribe/backend/internal/api/http"
	"github.com/GriffinCanCode/scribe/backend/internal/api/middleware"
	"github.com/GriffinCanCode/scribe/backend/internal/api/ws"
	"github.com/GriffinCanCode/scribe/backend/internal/functions"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/scribe/backend/internal/sandbox"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 2 * time.Minute
)

// Server wraps the HTTP server and dependencies
type Server struct {
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	store   *functions.Instrumented
	pool    *sandbox.Pool
	router  *gin.Engine
	http    *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithLogger replaces the logger built from config
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New wires the function store, the realm pool and the router
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{config: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)
	}
	logger := s.logger

	logger.Info("Initializing sandbox server",
		zap.String("addr", cfg.Server.Address()),
		zap.String("functions_backend", cfg.Functions.Backend),
		zap.Int("pool_size", cfg.Sandbox.PoolSize),
		zap.Duration("timeout", cfg.Sandbox.Timeout),
	)

	s.metrics = monitoring.NewMetrics(nil)
	s.tracer = tracing.New("scribe-backend", logger.Component("tracing"))

	store, err := functions.Open(ctx, cfg.Functions, logger.Component("functions"), s.metrics)
	if err != nil {
		s.tracer.Close()
		return nil, fmt.Errorf("open function store: %w", err)
	}
	s.store = store

	pool, err := sandbox.NewPool(sandbox.Config{
		Timeout:          cfg.Sandbox.Timeout,
		MaxCallStackSize: cfg.Sandbox.MaxCallStack,
		EnableConsole:    cfg.Sandbox.Console,
	}, cfg.Sandbox.PoolSize,
		sandbox.WithLogger(logger.Component("sandbox")),
		sandbox.WithMetrics(s.metrics),
		sandbox.WithFunctionSource(store),
	)
	if err != nil {
		s.tracer.Close()
		_ = store.Close()
		return nil, fmt.Errorf("start realm pool: %w", err)
	}
	s.pool = pool

	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(s.config.Server.CORSOrigins...)))
	if rl := s.config.RateLimit; rl.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", rl.RequestsPerSecond),
			zap.Int("burst", rl.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
		}))
	}

	host := apihttp.Builtins()
	handlers := apihttp.NewHandlers(s.pool, s.store, s.store.Backend(),
		apihttp.WithHostFunctions(host),
		apihttp.WithMetrics(s.metrics),
		apihttp.WithTracer(s.tracer),
		apihttp.WithLogger(s.logger.Logger),
	)
	handlers.Register(router)

	wsHandler := ws.NewHandler(s.pool, host, s.metrics, s.logger.Logger)
	router.GET("/sandbox/stream", wsHandler.HandleConnection)

	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	return router
}

// Handler returns the root handler: the router behind response compression.
// Websocket upgrades bypass compression so the connection can be hijacked.
func (s *Server) Handler() http.Handler {
	compressed := gzhttp.GzipHandler(s.router)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUpgrade(r) {
			s.router.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
}

// Pool exposes the realm pool
func (s *Server) Pool() *sandbox.Pool { return s.pool }

// Store exposes the function store
func (s *Server) Store() *functions.Instrumented { return s.store }

// Run serves until Shutdown is called
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve accepts connections on an existing listener until Shutdown is called
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", l.Addr().String()))
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones, then
// releases the pool and the store
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close realm pool: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close function store: %w", err))
	}
	s.tracer.Close()

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Shutdown finished with errors", zap.Error(err))
		return err
	}
	s.logger.Info("Server stopped")
	_ = s.logger.Sync()
	return nil
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avkeyd/internal/health"
	"github.com/vyrodovalexey/avkeyd/internal/identity"
	"github.com/vyrodovalexey/avkeyd/internal/middleware"
	"github.com/vyrodovalexey/avkeyd/internal/observability"
	"github.com/vyrodovalexey/avkeyd/internal/service"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// Default server settings.
const (
	DefaultAddress      = ":8080"
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 15 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodyBytes = 1 << 20
)

// Config holds the server wiring. Service and Authenticator are
// required; everything else has a usable default or is optional.
type Config struct {
	// Address is the listen address, host:port.
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxBodyBytes caps request body size. Zero applies the default;
	// negative disables the limit.
	MaxBodyBytes int64

	// Service executes the key management operations.
	Service *service.Service

	// Authenticator resolves control-plane bearer credentials.
	Authenticator identity.Authenticator

	// Stream, when set, is mounted at /v1/events/stream inside the
	// authenticated group. The event hub satisfies it.
	Stream http.Handler

	// Checker, when set, mounts the health probe routes.
	Checker *health.Checker

	// ControlLimiter throttles the authenticated routes. Optional.
	ControlLimiter *middleware.RateLimiter

	// VerifyLimiter throttles /v1/verify. Optional and deliberately
	// separate: verification traffic dwarfs control traffic.
	VerifyLimiter *middleware.RateLimiter

	Logger  observability.Logger
	Metrics *observability.Metrics
}

// Server is the HTTP front of the key management service.
type Server struct {
	config  Config
	service *service.Service
	logger  observability.Logger

	engine     *gin.Engine
	httpServer *http.Server

	mu      sync.RWMutex
	running bool
}

// New creates a server and builds its route table.
func New(config Config) (*Server, error) {
	if config.Service == nil {
		return nil, errors.New("server requires a service")
	}
	if config.Authenticator == nil {
		return nil, errors.New("server requires an authenticator")
	}

	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.Logger == nil {
		config.Logger = observability.NopLogger()
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		config:  config,
		service: config.Service,
		logger:  config.Logger,
	}
	s.engine = s.buildEngine()
	return s, nil
}

// buildEngine assembles the middleware chain and the route table.
func (s *Server) buildEngine() *gin.Engine {
	engine := gin.New()

	healthPaths := []string{"/healthz", "/readyz", "/livez"}

	engine.Use(middleware.Recovery(s.logger))
	engine.Use(middleware.RequestID())
	engine.Use(middleware.LoggingWithConfig(middleware.LoggingConfig{
		Logger:    s.logger,
		SkipPaths: healthPaths,
	}))
	if s.config.Metrics != nil {
		engine.Use(middleware.Metrics(s.config.Metrics))
	}
	if s.config.MaxBodyBytes > 0 {
		engine.Use(bodyLimit(s.config.MaxBodyBytes))
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "no route matched the request",
		})
	})

	if s.config.Checker != nil {
		s.config.Checker.Register(engine)
	}

	v1 := engine.Group("/v1")

	// Data plane. No caller authentication: the presented digest is
	// the credential.
	verify := v1.Group("")
	if s.config.VerifyLimiter != nil {
		verify.Use(s.config.VerifyLimiter.Middleware())
	}
	verify.POST("/verify", s.handleVerify)

	// Control plane.
	control := v1.Group("")
	if s.config.ControlLimiter != nil {
		control.Use(s.config.ControlLimiter.Middleware())
	}
	control.Use(middleware.Auth(s.config.Authenticator, s.logger))

	projects := control.Group("/projects")
	projects.POST("", s.handleCreateProject)
	projects.GET("/:project_id", s.handleGetProject)
	projects.POST("/:project_id/transfer", s.handleTransferAuthority)

	keys := projects.Group("/:project_id/keys")
	keys.POST("", s.handleIssueKey)
	keys.GET("/:index", s.handleGetKey)
	keys.POST("/:index/rotate", s.handleRotateKey)
	keys.PUT("/:index/scopes", s.handleUpdateScopes)
	keys.PUT("/:index/rate-limit", s.handleUpdateRateLimit)
	keys.POST("/:index/revoke", s.handleRevokeKey)
	keys.POST("/:index/suspend", s.handleSuspendKey)
	keys.POST("/:index/reactivate", s.handleReactivateKey)
	keys.DELETE("/:index/usage", s.handleCloseUsage)

	if s.config.Stream != nil {
		control.GET("/events/stream", gin.WrapH(s.config.Stream))
	}

	return engine
}

// bodyLimit caps the request body size via http.MaxBytesReader.
func bodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// Handler returns the route handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the listener until Stop or a fatal error. The context
// becomes the base context of every request.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}

	s.httpServer = &http.Server{
		Addr:         s.config.Address,
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting http server",
		observability.String("address", s.config.Address),
		observability.Duration("read_timeout", s.config.ReadTimeout),
		observability.Duration("write_timeout", s.config.WriteTimeout),
	)

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the listener down gracefully, waiting for in-flight
// requests up to the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("stopping http server")

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("http server stopped")
	return nil
}

// IsRunning reports whether Start is active.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

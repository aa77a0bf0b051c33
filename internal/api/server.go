package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/safewatch/internal/api/middleware"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/lifecycle"
	"github.com/tphakala/safewatch/internal/logger"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

const healthCheckTimeout = 2 * time.Second

// Server is the HTTP front door of the lifecycle controller.
type Server struct {
	echo   *echo.Echo
	config Config
	ctl    *lifecycle.Controller
	svc    *lifecycle.Service

	metrics http.Handler

	checks map[string]HealthCheck

	version   string
	log       logger.Logger
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithHealthCheck adds a named dependency probe to GET /health.
func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithVersion reports the build version on GET /health.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// New creates the HTTP server and registers every route.
func New(cfg Config, ctl *lifecycle.Controller, opts ...ServerOption) (*Server, error) {
	if ctl == nil {
		return nil, errors.Newf("lifecycle controller is required").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	s := &Server{
		config:    cfg,
		ctl:       ctl,
		svc:       ctl.Service(),
		checks:    make(map[string]HealthCheck),
		log:       GetLogger(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = cfg.ReadTimeout
	s.echo.Server.WriteTimeout = cfg.WriteTimeout
	s.echo.Server.IdleTimeout = cfg.IdleTimeout
	s.echo.HTTPErrorHandler = s.httpErrorHandler

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized", logger.String("address", cfg.Listen))
	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, mw.SkipPaths("/health", "/metrics")))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders())
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	v1 := s.echo.Group("/api/v1")

	v1.POST("/emergencies", s.reportEmergency)
	v1.GET("/emergencies/:id", s.getEmergency)
	v1.POST("/emergencies/:id/cancel", s.cancelEmergency)
	v1.POST("/emergencies/:id/resolve", s.resolveEmergency)

	v1.POST("/feedback", s.recordFeedback)

	v1.POST("/sessions", s.startSession)
	v1.GET("/sessions/:id", s.getSession)
	v1.POST("/sessions/:id/readings", s.observeSession)
	v1.POST("/sessions/:id/cancel", s.cancelSession)
	v1.POST("/sessions/:id/sos", s.triggerSOS)
	v1.PUT("/sessions/:id/location", s.updateLocation)
	v1.DELETE("/sessions/:id", s.stopSession)
}

// healthCheck reports uptime, open sessions and the result of every
// registered probe. Any failing probe turns the response into a 503.
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "healthy", http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			results[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	uptime := time.Since(s.startTime)
	return c.JSON(code, map[string]any{
		"status":          status,
		"version":         s.version,
		"checks":          results,
		"active_sessions": s.ctl.ActiveSessions(),
		"uptime":          uptime.Round(time.Second).String(),
		"uptime_seconds":  uptime.Seconds(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// ServeHTTP lets the server be mounted or driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// ListenAndServe blocks until the server stops. A graceful Shutdown
// returns nil.
func (s *Server) ListenAndServe() error {
	s.log.Info("starting HTTP server", logger.String("address", s.config.Listen))
	if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("address", s.config.Listen).
			Build()
	}
	return nil
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return errors.New(err).
			Component("api").
			Category(errors.CategoryTimeout).
			Build()
	}
	s.log.Info("server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

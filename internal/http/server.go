// Package http provides the networked todorun API.
//
// Every JSON response is wrapped in an Envelope. Runs are streamed to the
// client as server-sent events fed from the event bus.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/todorun/internal/events"
	"github.com/fyrsmithlabs/todorun/internal/logging"
	"github.com/fyrsmithlabs/todorun/internal/session"
)

// Server provides HTTP endpoints for todorun.
type Server struct {
	echo     *echo.Echo
	store    *session.Store
	bus      *events.Bus
	logger   *zap.Logger
	config   *Config
	gatherer prometheus.Gatherer
	meter    metric.Meter
}

// Config holds HTTP server configuration.
type Config struct {
	Host              string
	Port              int
	HeartbeatInterval time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer selects the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithMeter records request metrics with m instead of the global meter.
func WithMeter(m metric.Meter) Option {
	return func(s *Server) { s.meter = m }
}

// NewServer creates a new HTTP server.
func NewServer(store *session.Store, bus *events.Bus, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, errors.New("session store cannot be nil")
	}
	if bus == nil {
		return nil, errors.New("event bus cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 8000}
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}

	s := &Server{
		store:    store,
		bus:      bus,
		logger:   logger,
		config:   cfg,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext())
	e.Use(NewHTTPMetrics(logger, s.meter).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request.id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s.echo = e
	s.registerRoutes()
	return s, nil
}

// requestContext copies the request id into the request context so
// orchestrator logs carry it.
func requestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx = logging.WithRequestID(ctx, c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions", s.handleListSessions)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
	v1.POST("/sessions/:id/analyze", s.handleAnalyze)
	v1.POST("/sessions/:id/clarifications", s.handleClarifications)
	v1.POST("/sessions/:id/generate", s.handleGenerate)
	v1.POST("/sessions/:id/edit", s.handleEdit)
	v1.POST("/sessions/:id/tasks/:task_id/apply", s.handleApplyEdit)
	v1.GET("/sessions/:id/tasks", s.handleGetTasks)
	v1.GET("/sessions/:id/stream", s.handleStream)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Package http serves a vector index over a JSON API.
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
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorindex/internal/logging"
	"github.com/fyrsmithlabs/vectorindex/internal/vectorindex"
)

// Server provides HTTP endpoints for one vector index.
type Server struct {
	echo     *echo.Echo
	index    *vectorindex.Index
	logger   *zap.Logger
	config   Config
	gatherer prometheus.Gatherer
	metrics  *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// BodyLimit is an echo size string such as "4M". Empty disables it.
	BodyLimit string
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves g on /metrics. Defaults to the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithMetrics records request metrics with m.
func WithMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new HTTP server.
func NewServer(ix *vectorindex.Index, logger *zap.Logger, cfg Config, opts ...Option) (*Server, error) {
	if ix == nil {
		return nil, fmt.Errorf("index cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		index:    ix,
		logger:   logger.Named("http"),
		config:   cfg,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: logging.NewRequestID,
		// The middleware has already echoed the caller's header; replace
		// it with the validated id.
		RequestIDHandler: func(c echo.Context, id string) {
			ctx := logging.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(echo.HeaderXRequestID, logging.RequestIDFromContext(ctx))
		},
	}))
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}
	e.Use(s.logRequests)

	s.registerRoutes()
	return s, nil
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		fields := append(logging.ContextFields(c.Request().Context()),
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		s.logger.Info("http request", fields...)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/search", s.handleSearch)
	v1.POST("/search/ids", s.handleSearchIDs)
	v1.POST("/hybrid", s.handleHybrid)
	v1.POST("/records", s.handleCreate)
	v1.GET("/records/:id", s.handleRead)
	v1.PUT("/tables/:table", s.handleEnsureTable)
	v1.POST("/tables/:table/documents", s.handleAddDocuments)
	v1.PUT("/tables/:table/records/:id", s.handleUpdate)
	v1.DELETE("/tables/:table/records/:id", s.handleDelete)
	v1.POST("/tables/:table/batch/update", s.handleUpdateBatch)
	v1.POST("/tables/:table/batch/delete", s.handleDeleteBatch)
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

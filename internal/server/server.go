// Package server wires the gin router, middleware and HTTP lifecycle for
// the library service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/piwi3910/stratweave/internal/config"
	"github.com/piwi3910/stratweave/internal/deployments"
	"github.com/piwi3910/stratweave/internal/events"
	"github.com/piwi3910/stratweave/internal/observability"
	"github.com/piwi3910/stratweave/internal/registry"
	"github.com/piwi3910/stratweave/internal/storage"
	"github.com/piwi3910/stratweave/internal/swaps"
)

// Version is the service version reported on health endpoints.
// Overridden at build time with -ldflags.
var Version = "dev"

// Server is the HTTP server for the library service.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     *gin.Engine
	httpServer *http.Server

	store     storage.Store
	publisher events.Publisher

	registry    *registry.Service
	deployments *deployments.Manager
	swaps       *swaps.Engine

	healthChecker *observability.HealthChecker
	metrics       *Metrics

	shutdownOnce sync.Once
}

// Metrics holds the HTTP-level Prometheus collectors.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge
}

// New creates a fully wired server.
func New(cfg *config.Config, logger *zap.Logger, store storage.Store, publisher events.Publisher) *Server {
	gin.SetMode(cfg.Server.GinMode)

	s := &Server{
		config:        cfg,
		logger:        logger,
		router:        gin.New(),
		store:         store,
		publisher:     publisher,
		registry:      registry.NewService(store, publisher, logger),
		deployments:   deployments.NewManager(store, publisher, logger),
		swaps:         swaps.NewEngine(store, publisher, logger),
		healthChecker: observability.NewHealthChecker(Version),
	}

	if cfg.Observability.MetricsEnabled {
		s.metrics = initMetrics()
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// initMetrics registers the HTTP collectors.
func initMetrics() *Metrics {
	metrics := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stratweave",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stratweave",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "stratweave",
				Subsystem: "http",
				Name:      "active_requests",
				Help:      "Number of in-flight HTTP requests.",
			},
		),
	}

	prometheus.MustRegister(metrics.RequestsTotal)
	prometheus.MustRegister(metrics.RequestDuration)
	prometheus.MustRegister(metrics.ActiveRequests)

	return metrics
}

func (s *Server) setupMiddleware() {
	// Recovery must be first to catch panics from everything below.
	s.router.Use(s.recoveryMiddleware())
	s.router.Use(s.loggingMiddleware())

	if s.config.Observability.MetricsEnabled {
		s.router.Use(s.metricsMiddleware())
	}
}

// Start starts the HTTP server and blocks until shutdown. Graceful
// shutdown runs on SIGINT and SIGTERM.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting HTTP server",
			zap.String("address", s.config.Server.ListenAddr),
			zap.String("mode", s.config.Server.GinMode),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		s.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the HTTP server, then drains the event
// publisher and closes the store. Safe to call multiple times.
func (s *Server) Shutdown() error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info("initiating graceful shutdown",
			zap.Duration("timeout", s.config.Server.ShutdownTimeout),
		)

		ctx, cancel := context.WithTimeout(
			context.Background(),
			s.config.Server.ShutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("error during shutdown", zap.Error(err))
			shutdownErr = fmt.Errorf("server shutdown failed: %w", err)
			return
		}

		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("error closing event publisher", zap.Error(err))
		}
		if err := s.store.Close(); err != nil {
			s.logger.Warn("error closing store", zap.Error(err))
		}

		s.logger.Info("server shutdown complete")
	})

	return shutdownErr
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("client_ip", c.ClientIP()),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"detail": "internal error",
				})
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs HTTP requests and responses.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		s.logger.Info("HTTP request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", latency),
			zap.Int("body_size", c.Writer.Size()),
		)

		if len(c.Errors) > 0 {
			for _, e := range c.Errors {
				s.logger.Error("request error", zap.Error(e.Err))
			}
		}
	}
}

// metricsMiddleware collects Prometheus metrics for HTTP requests.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.metrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		s.metrics.ActiveRequests.Inc()
		defer s.metrics.ActiveRequests.Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		status := fmt.Sprintf("%d", c.Writer.Status())

		s.metrics.RequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		s.metrics.RequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
	}
}

// Package http serves the JSON authentication API together with the
// liveness, readiness and metrics endpoints.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/tracing"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ReadinessChecker reports whether the server can take traffic.
type ReadinessChecker interface {
	HealthCheck(ctx context.Context) bool
}

type HTTPServer struct {
	address         string
	logger          logging.Logger
	engine          *gin.Engine
	ready           ReadinessChecker
	shutdownTimeout time.Duration
	shuttingDown    atomic.Bool
}

func NewHTTPServer(a string, l logging.Logger, h *Handler, ready ReadinessChecker, m *metrics.Metrics, shutdownTimeout time.Duration) *HTTPServer {
	s := &HTTPServer{
		address:         a,
		logger:          l.With("module", "http_server"),
		ready:           ready,
		shutdownTimeout: shutdownTimeout,
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		otelgin.Middleware(tracing.ServiceName),
		requestID(),
		requestLogger(s.logger),
		observe(m),
	)

	engine.GET("/health", s.health)
	engine.GET("/ready", s.readiness)
	engine.GET("/metrics", gin.WrapH(m.Handler()))

	h.RegisterRoutes(engine.Group("/api"))

	s.engine = engine
	return s
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then flips readiness to 503 and shuts
// down gracefully within the configured timeout.
func (s *HTTPServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		errCh <- srv.Serve(listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	s.shuttingDown.Store(true)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readiness returns 503 once shutdown has started or while the database
// is unreachable.
func (s *HTTPServer) readiness(c *gin.Context) {
	if s.shuttingDown.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
		return
	}
	if s.ready == nil || !s.ready.HealthCheck(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

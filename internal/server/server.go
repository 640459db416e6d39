// Package server exposes the diagnostics over HTTP so operators can
// poll the health of a search environment from monitoring systems
// instead of shelling out to the CLI.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/searchkit/searchkit/pkg/auth"
	"github.com/searchkit/searchkit/pkg/config"
	"github.com/searchkit/searchkit/pkg/diagnose"
	"github.com/searchkit/searchkit/pkg/logging"
	"github.com/searchkit/searchkit/pkg/metrics"
	"github.com/searchkit/searchkit/pkg/search"
)

// Server serves diagnostic reports and metrics.
type Server struct {
	cfg        *config.Config
	credential auth.Credential
	safe       *search.SafeClient
	metrics    *metrics.Metrics
	logger     *logging.Logger
	httpServer *http.Server
}

// New builds the server. safe may be nil when no endpoint is
// configured; diagnostics then report the missing configuration.
func New(cfg *config.Config, credential auth.Credential, safe *search.SafeClient, m *metrics.Metrics) *Server {
	return &Server{
		cfg:        cfg,
		credential: credential,
		safe:       safe,
		metrics:    m,
		logger:     logging.GetLogger(),
	}
}

// Router builds the HTTP routes. Exposed for tests.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/healthz", s.handleHealth)
	router.GET("/readyz", s.handleReady)
	router.GET("/diagnostics", s.handleDiagnostics)
	if s.metrics != nil {
		router.GET("/metrics", s.metrics.Handler())
	}
	return router
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	router := s.Router()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("diagnostics server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// handleHealth reports process liveness only.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReady reports whether the service itself is reachable.
func (s *Server) handleReady(c *gin.Context) {
	if s.safe == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unconfigured",
			"reason": "No endpoint configured",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if _, err := s.safe.Client().ServiceStats(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unreachable",
			"reason": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleDiagnostics runs the full check sequence and returns the report.
func (s *Server) handleDiagnostics(c *gin.Context) {
	runner := diagnose.NewRunner(discard{}, s.cfg.Diagnostics.MaxSuggestions)
	if s.metrics != nil {
		runner.WithRecorder(s.metrics)
	}
	for _, check := range diagnose.StandardChecks(s.cfg, s.credential, s.safe) {
		runner.Register(check)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()
	report := runner.Run(ctx)

	status := http.StatusOK
	if report.Summary.Failed > 0 {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// discard drops console rendering; HTTP clients get the JSON report.
type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

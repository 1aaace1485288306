package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/roach88/gigrank/internal/engine"
	"github.com/roach88/gigrank/internal/pipeline"
	"github.com/roach88/gigrank/internal/store"
)

// Default server settings.
const (
	DefaultAddr            = ":8000"
	DefaultShutdownTimeout = 10 * time.Second
)

// Config configures the HTTP server.
type Config struct {
	Addr            string
	AllowOrigins    []string
	ShutdownTimeout time.Duration
}

// Deps are the components behind the routes. Scheduler is optional.
type Deps struct {
	Pipeline  *pipeline.Pipeline
	Scanner   engine.Scanner
	Runs      *engine.RunIngestService
	Scheduler *engine.Scheduler
	Store     *store.Store
	Root      string
}

// Server is the HTTP request surface.
type Server struct {
	cfg    Config
	deps   Deps
	router *gin.Engine
	logger *slog.Logger
}

// New builds the router. A nil logger uses slog.Default().
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, deps: deps, logger: logger}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.cfg.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.AllowOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", s.health)

	v1 := r.Group("/v1")
	{
		v1.POST("/ingest/scan", s.ingestScan)
		v1.POST("/ingest/run", s.ingestRun)

		v1.GET("/recommendations/keywords", s.keywords)

		v1.GET("/opportunities", s.opportunities)
		v1.GET("/opportunities/:key/draft", s.draft)

		v1.GET("/telemetry/queue", s.queueTelemetry)
		v1.POST("/telemetry/queue", s.postQueueTelemetry)
		v1.GET("/telemetry/summary", s.summary)
	}
	return r
}

// requestLogger logs one line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

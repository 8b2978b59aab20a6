package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sadnxai/chatlink/internal/metrics"
)

// Config holds development server settings.
type Config struct {
	ListenAddr       string
	IdlePingInterval time.Duration // server ping after this long without client frames
	MaxUploadBytes   int64
	MetricsPath      string // empty disables /metrics
}

// DefaultConfig returns the settings used by cmd/chatserver.
func DefaultConfig() Config {
	return Config{
		ListenAddr:       ":8000",
		IdlePingInterval: 60 * time.Second,
		MaxUploadBytes:   100 << 20,
		MetricsPath:      "/metrics",
	}
}

// Server is an in-memory chat service speaking the REST and WebSocket
// protocol of the real one.
type Server struct {
	cfg      Config
	store    *Store
	router   *gin.Engine
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// New creates a server with its routes registered. m may be nil.
func New(cfg Config, logger *slog.Logger, m *metrics.Collector) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.IdlePingInterval <= 0 {
		cfg.IdlePingInterval = def.IdlePingInterval
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger), requestMetrics(m))

	s := &Server{
		cfg:    cfg,
		store:  NewStore(),
		router: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger.With("component", "devserver"),
		metrics: m,
	}
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/health", s.health)
	api.POST("/sessions", s.createSession)
	api.GET("/sessions", s.listSessions)
	api.GET("/sessions/:id", s.getSession)
	api.DELETE("/sessions/:id", s.deleteSession)
	api.POST("/sessions/:id/upload", s.upload)
	api.GET("/ws/:id", s.serveWS)

	if s.cfg.MetricsPath != "" {
		s.router.GET(s.cfg.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store exposes the session store.
func (s *Server) Store() *Store {
	return s.store
}

// Run serves on cfg.ListenAddr until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}

		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", routePath(c),
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

func requestMetrics(m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.HTTPRequest(c.Request.Method, routePath(c), c.Writer.Status(), time.Since(start))
	}
}

// routePath prefers the route template so ids do not explode label cardinality.
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

// Package http provides the relay's HTTP server, router and shared middleware.
package http

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/sealdrop/internal/config"
	filesHTTP "github.com/allisson/sealdrop/internal/files/http"
	"github.com/allisson/sealdrop/internal/metrics"
)

const readinessTimeout = 2 * time.Second

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the relay API server.
type Server struct {
	db       *sql.DB
	storage  Pinger
	listener *listener
	router   *gin.Engine
	logger   *slog.Logger
}

// NewServer creates a new HTTP server. Call SetupRouter before Start.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:       db,
		logger:   logger,
		listener: newListener("http server", host, port, 60*time.Second, logger),
	}
}

// SetupRouter registers the relay routes and middleware.
//
// Routes:
//   - POST /v1/files, POST / (legacy form): upload a sealed envelope
//   - GET /v1/files/:id, GET /download/:id: one-time retrieval
//   - POST /v1/files/:id/notify: resend the recipient notification
//   - GET /health, GET /ready
//
// The metrics provider may be nil when metrics are disabled.
func (s *Server) SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	fileHandler *filesHTTP.FileHandler,
	storage Pinger,
	metricsProvider *metrics.Provider,
	metricsNamespace string,
) {
	s.storage = storage

	if cfg.RequestTimeout > 0 {
		s.listener.server.ReadTimeout = cfg.RequestTimeout
		s.listener.server.WriteTimeout = cfg.RequestTimeout
	}

	router := gin.New()
	// Envelopes are read straight from the part; keep small forms in memory only.
	router.MaxMultipartMemory = 8 << 20
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger)
	if corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), metricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	timeout := RequestTimeoutMiddleware(cfg.RequestTimeout)

	uploadChain := []gin.HandlerFunc{timeout}
	if cfg.RateLimitUploadEnabled {
		uploadChain = append(uploadChain, IPRateLimitMiddleware(
			ctx,
			"upload",
			cfg.RateLimitUploadRequestsPerSec,
			cfg.RateLimitUploadBurst,
			s.logger,
		))
	}

	downloadChain := []gin.HandlerFunc{timeout}
	if cfg.RateLimitDownloadEnabled {
		downloadChain = append(downloadChain, IPRateLimitMiddleware(
			ctx,
			"download",
			cfg.RateLimitDownloadRequestsPerSec,
			cfg.RateLimitDownloadBurst,
			s.logger,
		))
	}

	router.POST("/", withHandler(uploadChain, fileHandler.LegacyUploadHandler)...)
	router.GET("/download/:id", withHandler(downloadChain, fileHandler.DownloadHandler)...)

	v1 := router.Group("/v1/files")
	{
		v1.POST("", withHandler(uploadChain, fileHandler.UploadHandler)...)
		v1.GET("/:id", withHandler(downloadChain, fileHandler.DownloadHandler)...)
		// Shares the download limiter: the resend endpoint verifies the same credential.
		v1.POST("/:id/notify", withHandler(downloadChain, fileHandler.NotifyHandler)...)
	}

	s.router = router
}

func withHandler(middleware []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	return append(slices.Clone(middleware), handler)
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start serves the relay API until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	return s.listener.serve(s.router)
}

// Shutdown stops accepting requests and waits for in-flight transfers up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.listener.shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports 503 until both the database and the byte store answer.
func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	components := gin.H{}
	ready := true

	if s.db == nil || s.db.PingContext(ctx) != nil {
		components["database"] = "error"
		ready = false
	} else {
		components["database"] = "ok"
	}

	if s.storage != nil {
		if err := s.storage.Ping(ctx); err != nil {
			s.logger.Warn("storage readiness check failed", slog.Any("error", err))
			components["storage"] = "error"
			ready = false
		} else {
			components["storage"] = "ok"
		}
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}

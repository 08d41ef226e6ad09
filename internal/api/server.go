// Package api exposes the HTTP surface: search, indexer status, live-TV
// streaming, usenet range streaming, metrics, and the WebSocket hub.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/config"
	"github.com/keonramses/cinephage/internal/indexer/search"
	"github.com/keonramses/cinephage/internal/indexer/status"
	"github.com/keonramses/cinephage/internal/livetv"
	"github.com/keonramses/cinephage/internal/scheduler"
	"github.com/keonramses/cinephage/internal/ssrf"
	"github.com/keonramses/cinephage/internal/usenet"
	"github.com/keonramses/cinephage/internal/websocket"
)

// Deps bundles the services the server fronts. Everything is
// constructed in main and handed over wired.
type Deps struct {
	Hub          *websocket.Hub
	Orchestrator *search.Orchestrator
	Tracker      *status.Tracker
	Resolver     *livetv.Resolver
	Direct       *livetv.DirectStream
	HLS          *livetv.HLSConverter
	Guard        *ssrf.Guard
	Usenet       *usenet.Service
	Scheduler    *scheduler.Scheduler
}

// Server handles HTTP requests for the cinephage API.
type Server struct {
	echo      *echo.Echo
	logger    zerolog.Logger
	cfg       *config.Config
	deps      Deps
	startedAt time.Time

	segmentClient *http.Client
}

// NewServer creates a new API server instance.
func NewServer(deps Deps, cfg *config.Config, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		logger:    logger.With().Str("component", "api").Logger(),
		cfg:       cfg,
		deps:      deps,
		startedAt: time.Now(),
		segmentClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Request ID
	s.echo.Use(middleware.RequestID())

	// CORS
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Range"},
	}))

	// Request logging. Streaming endpoints are logged at debug to keep
	// the request log readable under segment polling.
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Info()
			if v.Error != nil {
				event = s.logger.Error().Err(v.Error)
			} else if isStreamPath(c.Path()) {
				event = s.logger.Debug()
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	// Gzip compression
	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Skip compression for WebSocket and media streams
			return c.Request().Header.Get("Upgrade") == "websocket" || isStreamPath(c.Path())
		},
	}))
}

func isStreamPath(path string) bool {
	switch path {
	case "/livetv/stream/:lineupId", "/livetv/segment", "/usenet/stream/:mountId/:fileIndex":
		return true
	}
	return false
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", s.healthCheck)

	// Metrics
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// WebSocket
	s.echo.GET("/ws", s.deps.Hub.HandleWebSocket)

	// Live TV streaming. These carry permissive CORS headers
	// unconditionally so media players can fetch cross-origin.
	livetvGroup := s.echo.Group("/livetv", streamCORS)
	livetvGroup.GET("/stream/:lineupId", s.livetvStream)
	livetvGroup.HEAD("/stream/:lineupId", s.livetvStreamHead)
	livetvGroup.OPTIONS("/stream/:lineupId", s.livetvStreamOptions)
	livetvGroup.GET("/segment", s.livetvSegment)

	// Usenet range streaming
	s.echo.GET("/usenet/stream/:mountId/:fileIndex", s.usenetStream)
	s.echo.HEAD("/usenet/stream/:mountId/:fileIndex", s.usenetStream)

	// API v1 group
	api := s.echo.Group("/api/v1")
	api.GET("/health", s.healthCheck)

	// Search routes
	api.POST("/search", s.search)
	api.POST("/search/enhanced", s.searchEnhanced)

	// Indexer status
	api.GET("/indexers/status", s.indexerStatus)

	// System routes
	api.GET("/system/status", s.systemStatus)
	api.GET("/system/tasks", s.listTasks)
	api.POST("/system/tasks/:id/run", s.runTask)
}

// streamCORS sets permissive CORS headers on every response in the
// group, including errors.
func streamCORS(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set(echo.HeaderAccessControlAllowOrigin, "*")
		h.Set(echo.HeaderAccessControlAllowMethods, "GET, HEAD, OPTIONS")
		h.Set(echo.HeaderAccessControlAllowHeaders, "*")
		return next(c)
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// --- System handlers ---

func (s *Server) healthCheck(c echo.Context) error {
	statuses := s.deps.Tracker.Snapshot()
	healthy := 0
	for _, st := range statuses {
		if st.ConsecutiveFailures == 0 {
			healthy++
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"indexers":        len(statuses),
		"indexersHealthy": healthy,
		"wsClients":       s.deps.Hub.ClientCount(),
	})
}

func (s *Server) systemStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":   "0.1.0",
		"startTime": s.startedAt.Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).String(),
	})
}

func (s *Server) listTasks(c echo.Context) error {
	if s.deps.Scheduler == nil {
		return c.JSON(http.StatusOK, []interface{}{})
	}
	return c.JSON(http.StatusOK, s.deps.Scheduler.ListTasks())
}

func (s *Server) runTask(c echo.Context) error {
	if s.deps.Scheduler == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "scheduler not available"})
	}
	if err := s.deps.Scheduler.RunNow(c.Param("id")); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}

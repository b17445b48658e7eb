package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gexflow/internal/analytics"
	"gexflow/internal/config"
	"gexflow/internal/logger"
	"gexflow/internal/monitor"
)

// Server serves the analytics core over HTTP and websocket
type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	httpServer *http.Server
	service    *analytics.Service
	metrics    *monitor.Metrics
	hub        *Hub
	upgrader   websocket.Upgrader
}

// NewServer creates the API server and wires routes
func NewServer(cfg *config.Config, service *analytics.Service, metrics *monitor.Metrics) *Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		router:  gin.New(),
		service: service,
		metrics: metrics,
		hub:     NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	// Push burst events to connected dashboards as they happen
	service.SubscribeBursts(s.hub.BroadcastBurst)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(recoveryMiddleware())
	s.router.Use(corsMiddleware(s.cfg.Server.AllowedOrigins))
	s.router.Use(rateLimitMiddleware(s.cfg.Server.RequestsPerSecond, s.cfg.Server.RateBurst))
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware())
	}

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/underlyings", s.handleUnderlyings)
		v1.GET("/scores/:underlying", s.handleScores)
		v1.GET("/exposure/:underlying", s.handleExposure)
		v1.GET("/expected-move/:underlying", s.handleExpectedMove)
		v1.GET("/flow/:underlying", s.handleFlow)
		v1.GET("/bias/:underlying", s.handleBias)
		v1.GET("/ws", s.handleWebSocket)
	}
}

// Start runs the HTTP server until the listener fails or Shutdown
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go s.hub.Run()

	logger.Infof("api server listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() http.Handler {
	return s.router
}

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/indexflow-go/internal/syncer/bus"
	"github.com/indexflow-go/internal/syncer/handlers"
	"github.com/indexflow-go/pkg/config"
	"github.com/indexflow-go/pkg/logger"
	"github.com/indexflow-go/pkg/telemetry"
)

// Server exposes the admin HTTP surface next to the sync pipeline: health,
// status, Prometheus metrics, dead-letter management and rebuild triggers.
type Server struct {
	config     *config.Config
	logger     logger.Logger
	httpServer *http.Server
}

func New(cfg *config.Config, h *handlers.Handler, b bus.Bus, tel *telemetry.Telemetry, log logger.Logger) *Server {
	router := setupRouter(h, b, tel)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &Server{
		config:     cfg,
		logger:     log,
		httpServer: httpServer,
	}
}

func setupRouter(h *handlers.Handler, b bus.Bus, tel *telemetry.Telemetry) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if tel != nil {
		router.Use(tel.HTTPMiddleware())
	}

	router.GET("/health", h.Health)
	router.GET("/status", h.Status)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/deadletters", h.ListDeadLetters)
	router.POST("/deadletters/requeue", h.RequeueDeadLetters)

	router.POST("/rebuild/:index", h.Rebuild)
	router.POST("/changes", h.NotifyChange(b.Publish))

	return router
}

func (s *Server) Start() error {
	s.logger.Info("Starting admin server", "port", s.config.Server.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down admin server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

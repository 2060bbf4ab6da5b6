// Package http exposes the mission engine as a gin REST API
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"missionhub/internal/core"
	"missionhub/pkg/config"
	"missionhub/pkg/logger"
)

// Pinger reports progress store reachability for /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries the server's collaborators
type Options struct {
	Engine core.MissionEngine
	Tokens core.TokenService
	Store  Pinger
	// Notifications serves /ws/notifications when set
	Notifications gin.HandlerFunc
}

// Server manages the HTTP REST API server
type Server struct {
	router  *gin.Engine
	config  *config.Config
	engine  core.MissionEngine
	tokens  core.TokenService
	store   Pinger
	limiter *learnerLimiter
	httpSrv *http.Server
}

// NewServer creates a new HTTP server with all handlers
func NewServer(cfg *config.Config, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())
	router.Use(recoveryMiddleware())
	router.Use(corsMiddleware(cfg.Server.AllowedOrigins))

	s := &Server{
		router:  router,
		config:  cfg,
		engine:  opts.Engine,
		tokens:  opts.Tokens,
		store:   opts.Store,
		limiter: newLearnerLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	}
	s.setupRoutes(opts.Notifications)
	return s
}

func (s *Server) setupRoutes(notifications gin.HandlerFunc) {
	s.router.GET("/health", s.healthCheck)
	if notifications != nil {
		s.router.GET("/ws/notifications", notifications)
	}

	v1 := s.router.Group("/api/v1", AuthMiddleware(s.tokens))
	{
		v1.GET("/availability", s.checkAvailability)
		v1.GET("/badges", s.listBadges)

		// Authoring access exposes answer keys
		v1.GET("/missions/:id", RequireRole(core.RoleTeacher, core.RoleAdmin), s.getMission)

		writes := v1.Group("", RateLimitMiddleware(s.limiter))
		{
			writes.POST("/missions/:id/attempts", s.startMission)
			writes.POST("/missions/:id/theory-ack", s.acknowledgeTheory)
			writes.POST("/attempts/:id/activities", s.submitActivity)
			writes.POST("/attempts/:id/finalize", s.finalizeAttempt)
			writes.POST("/attempts/:id/abandon", s.abandonAttempt)
			writes.PUT("/me/timezone", s.setTimezone)
		}

		v1.GET("/attempts/:id", s.getAttempt)
		v1.GET("/me/progress", s.getProgress)
		v1.GET("/me/badges", s.listEarnedBadges)
	}
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("HTTP server stopping")
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// Router returns the gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// healthCheck reports store reachability
func (s *Server) healthCheck(c *gin.Context) {
	body := gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
	if s.store != nil {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			body["status"] = "degraded"
			body["store"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}

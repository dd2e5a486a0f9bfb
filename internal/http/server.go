// Package http provides HTTP server implementation and request handlers.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/identity/internal/config"
	"github.com/allisson/identity/internal/metrics"
	recoveryHTTP "github.com/allisson/identity/internal/recovery/http"
	userHTTP "github.com/allisson/identity/internal/user/http"
)

// Server represents the HTTP server
type Server struct {
	db     *sql.DB
	server *http.Server
	router *gin.Engine
	logger *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter registers middleware and routes. ctx bounds background work started by
// middleware such as the rate limiter cleanup.
func (s *Server) SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	userHandler *userHTTP.UserHandler,
	recoveryHandler *recoveryHTTP.RecoveryHandler,
	metricsProvider *metrics.Provider,
) {
	gin.SetMode(cfg.GetGinMode())

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := newCORSMiddleware(cfg, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	v1.POST("/users", userHandler.RegisterUserHandler)

	// Unauthenticated recovery endpoints share one per-IP limiter.
	recovery := v1.Group("")
	if cfg.RateLimitRecoveryEnabled {
		recovery.Use(RecoveryRateLimitMiddleware(
			ctx,
			cfg.RateLimitRecoveryRequestsPerSec,
			cfg.RateLimitRecoveryBurst,
			s.logger,
		))
	}

	passwordReset := recovery.Group("/password-reset")
	passwordReset.POST("/request", recoveryHandler.RequestPasswordResetHandler)
	passwordReset.POST("/validate", recoveryHandler.ValidatePasswordResetTokenHandler)
	passwordReset.POST("/confirm", recoveryHandler.ResetPasswordHandler)

	emailVerification := recovery.Group("/email-verification")
	emailVerification.POST("/request", recoveryHandler.RequestEmailVerificationHandler)
	emailVerification.POST("/validate", recoveryHandler.ValidateEmailVerificationTokenHandler)
	emailVerification.POST("/confirm", recoveryHandler.ConfirmEmailHandler)

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports readiness, including database connectivity.
func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	database := "ok"
	if s.db == nil {
		database = "error"
	} else if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("database ping failed", slog.Any("error", err))
		database = "error"
	}

	status, code := "ready", http.StatusOK
	if database != "ok" {
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status": status,
		"components": gin.H{
			"database": database,
		},
	})
}

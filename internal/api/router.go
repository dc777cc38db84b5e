package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certlink/internal/api/handlers"
	"github.com/adamscao/certlink/internal/api/middleware"
	"github.com/adamscao/certlink/internal/codec"
	"github.com/adamscao/certlink/internal/config"
	"github.com/adamscao/certlink/internal/db/repository"
	"github.com/adamscao/certlink/internal/models"
	"github.com/adamscao/certlink/internal/registry"
	"github.com/adamscao/certlink/internal/verifyurl"
)

// Dependencies are the optional collaborators of the server. Nil
// repositories disable persistence; a nil registry means no static file.
type Dependencies struct {
	CertRepo  *repository.CertRepository
	AuditRepo *repository.AuditRepository
	Registry  *registry.Registry
	Logger    *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
	logger *slog.Logger
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Set Gin mode
	if gin.Mode() != gin.TestMode {
		if cfg.Logging.Level == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	// Create handlers
	certCodec, err := codec.New(cfg.Certificate.SecretKey)
	if err != nil {
		return nil, err
	}
	auditor := handlers.NewAuditor(deps.AuditRepo, logger)
	certHandler, err := handlers.NewCertHandler(cfg, certCodec, deps.CertRepo, auditor, logger)
	if err != nil {
		return nil, err
	}
	registryHandler := handlers.NewRegistryHandler(deps.CertRepo, deps.Registry, logger)
	pageHandler := handlers.NewPageHandler(certCodec, registryHandler, auditor, logger)
	adminHandler := handlers.NewAdminHandler(deps.CertRepo, deps.AuditRepo, auditor, logger)

	// API v1 routes
	v1 := router.Group("/v1")
	{
		certs := v1.Group("/certificates")
		{
			certs.POST("", certHandler.IssueCertificate)
			certs.GET("/verify", certHandler.VerifyCertificate)
			certs.GET("/qr", certHandler.QRCode)
			certs.POST("/batch", certHandler.IssueBatch)
		}

		v1.GET("/registry/:id", registryHandler.Lookup)

		// Admin endpoints (require admin token)
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(cfg.Admin.Token, cfg.Admin.TOTPSecret, func(c *gin.Context, reason string) {
			auditor.Record(c, models.ActionAuthFailed, "", errors.New(reason), nil)
		}))
		{
			admin.POST("/registry", adminHandler.ImportRegistry)
			admin.GET("/audit", adminHandler.ListAudit)
		}
	}

	// Verification page that issued links point at
	router.GET("/"+verifyurl.VerifyPage, pageHandler.VerifyPage)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	return &Server{
		router: router,
		config: cfg,
		logger: logger,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}

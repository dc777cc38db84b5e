package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adamscao/certlink/internal/api"
	"github.com/adamscao/certlink/internal/config"
	"github.com/adamscao/certlink/internal/db"
	"github.com/adamscao/certlink/internal/db/repository"
	"github.com/adamscao/certlink/internal/logging"
	"github.com/adamscao/certlink/internal/registry"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "/etc/certlink/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("certlink server\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.Setup(cfg.Logging, os.Stderr)
	logger.Info("starting certlink server", "version", Version, "commit", Commit, "config", configPath)

	deps := api.Dependencies{Logger: logger}

	// Initialize database
	if cfg.Database.Path != "" {
		logger.Info("opening database", "path", cfg.Database.Path)
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer database.Close()

		deps.CertRepo = repository.NewCertRepository(database.DB)
		deps.AuditRepo = repository.NewAuditRepository(database.DB)

		if _, err := pruneAuditLogs(context.Background(), deps.AuditRepo, cfg.AuditRetention(), logger); err != nil {
			logger.Warn("audit log pruning failed", "error", err)
		}
	} else {
		logger.Warn("no database configured; issued certificates and audit logs are not stored")
	}

	// Load static registry
	if cfg.Registry.File != "" {
		reg, err := registry.LoadFile(cfg.Registry.File)
		if err != nil {
			return err
		}
		logger.Info("registry loaded", "path", cfg.Registry.File, "entries", reg.Len())
		deps.Registry = reg
	}

	if !cfg.AdminEnabled() {
		logger.Info("admin endpoints disabled; set admin.token to enable them")
	}

	server, err := api.NewServer(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// pruneAuditLogs drops audit entries older than retention. Zero retention
// keeps everything.
func pruneAuditLogs(ctx context.Context, repo *repository.AuditRepository, retention time.Duration, logger *slog.Logger) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-retention)
	deleted, err := repo.DeleteOld(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		logger.Info("pruned audit logs", "deleted", deleted, "before", cutoff)
	}
	return deleted, nil
}

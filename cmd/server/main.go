package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/provisioner/internal/config"
	"github.com/JonMunkholm/provisioner/internal/identity"
	"github.com/JonMunkholm/provisioner/internal/logging"
	"github.com/JonMunkholm/provisioner/internal/mail"
	"github.com/JonMunkholm/provisioner/internal/pipeline"
	"github.com/JonMunkholm/provisioner/internal/report"
	"github.com/JonMunkholm/provisioner/internal/store"
	"github.com/JonMunkholm/provisioner/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"pacing_interval", cfg.Import.PacingInterval,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	// Identity provider client and reconciler
	client, err := identity.NewClient(cfg.Identity.BaseURL, cfg.Identity.SecretKey, cfg.Identity.Timeout)
	if err != nil {
		slog.Error("failed to create identity client", "error", err)
		os.Exit(1)
	}
	reconciler := identity.NewReconciler(client)

	// Local store synchronizer
	synchronizer := store.NewSynchronizer(store.NewPGUsers(pool))

	// Welcome mail dispatcher and batch notifier share one SMTP sender
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	})
	if err != nil {
		slog.Error("failed to create mail sender", "error", err)
		os.Exit(1)
	}
	dispatcher := mail.NewDispatcher(sender, cfg.Import.EmailRetryAttempts, cfg.Import.EmailRetryDelay)

	orchestrator := pipeline.NewOrchestrator(reconciler, synchronizer, dispatcher, pipeline.Options{
		PacingInterval: cfg.Import.PacingInterval,
		PacingDelay:    cfg.Import.PacingDelay,
	})

	notifier := report.NewNotifier(sender, cfg.Mail.OperatorAddr(), cfg.Mail.StakeholderEmail)

	// Create server with config
	server := web.NewServer(cfg, orchestrator, notifier)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

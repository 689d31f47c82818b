package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bliinkai/ingest/internal/config"
	"github.com/bliinkai/ingest/internal/database"
	"github.com/bliinkai/ingest/internal/loader"
	"github.com/bliinkai/ingest/internal/logging"
	"github.com/bliinkai/ingest/internal/web"
)

func main() {
	// Load and validate configuration (config.properties plus env)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logPath := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Dir)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"load_max_concurrent", cfg.Load.MaxConcurrent,
		"chunk_size", cfg.Load.ChunkSize,
		"log_file", logPath,
	)

	ctx := context.Background()
	pool, err := database.NewPool(ctx, &cfg.Database)
	if err != nil {
		slog.Error("failed to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to database", "name", cfg.Database.Name, "host", cfg.Database.Host)

	service := loader.NewService(pool, cfg, slog.Default())
	server := web.NewServer(service, cfg, slog.Default())

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight loads finish; committed chunks stay committed
		// either way.
		if err := service.Drain(shutdownCtx); err != nil {
			slog.Warn("loads did not complete in time", "error", err)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cove/internal/server/api"
	"cove/internal/server/auth"
	"cove/internal/server/config"
	"cove/internal/server/progress"
	"cove/internal/server/service"
	"cove/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"upload_dir", cfg.UploadDir,
		"file_size_limit", cfg.FileSizeLimit,
		"large_file_size_limit", cfg.LargeFileSizeLimit,
		"extension_check", cfg.ExtensionCheck,
		"users", len(cfg.Keys),
	)

	// Initialize storage
	store, err := storage.NewStore(cfg.UploadDir)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	slog.Info("file storage initialized", "path", store.Root())

	// Key index
	keys := auth.NewKeyStore(cfg.Keys)

	// Progress tracking with background sweep
	tracker := progress.NewTracker(cfg.ProgressIdleMax, cfg.ProgressSweepInt)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	tracker.Start(sweepCtx)

	// Ingestion pipeline
	namer := storage.NewNamer(cfg.RandomSuffixLength)
	ingester := service.NewIngester(store, namer, tracker, service.Limits{
		FileSizeLimit:      cfg.FileSizeLimit,
		LargeFileSizeLimit: cfg.LargeFileSizeLimit,
		ExtensionCheck:     cfg.ExtensionCheck,
		AllowedExtensions:  cfg.AllowedExtensions,
	})

	// Setup HTTP router
	handler := api.NewHandler(ingester, store, keys, tracker, cfg)
	e := api.SetupRouter(handler, keys, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL, "tls", cfg.TLSCertFile != "")

		var err error
		if cfg.TLSCertFile != "" {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		slog.Info("server stopped", "reason", err)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the progress sweep
	sweepCancel()
	tracker.Wait()

	slog.Info("server exited cleanly")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	h "vidbrief/internal/api/http"
	"vidbrief/internal/batch"
	cfgpkg "vidbrief/internal/config"
	"vidbrief/internal/downloader"
	"vidbrief/internal/exporter"
	"vidbrief/internal/pipeline"
	repo "vidbrief/internal/repository"
	"vidbrief/internal/summarize"
	"vidbrief/internal/task"
	"vidbrief/internal/transcriber"
	"vidbrief/pkg/executor"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfgpkg.SetupLogger(cfg)
	slog.Info("configuration loaded", "environment", cfg.Environment)

	storage, err := repo.NewTaskStorage(cfg.RegistryDir)
	if err != nil {
		slog.Error("failed to initialize task registry", "error", err)
		os.Exit(1)
	}

	manager := task.NewManager(storage, cfg)
	orphans, err := manager.LoadOnStartup()
	if err != nil {
		slog.Error("failed to recover task registry", "error", err)
		os.Exit(1)
	}
	if orphans > 0 {
		slog.Warn("interrupted tasks marked failed", "count", orphans)
	}

	exec := executor.New()
	runner := pipeline.NewRunner(
		cfg,
		manager,
		downloader.New(cfg, exec),
		transcriber.New(cfg, exec),
		summarize.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel),
		summarize.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.SummarizeTimeout),
		exporter.ForFormats(cfg.ExportFormats),
	)

	coordinator := batch.NewCoordinator(cfg, manager, runner)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coordinator.Start(ctx)
	manager.StartCleanup(ctx)

	router := h.NewRouter(coordinator, slog.Default())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  cfg.HTTPTimeout,
	}

	go func() {
		slog.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		slog.Error("coordinator shutdown failed", "error", err)
	} else {
		slog.Info("stopped gracefully")
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medinsight/medinsight/internal/api"
	"github.com/medinsight/medinsight/internal/app"
	"github.com/medinsight/medinsight/internal/auth"
	"github.com/medinsight/medinsight/internal/config"
	"github.com/medinsight/medinsight/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("medinsight-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	application, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = application.Close() }()

	deps := api.Dependencies{
		Logger:           logger,
		QueryEngine:      application.Engine,
		Schema:           &application.Schema,
		Overview:         application.Insights,
		Readiness:        api.CombineReadinessChecks(application.Ready),
		DependencyTimout: 2 * time.Second,
	}
	// Interface fields stay nil when a component is disabled.
	if application.Agent != nil {
		deps.Answerer = application.Agent
	}
	if application.Archive != nil {
		deps.Artifacts = application.Archive
		deps.Maintenance = application.Maintenance
	}
	if application.Journal != nil {
		deps.Journal = application.Journal
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if application.Maintenance != nil && cfg.Maintenance.Enabled {
		go func() {
			if err := application.Maintenance.Run(ctx); err != nil {
				logger.Error("artifact maintenance stopped", slog.Any("error", err))
			}
		}()
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("database", cfg.Agent.DBPath),
			slog.Int("tables", len(application.Schema.Tables)),
			slog.Bool("answering", application.Agent != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ureshii/partner/internal/api"
	"github.com/ureshii/partner/internal/config"
	"github.com/ureshii/partner/internal/logger"
	"github.com/ureshii/partner/internal/pipeline"
	"github.com/ureshii/partner/internal/provider"
	"github.com/ureshii/partner/internal/queue"
	"github.com/ureshii/partner/internal/repository"
	"github.com/ureshii/partner/internal/service"
	"github.com/ureshii/partner/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLog := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		File:        cfg.Log.File,
		ServiceName: "ureshii-partner-api",
	})
	logger.SetDefault(appLog)
	defer logger.Sync()

	// Initialize database and job store
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}
	store := repository.NewJobRepository(db)

	// Static pipeline registry, built once
	registry := pipeline.NewRegistry(&cfg.Pipeline)

	completions := provider.NewClient(&provider.Config{
		BaseURL:  cfg.Provider.BaseURL,
		APIKey:   cfg.Provider.APIKey,
		SiteURL:  cfg.Provider.SiteURL,
		SiteName: cfg.Provider.SiteName,
		Timeout:  cfg.Provider.Timeout,
	})

	// Optional artifact archive
	var artifacts service.ArtifactArchiver
	var artifactStore *storage.ArtifactStore
	if cfg.Artifacts.Enabled {
		as, err := storage.NewArtifactStore(&storage.Config{
			Endpoint:  cfg.Artifacts.Endpoint,
			AccessKey: cfg.Artifacts.AccessKey,
			SecretKey: cfg.Artifacts.SecretKey,
			UseSSL:    cfg.Artifacts.UseSSL,
			Bucket:    cfg.Artifacts.Bucket,
			Region:    cfg.Artifacts.Region,
		})
		if err != nil {
			appLog.WithError(err).Fatal("Failed to initialize artifact store")
		}
		if err := as.EnsureBucket(context.Background()); err != nil {
			appLog.WithError(err).Fatal("Failed to ensure artifact bucket")
		}
		artifacts = as
		artifactStore = as
	}

	executor := service.NewExecutor(store, registry, completions, artifacts, &service.ExecutorConfig{
		MaxAttempts:  cfg.Pipeline.MaxAttempts,
		StageTimeout: cfg.Provider.Timeout,
	})

	// Queue backend, selected once at startup
	q, err := queue.New(&cfg.Queue, executor)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize queue backend")
	}
	defer q.Close()
	appLog.Infof("Queue backend: %s", cfg.Queue.Backend)

	dispatcher := service.NewDispatcher(store, registry, executor, q, &cfg.Pipeline)

	deps := &api.RouterDeps{
		Dispatcher: dispatcher,
		Executor:   executor,
		Store:      store,
		Queue:      q,
	}
	if artifactStore != nil {
		deps.Artifacts = artifactStore
	}
	router := api.SetupRouter(cfg, deps)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLog.Infof("Starting API server on port %d (mode=%s)", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Fatal("Server forced to shutdown")
	}

	appLog.Info("Server exited")
}

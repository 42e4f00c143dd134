package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ureshii/partner/internal/config"
	"github.com/ureshii/partner/internal/logger"
	"github.com/ureshii/partner/internal/pipeline"
	"github.com/ureshii/partner/internal/provider"
	"github.com/ureshii/partner/internal/queue"
	"github.com/ureshii/partner/internal/repository"
	"github.com/ureshii/partner/internal/service"
	"github.com/ureshii/partner/internal/storage"
	"github.com/ureshii/partner/internal/worker"
)

// The worker binary only makes sense against the Redis backend: inline
// execution happens in the API process and QStash pushes over HTTP.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		File:        cfg.Log.File,
		ServiceName: "ureshii-partner-worker",
	})
	logger.SetDefault(appLog)
	defer logger.Sync()

	if cfg.Queue.Backend != "redis" {
		appLog.Fatalf("Worker requires queue.backend=redis, got %q", cfg.Queue.Backend)
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}
	store := repository.NewJobRepository(db)

	registry := pipeline.NewRegistry(&cfg.Pipeline)

	completions := provider.NewClient(&provider.Config{
		BaseURL:  cfg.Provider.BaseURL,
		APIKey:   cfg.Provider.APIKey,
		SiteURL:  cfg.Provider.SiteURL,
		SiteName: cfg.Provider.SiteName,
		Timeout:  cfg.Provider.Timeout,
	})

	var artifacts service.ArtifactArchiver
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
	}

	executor := service.NewExecutor(store, registry, completions, artifacts, &service.ExecutorConfig{
		MaxAttempts:  cfg.Pipeline.MaxAttempts,
		StageTimeout: cfg.Provider.Timeout,
	})

	rq, err := queue.NewRedisQueue(&cfg.Queue.Redis)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer rq.Close()

	consumer := worker.NewConsumer(rq, executor, &worker.Config{
		Concurrency: cfg.Worker.Concurrency,
		PopTimeout:  cfg.Worker.PopTimeout,
	})

	ctx, cancel := context.WithCancel(appLog.WithContext(context.Background()))
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		appLog.Info("Shutting down worker...")
		cancel()
	}()

	appLog.Infof("Worker starting with %d consumers", cfg.Worker.Concurrency)
	if err := consumer.Run(ctx); err != nil {
		appLog.WithError(err).Fatal("Worker failed")
	}
	appLog.Info("Worker exited")
}

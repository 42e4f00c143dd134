package api

import (
	"github.com/gin-gonic/gin"
	"github.com/ureshii/partner/internal/api/handler"
	"github.com/ureshii/partner/internal/api/middleware"
	"github.com/ureshii/partner/internal/config"
	"github.com/ureshii/partner/internal/ratelimit"
	"github.com/ureshii/partner/internal/service"
)

// RouterDeps carries everything the router wires into handlers.
// Artifacts is nil when the artifact archive is disabled.
type RouterDeps struct {
	Dispatcher *service.Dispatcher
	Executor   *service.Executor
	Store      handler.Pinger
	Queue      handler.Pinger
	Artifacts  handler.ArtifactFetcher
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg *config.Config, deps *RouterDeps) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))
	r.Use(middleware.Identity())

	// Separate admission buckets per endpoint class
	createLimiter := ratelimit.New(cfg.RateLimit.Create.Capacity, cfg.RateLimit.Create.RefillRate)
	readLimiter := ratelimit.New(cfg.RateLimit.Read.Capacity, cfg.RateLimit.Read.RefillRate)

	// Create handlers
	jobHandler := handler.NewJobHandler(deps.Dispatcher)
	webhookHandler := handler.NewWebhookHandler(deps.Executor,
		cfg.Queue.QStash.CurrentSigningKey, cfg.Queue.QStash.NextSigningKey)
	healthHandler := handler.NewHealthHandler(deps.Store, deps.Queue)
	artifactHandler := handler.NewArtifactHandler(deps.Artifacts)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", middleware.RateLimit(createLimiter), middleware.CSRF(), jobHandler.CreateJob)
			jobs.GET("", middleware.RateLimit(readLimiter), jobHandler.ListJobs)
			jobs.GET("/:id", middleware.RateLimit(readLimiter), jobHandler.GetJob)
			jobs.GET("/:id/result", middleware.RateLimit(readLimiter), jobHandler.GetJobResult)
			jobs.GET("/:id/artifacts/:stage", middleware.RateLimit(readLimiter), artifactHandler.GetStageArtifact)
		}

		// Webhook authenticity is the signature check, not CSRF
		v1.POST("/webhooks/qstash", webhookHandler.HandlePush)
	}

	return r
}

package bootstrap

import (
	"log"
	"net/http"

	"github.com/postline/postline/internal/config"
	"github.com/postline/postline/internal/core"
	"github.com/postline/postline/internal/handlers"
	"github.com/postline/postline/internal/metrics"
	"github.com/postline/postline/internal/middleware"
	"github.com/postline/postline/internal/store"
	"github.com/postline/postline/internal/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	db *store.Store,
	accountHandler *handlers.AccountHandler,
	recorder core.Recorder,
	rateLimitRedisClient *redis.Client,
) *gin.Engine {
	setupGinMode(cfg)
	r := gin.New()

	// Setup middleware
	r.Use(metrics.HTTPMetricsMiddleware(recorder))
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(util.IPMiddleware())

	// Setup session middleware
	setupSessionMiddleware(r, cfg)

	// Health check endpoint
	r.GET("/health", createHealthCheckHandler(db))

	// Setup metrics endpoint
	setupMetricsEndpoint(r, cfg)

	// Setup rate limiting
	rateLimiters := setupRateLimiting(cfg, rateLimitRedisClient)

	// API routes
	api := r.Group("/api", middleware.RequireAuth())
	{
		accounts := api.Group("/accounts")
		accounts.GET("", accountHandler.List)
		accounts.GET("/platforms", accountHandler.Platforms)
		accounts.GET("/callback/:platform", rateLimiters.connect, accountHandler.Callback)
		accounts.POST("/:id/refresh", rateLimiters.refresh, accountHandler.Refresh)
		accounts.GET("/:id/health", rateLimiters.healthCheck, accountHandler.Health)
		accounts.DELETE("/:id", accountHandler.Disconnect)
	}

	logServerStartup(cfg)

	return r
}

// setupGinMode sets Gin to release mode in production
func setupGinMode(cfg *config.Config) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
}

// setupSessionMiddleware configures session handling middleware
func setupSessionMiddleware(r *gin.Engine, cfg *config.Config) {
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.IsProduction,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("postline_session", sessionStore))
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	if !cfg.EnableMetrics {
		log.Printf("Prometheus metrics disabled")
		return
	}
	log.Printf("Prometheus metrics enabled at /metrics")
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// createHealthCheckHandler returns the service health endpoint
func createHealthCheckHandler(db *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// logServerStartup logs the effective server configuration
func logServerStartup(cfg *config.Config) {
	log.Printf("Server listening on %s (production: %v)", cfg.ServerAddr, cfg.IsProduction)
	log.Printf("Base URL: %s", cfg.BaseURL)
}

package bootstrap

import (
	"log"

	"github.com/postline/postline/internal/config"
	"github.com/postline/postline/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// rateLimitMiddlewares holds rate limiting middlewares for different endpoints
type rateLimitMiddlewares struct {
	connect     gin.HandlerFunc
	refresh     gin.HandlerFunc
	healthCheck gin.HandlerFunc
}

// setupRateLimiting configures rate limiting middlewares based on configuration
// Accepts an optional go-redis client
func setupRateLimiting(cfg *config.Config, redisClient *redis.Client) rateLimitMiddlewares {
	// Return no-op middlewares when rate limiting is disabled
	noOpMiddleware := func(c *gin.Context) { c.Next() }
	if !cfg.EnableRateLimit {
		return rateLimitMiddlewares{
			connect:     noOpMiddleware,
			refresh:     noOpMiddleware,
			healthCheck: noOpMiddleware,
		}
	}
	return createRateLimiters(cfg, redisClient)
}

// createRateLimiters creates rate limiting middlewares for all endpoints
// Accepts an optional go-redis client
func createRateLimiters(cfg *config.Config, redisClient *redis.Client) rateLimitMiddlewares {
	log.Printf("Rate limiting enabled (store: %s)", cfg.RateLimitStore)

	storeType := middleware.RateLimitStoreType(cfg.RateLimitStore)

	if storeType == middleware.RateLimitStoreRedis {
		log.Printf("Using shared Redis client for rate limiting (provided externally)")
	} else {
		log.Printf("In-memory rate limiting configured (single instance only)")
	}

	createLimiter := func(requestsPerMinute int, endpoint string) gin.HandlerFunc {
		limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: requestsPerMinute,
			StoreType:         storeType,
			RedisClient:       redisClient, // Use provided client (nil for memory store)
			CleanupInterval:   cfg.RateLimitCleanupInterval,
		})
		if err != nil {
			log.Fatalf("Failed to create rate limiter for %s: %v", endpoint, err)
		}
		return limiter
	}

	return rateLimitMiddlewares{
		connect:     createLimiter(cfg.RefreshRateLimit, "/api/accounts/callback"),
		refresh:     createLimiter(cfg.RefreshRateLimit, "/api/accounts/:id/refresh"),
		healthCheck: createLimiter(cfg.HealthCheckRateLimit, "/api/accounts/:id/health"),
	}
}

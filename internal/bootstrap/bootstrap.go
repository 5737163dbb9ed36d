package bootstrap

import (
	"net/http"

	"github.com/postline/postline/internal/config"
	"github.com/postline/postline/internal/core"
	"github.com/postline/postline/internal/crypto"
	"github.com/postline/postline/internal/handlers"
	"github.com/postline/postline/internal/platform"
	"github.com/postline/postline/internal/services"
	"github.com/postline/postline/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB                   *store.Store
	Cipher               *crypto.Cipher
	Registry             *platform.Registry
	MetricsRecorder      core.Recorder
	RateLimitRedisClient *redis.Client

	// Services
	AuditService       *services.AuditService
	EntitlementService *services.EntitlementService
	ConnectionService  *services.ConnectionService

	// HTTP
	AccountHandler *handlers.AccountHandler
	Router         *gin.Engine
	Server         *http.Server
}

// Run initializes and starts the application
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}

	// Phase 1: Validate configuration
	validateAllConfiguration(cfg)

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(); err != nil {
		return err
	}

	// Phase 3: Initialize business layer
	app.initializeBusinessLayer()

	// Phase 4: Initialize HTTP layer
	app.initializeHTTPLayer()

	// Phase 5: Start server with graceful shutdown
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up database, cipher, adapters, metrics, Redis
func (app *Application) initializeInfrastructure() error {
	var err error

	// Database
	app.DB, err = initializeDatabase(app.Config)
	if err != nil {
		return err
	}

	// Token cipher
	app.Cipher, err = crypto.New(app.Config.TokenEncryptionKey)
	if err != nil {
		return err
	}

	// Platform adapter registry
	app.Registry, err = initializePlatformRegistry(app.Config)
	if err != nil {
		return err
	}

	// Metrics
	app.MetricsRecorder = initializeMetrics(app.Config)

	// Redis (for rate limiting)
	app.RateLimitRedisClient, err = initializeRateLimitRedisClient(app.Config)
	if err != nil {
		return err
	}

	return nil
}

// initializeBusinessLayer sets up services
func (app *Application) initializeBusinessLayer() {
	// Audit service (required by other services)
	app.AuditService = services.NewAuditService(
		app.DB,
		app.Config.EnableAuditLogging,
		app.Config.AuditLogBufferSize,
	)

	app.EntitlementService, app.ConnectionService = initializeServices(
		app.Config,
		app.DB,
		app.Cipher,
		app.Registry,
		app.AuditService,
		app.MetricsRecorder,
	)
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() {
	app.AccountHandler = handlers.NewAccountHandler(app.ConnectionService)

	app.Router = setupRouter(
		app.Config,
		app.DB,
		app.AccountHandler,
		app.MetricsRecorder,
		app.RateLimitRedisClient,
	)

	app.Server = createHTTPServer(app.Config, app.Router)
}

package bootstrap

import (
	"github.com/postline/postline/internal/cache"
	"github.com/postline/postline/internal/config"
	"github.com/postline/postline/internal/core"
	"github.com/postline/postline/internal/crypto"
	"github.com/postline/postline/internal/metrics"
	"github.com/postline/postline/internal/platform"
	"github.com/postline/postline/internal/services"
	"github.com/postline/postline/internal/store"
)

// initializeMetrics creates the metrics recorder
func initializeMetrics(cfg *config.Config) core.Recorder {
	return metrics.Init(cfg.EnableMetrics)
}

// initializeServices creates all business logic services
func initializeServices(
	cfg *config.Config,
	db *store.Store,
	cipher *crypto.Cipher,
	registry *platform.Registry,
	auditService *services.AuditService,
	recorder core.Recorder,
) (*services.EntitlementService, *services.ConnectionService) {
	entitlementService := services.NewEntitlementService(
		db,
		cache.NewMemoryCache[int](),
		cfg.FreePlanConnectionLimit,
	)

	connectionService := services.NewConnectionService(
		db,
		cipher,
		registry,
		entitlementService,
		auditService,
		recorder,
		cfg.TokenExpiryWarning,
	)

	return entitlementService, connectionService
}

package bootstrap

import (
	"fmt"

	"github.com/postline/postline/internal/config"
	"github.com/postline/postline/internal/store"
)

// initializeDatabase creates and initializes the database connection
func initializeDatabase(cfg *config.Config) (*store.Store, error) {
	db, err := store.NewWithOptions(cfg.DatabaseDriver, cfg.DatabaseDSN, store.Options{
		AdminPassword: cfg.DefaultAdminPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

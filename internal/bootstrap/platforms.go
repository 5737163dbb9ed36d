package bootstrap

import (
	"fmt"
	"log"

	"github.com/postline/postline/internal/config"
	"github.com/postline/postline/internal/platform"
)

// initializePlatformRegistry builds the adapter registry from configuration.
// Only platforms with a configured OAuth app are registered; the rest answer
// ErrUnsupportedPlatform at lookup time.
func initializePlatformRegistry(cfg *config.Config) (*platform.Registry, error) {
	var adapters []platform.Adapter

	for platformKey, creds := range cfg.PlatformsConfig {
		if creds.ClientID == "" {
			continue
		}
		adapter, err := platform.NewAdapter(platformKey, platform.Settings{
			ClientID:           creds.ClientID,
			ClientSecret:       creds.ClientSecret,
			RedirectURL:        creds.RedirectURL,
			Scopes:             creds.Scopes,
			Timeout:            cfg.PlatformTimeout,
			InsecureSkipVerify: cfg.OAuthInsecureSkipVerify,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build %s adapter: %w", platformKey, err)
		}
		adapters = append(adapters, adapter)
	}

	registry, err := platform.NewRegistry(adapters...)
	if err != nil {
		return nil, err
	}

	if platforms := registry.Platforms(); len(platforms) > 0 {
		log.Printf("Platform adapters registered: %v", platforms)
	} else {
		log.Printf("WARNING: no platform adapters configured; connect will always fail")
	}

	return registry, nil
}

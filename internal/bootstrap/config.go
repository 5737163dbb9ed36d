package bootstrap

import (
	"fmt"
	"log"

	"github.com/postline/postline/internal/config"
	"github.com/postline/postline/internal/crypto"
)

// validateAllConfiguration validates all configuration settings
func validateAllConfiguration(cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := validateEncryptionConfig(cfg); err != nil {
		log.Fatalf("Invalid encryption configuration: %v", err)
	}
	if err := validatePlatformConfig(cfg); err != nil {
		log.Fatalf("Invalid platform configuration: %v", err)
	}
}

// validateEncryptionConfig proves the token cipher can actually be built from
// the configured key. A service that cannot encrypt credentials must not
// start.
func validateEncryptionConfig(cfg *config.Config) error {
	if _, err := crypto.New(cfg.TokenEncryptionKey); err != nil {
		return fmt.Errorf("token cipher: %w", err)
	}
	return nil
}

// validatePlatformConfig checks that configured platforms are complete: a
// client ID without a secret is a half-configured OAuth app, not a disabled
// one.
func validatePlatformConfig(cfg *config.Config) error {
	for platformKey, creds := range cfg.PlatformsConfig {
		if creds.ClientID == "" {
			continue // platform disabled
		}
		if creds.ClientSecret == "" {
			return fmt.Errorf("platform %s has a client ID but no client secret", platformKey)
		}
		if creds.RedirectURL == "" {
			return fmt.Errorf("platform %s has no redirect URL", platformKey)
		}
	}
	return nil
}

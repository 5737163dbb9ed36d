package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Rate limit store constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// PlatformCredentials holds the OAuth app registration for one platform.
// A platform with an empty ClientID is treated as not configured and is not
// registered in the adapter registry.
type PlatformCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

type Config struct {
	// Server settings
	ServerAddr   string
	BaseURL      string
	IsProduction bool

	// Session settings
	SessionSecret string
	SessionMaxAge int // seconds

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// Token encryption
	// Either a 64-character hex key (32 bytes) or a passphrase that will be
	// stretched with PBKDF2. Required; validated at startup.
	TokenEncryptionKey string

	// Plan limits
	FreePlanConnectionLimit int

	// Platform adapter settings
	PlatformTimeout    time.Duration // outbound HTTP timeout per adapter call
	TokenExpiryWarning time.Duration // health check warns inside this window
	PlatformsConfig    map[string]PlatformCredentials

	DefaultAdminPassword    string // seed password for the first user; random when empty
	OAuthInsecureSkipVerify bool   // dev/testing only

	// Rate limiting
	EnableRateLimit          bool
	RateLimitStore           string // "memory" or "redis"
	RateLimitRedisAddr       string
	RateLimitRedisPassword   string
	RateLimitRedisDB         int
	RateLimitCleanupInterval time.Duration
	RefreshRateLimit         int // requests per minute per client
	HealthCheckRateLimit     int

	// Audit logging
	EnableAuditLogging bool
	AuditLogBufferSize int
	AuditLogRetention  time.Duration

	// Metrics
	EnableMetrics      bool
	MetricsRefreshRate time.Duration
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", "postline.db")
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		IsProduction: getEnvBool("PRODUCTION", false),

		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),
		SessionMaxAge: getEnvInt("SESSION_MAX_AGE", 86400*7),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),

		FreePlanConnectionLimit: getEnvInt("FREE_PLAN_CONNECTION_LIMIT", 2),

		PlatformTimeout:    getEnvDuration("PLATFORM_TIMEOUT", 15*time.Second),
		TokenExpiryWarning: getEnvDuration("TOKEN_EXPIRY_WARNING", 24*time.Hour),
		PlatformsConfig:    loadPlatformCredentials(),

		DefaultAdminPassword:    getEnv("DEFAULT_ADMIN_PASSWORD", ""),
		OAuthInsecureSkipVerify: getEnvBool("OAUTH_INSECURE_SKIP_VERIFY", false),

		EnableRateLimit:          getEnvBool("ENABLE_RATE_LIMIT", true),
		RateLimitStore:           getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),
		RateLimitRedisAddr:       getEnv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
		RateLimitRedisPassword:   getEnv("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:         getEnvInt("RATE_LIMIT_REDIS_DB", 0),
		RateLimitCleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		RefreshRateLimit:         getEnvInt("REFRESH_RATE_LIMIT", 10),
		HealthCheckRateLimit:     getEnvInt("HEALTH_CHECK_RATE_LIMIT", 30),

		EnableAuditLogging: getEnvBool("ENABLE_AUDIT_LOGGING", true),
		AuditLogBufferSize: getEnvInt("AUDIT_LOG_BUFFER_SIZE", 1000),
		AuditLogRetention:  getEnvDuration("AUDIT_LOG_RETENTION", 90*24*time.Hour),

		EnableMetrics:      getEnvBool("ENABLE_METRICS", true),
		MetricsRefreshRate: getEnvDuration("METRICS_REFRESH_RATE", 30*time.Second),
	}
}

// loadPlatformCredentials reads OAuth app credentials for every supported
// platform. YouTube rides on the Google OAuth app; TikTok uses a "client key"
// in place of a client id.
func loadPlatformCredentials() map[string]PlatformCredentials {
	baseURL := getEnv("BASE_URL", "http://localhost:8080")
	creds := map[string]PlatformCredentials{
		"instagram": {
			ClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
			ClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
			Scopes:       getEnvSlice("INSTAGRAM_SCOPES", []string{"user_profile", "user_media"}),
		},
		"twitter": {
			ClientID:     getEnv("TWITTER_CLIENT_ID", ""),
			ClientSecret: getEnv("TWITTER_CLIENT_SECRET", ""),
			Scopes: getEnvSlice("TWITTER_SCOPES", []string{
				"tweet.read", "tweet.write", "users.read", "offline.access",
			}),
		},
		"linkedin": {
			ClientID:     getEnv("LINKEDIN_CLIENT_ID", ""),
			ClientSecret: getEnv("LINKEDIN_CLIENT_SECRET", ""),
			Scopes:       getEnvSlice("LINKEDIN_SCOPES", []string{"r_liteprofile", "w_member_social"}),
		},
		"facebook": {
			ClientID:     getEnv("FACEBOOK_CLIENT_ID", ""),
			ClientSecret: getEnv("FACEBOOK_CLIENT_SECRET", ""),
			Scopes: getEnvSlice("FACEBOOK_SCOPES", []string{
				"pages_manage_posts", "pages_read_engagement",
			}),
		},
		"youtube": {
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			Scopes: getEnvSlice("YOUTUBE_SCOPES", []string{
				"https://www.googleapis.com/auth/youtube.upload",
				"https://www.googleapis.com/auth/youtube",
			}),
		},
		"tiktok": {
			ClientID:     getEnv("TIKTOK_CLIENT_KEY", ""),
			ClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
			Scopes:       getEnvSlice("TIKTOK_SCOPES", []string{"user.info.basic", "video.list"}),
		},
	}
	for platform, c := range creds {
		if c.RedirectURL == "" {
			c.RedirectURL = fmt.Sprintf("%s/api/accounts/callback/%s", baseURL, platform)
			creds[platform] = c
		}
	}
	return creds
}

// Validate checks settings that cannot be defaulted. A missing or malformed
// encryption key is a startup-time fatal misconfiguration, never a per-call
// error.
func (c *Config) Validate() error {
	if c.TokenEncryptionKey == "" {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY is required (64 hex characters recommended)")
	}
	if looksLikeHex(c.TokenEncryptionKey) && len(c.TokenEncryptionKey) != 64 {
		return fmt.Errorf(
			"TOKEN_ENCRYPTION_KEY looks like hex but is %d characters; a hex key must be exactly 64",
			len(c.TokenEncryptionKey),
		)
	}
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be: sqlite, postgres)", c.DatabaseDriver)
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required when DATABASE_DRIVER=postgres")
	}
	if c.RateLimitStore != RateLimitStoreMemory && c.RateLimitStore != RateLimitStoreRedis {
		return fmt.Errorf(
			"invalid RATE_LIMIT_STORE: %s (must be: memory, redis)", c.RateLimitStore,
		)
	}
	if c.FreePlanConnectionLimit < 0 {
		return fmt.Errorf("FREE_PLAN_CONNECTION_LIMIT must not be negative")
	}
	return nil
}

// EnabledPlatforms returns the platform keys that have OAuth credentials
// configured, i.e. the set the adapter registry will be built from.
func (c *Config) EnabledPlatforms() []string {
	var out []string
	for platform, creds := range c.PlatformsConfig {
		if creds.ClientID != "" {
			out = append(out, platform)
		}
	}
	return out
}

func looksLikeHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil && len(s)%2 == 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		if parts := splitAndTrim(value, ","); len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

package models

import (
	"time"
)

// Connection status values. A connection is either usable or needs the user
// to walk the OAuth flow again; there is no intermediate state.
const (
	StatusActive      = "active"
	StatusNeedsReauth = "needs_reauth"
)

// Connection links a user to one social account on one platform. Credential
// columns only ever hold ciphertext produced by the token cipher; plaintext
// tokens exist in memory only for the duration of the operation that needs
// them.
type Connection struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	UserID   string `gorm:"type:varchar(36);not null;uniqueIndex:idx_connections_user_platform"`
	Platform string `gorm:"type:varchar(32);not null;uniqueIndex:idx_connections_user_platform"`

	// Identity on the remote platform, captured at connect time.
	PlatformUserID string `gorm:"type:varchar(255)"`
	Username       string `gorm:"type:varchar(255)"`

	// Encrypted credential material, format hex(nonce):hex(tag):hex(data).
	// An empty EncryptedRefreshToken means the platform never issued one.
	EncryptedAccessToken  string `gorm:"type:text;not null"`
	EncryptedRefreshToken string `gorm:"type:text"`

	// Nil when the platform does not report an expiry.
	TokenExpiresAt *time.Time `gorm:"index"`

	Scopes string `gorm:"type:text"` // space-separated, as granted
	Status string `gorm:"type:varchar(20);not null;default:'active';index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName specifies the table name for GORM
func (Connection) TableName() string {
	return "connections"
}

// HasRefreshToken reports whether the platform issued a refresh credential
// at connect time.
func (c *Connection) HasRefreshToken() bool {
	return c.EncryptedRefreshToken != ""
}

// IsExpired reports whether the access token's recorded expiry has passed.
// Connections without a recorded expiry never report expired.
func (c *Connection) IsExpired(now time.Time) bool {
	return c.TokenExpiresAt != nil && now.After(*c.TokenExpiresAt)
}

// ExpiresWithin reports whether the token expires inside the given window.
// False when no expiry is recorded or the token is already expired.
func (c *Connection) ExpiresWithin(now time.Time, window time.Duration) bool {
	if c.TokenExpiresAt == nil || c.IsExpired(now) {
		return false
	}
	return c.TokenExpiresAt.Before(now.Add(window))
}

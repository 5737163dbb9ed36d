package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedPlatform is returned when a platform key has no
	// registered adapter, either because the platform does not exist or
	// because its OAuth app is not configured.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Grant is the result of exchanging an authorization code: fresh credentials
// plus the account identity they belong to. Tokens in a Grant are plaintext
// and must be encrypted before they leave the calling stack frame.
type Grant struct {
	AccessToken    string
	RefreshToken   string // empty when the platform issued none
	ExpiresIn      int64  // seconds; 0 means the platform reported no expiry
	PlatformUserID string
	Username       string
	Scopes         []string
}

// Credentials is the result of a refresh. RefreshToken is empty unless the
// platform rotated it, in which case the stored one must be replaced.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// ProbeResult reports whether an access token is currently accepted by the
// platform. Issue is set when OK is false. Metrics carries whatever account
// statistics the platform returned alongside the identity check.
type ProbeResult struct {
	OK      bool
	Issue   string
	Metrics map[string]float64
}

// Adapter is one platform's OAuth surface. Each implementation owns its
// platform's wire shape end to end; callers never see endpoint URLs, auth
// styles or response envelopes.
type Adapter interface {
	// Platform returns the registry key ("instagram", "twitter", ...).
	Platform() string

	// DisplayName returns the human-readable platform name.
	DisplayName() string

	// ExchangeCode trades a single-use authorization code for credentials
	// and the remote account identity. Codes must never be replayed, so
	// implementations do not retry.
	ExchangeCode(ctx context.Context, code string) (*Grant, error)

	// Refresh trades a refresh credential for a new access token.
	Refresh(ctx context.Context, refreshToken string) (*Credentials, error)

	// Probe asks the platform whether the access token is currently valid.
	// A rejected token is a ProbeResult with OK=false, not an error; errors
	// are reserved for transport failures where token validity is unknown.
	Probe(ctx context.Context, accessToken string) (*ProbeResult, error)
}

// Settings carries the per-platform OAuth app registration plus the shared
// HTTP knobs every adapter uses.
type Settings struct {
	ClientID           string
	ClientSecret       string
	RedirectURL        string
	Scopes             []string
	Timeout            time.Duration
	InsecureSkipVerify bool // dev/testing only
}

// APIError is a non-2xx response from a platform endpoint. The response body
// is summarized, never echoed verbatim, so token material can not leak
// through error strings.
type APIError struct {
	Platform   string
	Operation  string
	StatusCode int
	Remote     string // short remote error code when the platform sent one
}

func (e *APIError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("%s %s failed: status %d (%s)", e.Platform, e.Operation, e.StatusCode, e.Remote)
	}
	return fmt.Sprintf("%s %s failed: status %d", e.Platform, e.Operation, e.StatusCode)
}

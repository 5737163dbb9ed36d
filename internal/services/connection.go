package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/postline/postline/internal/core"
	"github.com/postline/postline/internal/crypto"
	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/platform"
	"github.com/postline/postline/internal/store"
)

// ConnectionService owns the social connection lifecycle: connect, refresh,
// health check and disconnect. Plaintext credentials exist only inside the
// method that needs them; everything that is stored or logged is ciphertext
// or credential-free.
type ConnectionService struct {
	store        *store.Store
	cipher       *crypto.Cipher
	registry     *platform.Registry
	entitlements *EntitlementService
	audit        *AuditService
	metrics      core.Recorder

	// Health checks warn when the token expires inside this window.
	expiryWarning time.Duration
}

func NewConnectionService(
	s *store.Store,
	cipher *crypto.Cipher,
	registry *platform.Registry,
	entitlements *EntitlementService,
	audit *AuditService,
	metrics core.Recorder,
	expiryWarning time.Duration,
) *ConnectionService {
	if expiryWarning <= 0 {
		expiryWarning = 24 * time.Hour
	}
	return &ConnectionService{
		store:         s,
		cipher:        cipher,
		registry:      registry,
		entitlements:  entitlements,
		audit:         audit,
		metrics:       metrics,
		expiryWarning: expiryWarning,
	}
}

// Platforms returns the platform keys a user can connect to.
func (s *ConnectionService) Platforms() []string {
	return s.registry.Platforms()
}

// Connect exchanges an authorization code and stores the resulting
// credentials, encrypted, as the user's connection for that platform. The
// plan limit is checked before the exchange so a rejected attempt never
// consumes the single-use code. Reconnecting an already-connected platform
// replaces the stored credentials and does not count against the limit.
func (s *ConnectionService) Connect(
	ctx context.Context, userID, platformKey, code string,
) (*models.Connection, error) {
	start := time.Now()

	adapter, err := s.registry.Lookup(platformKey)
	if err != nil {
		return nil, err
	}

	limit, err := s.entitlements.ConnectionLimit(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve connection limit: %w", err)
	}
	if limit > 0 {
		count, err := s.store.CountConnectionsByUserID(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to count connections: %w", err)
		}
		if count >= int64(limit) {
			// A reconnect reuses its slot.
			if _, err := s.store.GetConnectionByUserAndPlatform(userID, platformKey); err != nil {
				if errors.Is(err, store.ErrRecordNotFound) {
					s.metrics.RecordConnectionLimitHit(s.resolvedPlan(userID))
					return nil, ErrLimitReached
				}
				return nil, err
			}
		}
	}

	exchangeStart := time.Now()
	grant, err := adapter.ExchangeCode(ctx, code)
	s.metrics.RecordPlatformAPICall(platformKey, "exchange", time.Since(exchangeStart))
	if err != nil {
		s.metrics.RecordConnectionEstablished(platformKey, false, time.Since(start))
		return nil, fmt.Errorf("authorization code exchange failed: %w", err)
	}

	encryptedAccess, err := s.cipher.Encrypt(grant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	var encryptedRefresh string
	if grant.RefreshToken != "" {
		encryptedRefresh, err = s.cipher.Encrypt(grant.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	conn := &models.Connection{
		UserID:                userID,
		Platform:              platformKey,
		PlatformUserID:        grant.PlatformUserID,
		Username:              grant.Username,
		EncryptedAccessToken:  encryptedAccess,
		EncryptedRefreshToken: encryptedRefresh,
		TokenExpiresAt:        expiryFromNow(grant.ExpiresIn),
		Scopes:                strings.Join(grant.Scopes, " "),
		Status:                models.StatusActive,
	}
	if err := s.store.UpsertConnection(conn); err != nil {
		return nil, fmt.Errorf("failed to store connection: %w", err)
	}

	s.metrics.RecordConnectionEstablished(platformKey, true, time.Since(start))
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventConnectionConnected,
		Severity:     models.SeverityInfo,
		ActorUserID:  userID,
		ResourceType: models.ResourceConnection,
		ResourceID:   conn.ID,
		ResourceName: platformKey,
		Action:       "connection_connected",
		Details: models.AuditDetails{
			"platform": platformKey,
			"username": grant.Username,
		},
		Success: true,
	})

	return conn, nil
}

// Refresh exchanges the stored refresh credential for a new access token.
// A connection without a refresh credential is left untouched. Any adapter
// failure, rejection or unreachable platform alike, degrades the connection
// to needs_reauth instead of erroring opaquely.
func (s *ConnectionService) Refresh(
	ctx context.Context, userID, connectionID string,
) (*models.Connection, error) {
	start := time.Now()

	conn, err := s.authorizedConnection(userID, connectionID)
	if err != nil {
		return nil, err
	}

	adapter, err := s.registry.Lookup(conn.Platform)
	if err != nil {
		// A stored row for a platform this deployment no longer speaks.
		log.Printf("ERROR: connection %s references unregistered platform %q", conn.ID, conn.Platform)
		return nil, s.degrade(ctx, conn, "platform no longer configured")
	}

	if !conn.HasRefreshToken() {
		return nil, ErrNoRefreshToken
	}

	refreshToken, err := s.cipher.Decrypt(conn.EncryptedRefreshToken)
	if err != nil {
		// Undecryptable ciphertext is corruption or a key change, either
		// way the stored credential is unusable.
		log.Printf("ERROR: failed to decrypt refresh token for connection %s: %v", conn.ID, err)
		return nil, s.degrade(ctx, conn, "stored credential unreadable")
	}

	refreshStart := time.Now()
	creds, err := adapter.Refresh(ctx, refreshToken)
	s.metrics.RecordPlatformAPICall(conn.Platform, "refresh", time.Since(refreshStart))
	if err != nil {
		s.metrics.RecordTokenRefresh(conn.Platform, false, time.Since(start))
		// Any failed refresh attempt degrades the connection: a rejection
		// means the credential is dead, and an unreachable platform means it
		// cannot be trusted either. Re-authorization resolves both.
		reason := "platform unreachable during refresh"
		var apiErr *platform.APIError
		if errors.As(err, &apiErr) {
			reason = "refresh rejected by platform"
		} else {
			log.Printf("ERROR: token refresh for connection %s failed: %v", conn.ID, err)
		}
		return nil, s.degrade(ctx, conn, reason)
	}

	encryptedAccess, err := s.cipher.Encrypt(creds.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	var encryptedRefresh string
	if creds.RefreshToken != "" && creds.RefreshToken != refreshToken {
		// Platform rotated the refresh credential.
		encryptedRefresh, err = s.cipher.Encrypt(creds.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	expiresAt := expiryFromNow(creds.ExpiresIn)
	if err := s.store.UpdateConnectionCredentials(conn.ID, encryptedAccess, encryptedRefresh, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refreshed credentials: %w", err)
	}

	s.metrics.RecordTokenRefresh(conn.Platform, true, time.Since(start))
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventConnectionRefreshed,
		Severity:     models.SeverityInfo,
		ActorUserID:  userID,
		ResourceType: models.ResourceConnection,
		ResourceID:   conn.ID,
		ResourceName: conn.Platform,
		Action:       "connection_refreshed",
		Details:      models.AuditDetails{"platform": conn.Platform},
		Success:      true,
	})

	return s.store.GetConnectionByID(conn.ID)
}

// Disconnect removes the connection and its stored credentials.
func (s *ConnectionService) Disconnect(ctx context.Context, userID, connectionID string) error {
	conn, err := s.authorizedConnection(userID, connectionID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteConnection(conn.ID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.metrics.RecordConnectionDisconnected(conn.Platform)
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventConnectionDisconnected,
		Severity:     models.SeverityInfo,
		ActorUserID:  userID,
		ResourceType: models.ResourceConnection,
		ResourceID:   conn.ID,
		ResourceName: conn.Platform,
		Action:       "connection_disconnected",
		Details:      models.AuditDetails{"platform": conn.Platform},
		Success:      true,
	})

	return nil
}

// ListConnections returns all of the user's connections, oldest first.
func (s *ConnectionService) ListConnections(ctx context.Context, userID string) ([]models.Connection, error) {
	return s.store.GetConnectionsByUserID(userID)
}

// GetConnection returns one connection after an ownership check.
func (s *ConnectionService) GetConnection(ctx context.Context, userID, connectionID string) (*models.Connection, error) {
	return s.authorizedConnection(userID, connectionID)
}

// authorizedConnection loads a connection and enforces ownership. Forbidden
// is deliberately distinct from not-found: the row exists, the caller just
// does not own it.
func (s *ConnectionService) authorizedConnection(userID, connectionID string) (*models.Connection, error) {
	conn, err := s.store.GetConnectionByID(connectionID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if conn.UserID != userID {
		return nil, ErrForbidden
	}
	return conn, nil
}

// degrade marks a connection needs_reauth, audits it, and returns
// ErrReauthRequired. The status write is skipped when already degraded.
func (s *ConnectionService) degrade(ctx context.Context, conn *models.Connection, reason string) error {
	if conn.Status != models.StatusNeedsReauth {
		if err := s.store.UpdateConnectionStatus(conn.ID, models.StatusNeedsReauth); err != nil {
			log.Printf("ERROR: failed to degrade connection %s: %v", conn.ID, err)
		}
		s.metrics.RecordReauthRequired(conn.Platform, reason)
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventConnectionReauthNeeded,
			Severity:     models.SeverityWarning,
			ActorUserID:  conn.UserID,
			ResourceType: models.ResourceConnection,
			ResourceID:   conn.ID,
			ResourceName: conn.Platform,
			Action:       "connection_reauth_required",
			Details:      models.AuditDetails{"platform": conn.Platform, "reason": reason},
			Success:      false,
			ErrorMessage: reason,
		})
	}
	return ErrReauthRequired
}

// resolvedPlan names the plan behind a limit decision. A missing user row is
// free tier, same as the entitlement lookup treats it.
func (s *ConnectionService) resolvedPlan(userID string) string {
	user, err := s.store.GetUserByID(userID)
	if err != nil || user.Plan == "" {
		return models.PlanFree
	}
	return user.Plan
}

// expiryFromNow converts a platform-reported lifetime to an absolute expiry.
// 0 means the platform reported none.
func expiryFromNow(expiresIn int64) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	t := time.Now().Add(time.Duration(expiresIn) * time.Second)
	return &t
}

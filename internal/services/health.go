package services

import (
	"context"
	"log"
	"time"

	"github.com/postline/postline/internal/models"
)

// HealthReport is the outcome of one connection health check. Healthy and
// Issue are mutually exclusive; Warning can accompany a healthy result when
// the token is close to expiry. Issue is a stable machine code, IssueDetail
// carries whatever platform-specific detail accompanied the failure.
type HealthReport struct {
	ConnectionID string             `json:"connection_id"`
	Platform     string             `json:"platform"`
	Healthy      bool               `json:"healthy"`
	Status       string             `json:"status"` // connection status after the check
	Issue        string             `json:"issue,omitempty"`
	IssueDetail  string             `json:"issue_detail,omitempty"`
	Warning      string             `json:"warning,omitempty"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	CheckedAt    time.Time          `json:"checked_at"`
}

// Health check issue strings, stable for API consumers.
const (
	issueTokenExpired   = "token_expired"
	issueReauthRequired = "reauthorize_required"
	issueUnreachable    = "platform_unreachable"
	warningExpiresSoon  = "token_expires_soon"
)

// HealthCheck evaluates whether a connection's stored credential still works.
// A recorded expiry in the past short-circuits the check without touching the
// platform. Otherwise the platform is probed once; a rejected token degrades
// the connection and a passing probe heals a previously degraded one. Status
// writes only happen on transitions, so repeated checks of a steady
// connection are read-only.
func (s *ConnectionService) HealthCheck(
	ctx context.Context, userID, connectionID string,
) (*HealthReport, error) {
	start := time.Now()

	conn, err := s.authorizedConnection(userID, connectionID)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{
		ConnectionID: conn.ID,
		Platform:     conn.Platform,
		Status:       conn.Status,
		ExpiresAt:    conn.TokenExpiresAt,
		CheckedAt:    start,
	}

	// Expired tokens are known-dead; probing would waste a platform call.
	if conn.IsExpired(start) {
		report.Healthy = false
		report.Issue = issueTokenExpired
		if conn.Status != models.StatusNeedsReauth {
			_ = s.degrade(ctx, conn, "access token expired")
			report.Status = models.StatusNeedsReauth
		}
		s.finishHealthCheck(ctx, conn, report, start)
		return report, nil
	}

	adapter, err := s.registry.Lookup(conn.Platform)
	if err != nil {
		log.Printf("ERROR: connection %s references unregistered platform %q", conn.ID, conn.Platform)
		return nil, s.degrade(ctx, conn, "platform no longer configured")
	}

	accessToken, err := s.cipher.Decrypt(conn.EncryptedAccessToken)
	if err != nil {
		log.Printf("ERROR: failed to decrypt access token for connection %s: %v", conn.ID, err)
		return nil, s.degrade(ctx, conn, "stored credential unreadable")
	}

	probeStart := time.Now()
	probe, err := adapter.Probe(ctx, accessToken)
	s.metrics.RecordPlatformAPICall(conn.Platform, "probe", time.Since(probeStart))
	if err != nil {
		// Probe failures are data, not errors: a platform that cannot be
		// reached cannot vouch for the credential.
		log.Printf("ERROR: health probe for connection %s failed: %v", conn.ID, err)
		report.Healthy = false
		report.Issue = issueUnreachable
		report.IssueDetail = "platform API connectivity check failed"
		if conn.Status != models.StatusNeedsReauth {
			_ = s.degrade(ctx, conn, "platform unreachable during health check")
			report.Status = models.StatusNeedsReauth
		}
		s.finishHealthCheck(ctx, conn, report, start)
		return report, nil
	}

	if !probe.OK {
		report.Healthy = false
		report.Issue = issueReauthRequired
		report.IssueDetail = probe.Issue
		if conn.Status != models.StatusNeedsReauth {
			_ = s.degrade(ctx, conn, probe.Issue)
			report.Status = models.StatusNeedsReauth
		}
		s.finishHealthCheck(ctx, conn, report, start)
		return report, nil
	}

	report.Healthy = true
	report.Metrics = probe.Metrics
	if conn.ExpiresWithin(start, s.expiryWarning) {
		report.Warning = warningExpiresSoon
	}

	// Self-healing: a degraded connection whose token probes fine goes
	// back to active.
	if conn.Status == models.StatusNeedsReauth {
		if err := s.store.UpdateConnectionStatus(conn.ID, models.StatusActive); err != nil {
			log.Printf("ERROR: failed to restore connection %s: %v", conn.ID, err)
		} else {
			report.Status = models.StatusActive
		}
	}

	s.finishHealthCheck(ctx, conn, report, start)
	return report, nil
}

func (s *ConnectionService) finishHealthCheck(
	ctx context.Context, conn *models.Connection, report *HealthReport, start time.Time,
) {
	result := "healthy"
	if !report.Healthy {
		result = "unhealthy"
	}
	s.metrics.RecordHealthCheck(conn.Platform, result, time.Since(start))
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventConnectionHealthChecked,
		Severity:     models.SeverityInfo,
		ActorUserID:  conn.UserID,
		ResourceType: models.ResourceConnection,
		ResourceID:   conn.ID,
		ResourceName: conn.Platform,
		Action:       "connection_health_checked",
		Details: models.AuditDetails{
			"platform": conn.Platform,
			"healthy":  report.Healthy,
			"issue":    report.Issue,
		},
		Success: report.Healthy,
	})
}

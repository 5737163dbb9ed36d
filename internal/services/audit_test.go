package services

import (
	"context"
	"testing"
	"time"

	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuditFixture(t *testing.T) (*AuditService, *store.Store) {
	t.Helper()
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	svc := NewAuditService(s, true, 10)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, s
}

func TestMaskSensitiveDetails(t *testing.T) {
	details := models.AuditDetails{
		"platform":      "twitter",
		"access_token":  "ya29.supersecret",
		"refresh_token": "1//refreshsecret",
		"client_secret": "app-secret",
		"code":          "auth-code-123",
		"password":      "hunter2",
		"username":      "birduser",
	}

	masked := maskSensitiveDetails(details)

	// Credential material is fully redacted, never partially shown
	assert.Equal(t, "***REDACTED***", masked["access_token"])
	assert.Equal(t, "***REDACTED***", masked["refresh_token"])
	assert.Equal(t, "***REDACTED***", masked["client_secret"])
	assert.Equal(t, "***REDACTED***", masked["code"])
	assert.Equal(t, "***REDACTED***", masked["password"])

	// Non-sensitive fields pass through
	assert.Equal(t, "twitter", masked["platform"])
	assert.Equal(t, "birduser", masked["username"])

	// Input map is not mutated
	assert.Equal(t, "ya29.supersecret", details["access_token"])
}

func TestMaskSensitiveDetails_Nil(t *testing.T) {
	assert.Nil(t, maskSensitiveDetails(nil))
}

func TestLogSync_RedactsDetails(t *testing.T) {
	svc, s := newAuditFixture(t)
	connectionID := uuid.New().String()

	err := svc.LogSync(context.Background(), AuditLogEntry{
		EventType:    models.EventConnectionConnected,
		Severity:     models.SeverityInfo,
		ActorUserID:  uuid.New().String(),
		ResourceType: models.ResourceConnection,
		ResourceID:   connectionID,
		ResourceName: "twitter",
		Action:       "connection_connected",
		Details: models.AuditDetails{
			"platform":     "twitter",
			"access_token": "plaintext-token",
		},
		Success: true,
	})
	require.NoError(t, err)

	logs, err := s.GetAuditLogsByResource(models.ResourceConnection, connectionID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "***REDACTED***", logs[0].Details["access_token"])
	assert.Equal(t, "twitter", logs[0].Details["platform"])
}

func TestLog_AsyncFlush(t *testing.T) {
	svc, s := newAuditFixture(t)
	connectionID := uuid.New().String()

	svc.Log(context.Background(), AuditLogEntry{
		EventType:    models.EventConnectionRefreshed,
		Severity:     models.SeverityInfo,
		ResourceType: models.ResourceConnection,
		ResourceID:   connectionID,
		Action:       "connection_refreshed",
		Success:      true,
	})

	// The worker flushes on a one second ticker
	require.Eventually(t, func() bool {
		logs, err := s.GetAuditLogsByResource(models.ResourceConnection, connectionID, 10)
		return err == nil && len(logs) == 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestLog_DisabledServiceIsNoop(t *testing.T) {
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	svc := NewAuditService(s, false, 0)
	connectionID := uuid.New().String()

	svc.Log(context.Background(), AuditLogEntry{
		EventType:    models.EventConnectionConnected,
		ResourceType: models.ResourceConnection,
		ResourceID:   connectionID,
		Action:       "connection_connected",
	})
	require.NoError(t, svc.LogSync(context.Background(), AuditLogEntry{
		EventType:    models.EventConnectionConnected,
		ResourceType: models.ResourceConnection,
		ResourceID:   connectionID,
		Action:       "connection_connected",
	}))

	logs, err := s.GetAuditLogsByResource(models.ResourceConnection, connectionID, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestLog_FullBufferDropsSilently(t *testing.T) {
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	svc := NewAuditService(s, true, 2)
	// Stop the worker so nothing drains the channel
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	// More events than the buffer holds; Log must never block
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			svc.Log(context.Background(), AuditLogEntry{
				EventType:    models.EventConnectionRefreshed,
				ResourceType: models.ResourceConnection,
				ResourceID:   uuid.New().String(),
				Action:       "connection_refreshed",
			})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Log blocked on a full buffer")
	}
}

func TestCleanupOldLogs(t *testing.T) {
	svc, s := newAuditFixture(t)

	old := &models.AuditLog{
		ID:           uuid.New().String(),
		EventType:    models.EventConnectionConnected,
		EventTime:    time.Now().Add(-100 * 24 * time.Hour),
		Severity:     models.SeverityInfo,
		ResourceType: models.ResourceConnection,
		ResourceID:   uuid.New().String(),
		Action:       "connection_connected",
		Success:      true,
		CreatedAt:    time.Now().Add(-100 * 24 * time.Hour),
	}
	require.NoError(t, s.CreateAuditLog(old))

	deleted, err := svc.CleanupOldLogs(90 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

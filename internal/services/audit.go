package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/postline/postline/internal/models"
	"github.com/postline/postline/internal/store"
	"github.com/postline/postline/internal/util"

	"github.com/google/uuid"
)

// AuditLogEntry represents the data needed to create an audit log entry
type AuditLogEntry struct {
	EventType    models.EventType
	Severity     models.EventSeverity
	ActorUserID  string
	ActorIP      string
	ResourceType models.ResourceType
	ResourceID   string
	ResourceName string
	Action       string
	Details      models.AuditDetails
	Success      bool
	ErrorMessage string
}

// AuditService handles audit logging operations. Logging is fire-and-forget:
// a full buffer drops the event rather than blocking a lifecycle operation.
type AuditService struct {
	store      *store.Store
	enabled    bool
	bufferSize int

	// Async logging channel
	logChan chan *models.AuditLog

	// Batch buffer
	batchBuffer []*models.AuditLog
	batchMutex  sync.Mutex
	batchTicker *time.Ticker

	// Graceful shutdown
	wg         sync.WaitGroup
	shutdownCh chan struct{}
}

// NewAuditService creates a new audit service
func NewAuditService(s *store.Store, enabled bool, bufferSize int) *AuditService {
	if bufferSize <= 0 {
		bufferSize = 1000 // Default buffer size
	}

	service := &AuditService{
		store:       s,
		enabled:     enabled,
		bufferSize:  bufferSize,
		logChan:     make(chan *models.AuditLog, bufferSize),
		batchBuffer: make([]*models.AuditLog, 0, 100),
		batchTicker: time.NewTicker(1 * time.Second),
		shutdownCh:  make(chan struct{}),
	}

	if enabled {
		service.wg.Add(1)
		go service.worker()
		log.Printf("Audit service started with buffer size %d", bufferSize)
	} else {
		log.Println("Audit service is disabled")
	}

	return service
}

// worker is the background goroutine that processes audit logs
func (s *AuditService) worker() {
	defer s.wg.Done()

	for {
		select {
		case entry := <-s.logChan:
			s.addToBatch(entry)

		case <-s.batchTicker.C:
			// Flush batch every second
			s.flushBatch()

		case <-s.shutdownCh:
			// Flush remaining logs before shutdown
			s.drainChannel()
			s.flushBatch()
			return
		}
	}
}

// drainChannel moves any queued entries into the batch buffer
func (s *AuditService) drainChannel() {
	for {
		select {
		case entry := <-s.logChan:
			s.addToBatch(entry)
		default:
			return
		}
	}
}

// addToBatch adds a log entry to the batch buffer
func (s *AuditService) addToBatch(entry *models.AuditLog) {
	s.batchMutex.Lock()
	defer s.batchMutex.Unlock()

	s.batchBuffer = append(s.batchBuffer, entry)

	// Flush if batch is full (100 entries)
	if len(s.batchBuffer) >= 100 {
		s.flushBatchUnsafe()
	}
}

// flushBatch flushes the batch buffer to the database (thread-safe)
func (s *AuditService) flushBatch() {
	s.batchMutex.Lock()
	defer s.batchMutex.Unlock()
	s.flushBatchUnsafe()
}

// flushBatchUnsafe flushes the batch buffer without locking (caller must hold lock)
func (s *AuditService) flushBatchUnsafe() {
	if len(s.batchBuffer) == 0 {
		return
	}

	// Copy buffer for writing
	toWrite := make([]*models.AuditLog, len(s.batchBuffer))
	copy(toWrite, s.batchBuffer)

	// Clear buffer
	s.batchBuffer = s.batchBuffer[:0]

	if err := s.store.CreateAuditLogBatch(toWrite); err != nil {
		log.Printf("Failed to write audit log batch: %v", err)
	}
}

// Log records an audit log entry asynchronously
func (s *AuditService) Log(ctx context.Context, entry AuditLogEntry) {
	if !s.enabled {
		return
	}

	// Extract actor details from context if not provided
	if entry.ActorIP == "" {
		entry.ActorIP = util.GetIPFromContext(ctx)
	}
	if entry.ActorUserID == "" {
		entry.ActorUserID = util.GetUserIDFromContext(ctx)
	}

	// Mask sensitive data
	entry.Details = maskSensitiveDetails(entry.Details)

	auditLog := s.buildLog(entry)

	// Try to send to channel (non-blocking)
	select {
	case s.logChan <- auditLog:
		// Successfully sent
	default:
		// Channel is full, drop the event and log warning
		log.Printf("WARNING: Audit log buffer full, dropping event: %s", entry.Action)
	}
}

// LogSync records an audit log entry synchronously (for critical events)
func (s *AuditService) LogSync(ctx context.Context, entry AuditLogEntry) error {
	if !s.enabled {
		return nil
	}

	if entry.ActorIP == "" {
		entry.ActorIP = util.GetIPFromContext(ctx)
	}
	if entry.ActorUserID == "" {
		entry.ActorUserID = util.GetUserIDFromContext(ctx)
	}

	entry.Details = maskSensitiveDetails(entry.Details)

	// Write directly to database
	return s.store.CreateAuditLog(s.buildLog(entry))
}

func (s *AuditService) buildLog(entry AuditLogEntry) *models.AuditLog {
	return &models.AuditLog{
		ID:           uuid.New().String(),
		EventType:    entry.EventType,
		EventTime:    time.Now(),
		Severity:     entry.Severity,
		ActorUserID:  entry.ActorUserID,
		ActorIP:      entry.ActorIP,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		ResourceName: entry.ResourceName,
		Action:       entry.Action,
		Details:      entry.Details,
		Success:      entry.Success,
		ErrorMessage: entry.ErrorMessage,
		CreatedAt:    time.Now(),
	}
}

// GetLogsForConnection returns recent audit entries for one connection.
func (s *AuditService) GetLogsForConnection(connectionID string, limit int) ([]models.AuditLog, error) {
	return s.store.GetAuditLogsByResource(models.ResourceConnection, connectionID, limit)
}

// CleanupOldLogs deletes audit logs older than the retention period
func (s *AuditService) CleanupOldLogs(retention time.Duration) (int64, error) {
	cutoffTime := time.Now().Add(-retention)
	return s.store.DeleteOldAuditLogs(cutoffTime)
}

// Shutdown gracefully shuts down the audit service
func (s *AuditService) Shutdown(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	close(s.shutdownCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.batchTicker.Stop()
		log.Println("Audit service shut down cleanly")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit service shutdown timed out: %w", ctx.Err())
	}
}

// maskSensitiveDetails masks sensitive information in audit log details.
// Credential material is fully redacted, never partially shown.
func maskSensitiveDetails(details models.AuditDetails) models.AuditDetails {
	if details == nil {
		return details
	}

	masked := make(models.AuditDetails)
	for key, value := range details {
		if isSensitiveField(key) {
			masked[key] = "***REDACTED***"
			continue
		}
		masked[key] = value
	}

	return masked
}

func isSensitiveField(key string) bool {
	key = strings.ToLower(key)
	sensitiveFields := []string{
		"password",
		"client_secret",
		"token",
		"secret",
		"code",
		"credential",
	}

	for _, field := range sensitiveFields {
		if strings.Contains(key, field) {
			return true
		}
	}
	return false
}

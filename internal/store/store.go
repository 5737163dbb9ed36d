package store

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/postline/postline/internal/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

// Options tunes seeding behavior. Zero value is production defaults.
type Options struct {
	// AdminPassword seeds the first user with a known password. Empty means
	// a random password is generated and printed once at startup.
	AdminPassword string
}

func New(driver, dsn string) (*Store, error) {
	return NewWithOptions(driver, dsn, Options{})
}

func NewWithOptions(driver, dsn string, opts Options) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.User{},
		&models.Connection{},
		&models.AuditLog{},
	); err != nil {
		return nil, err
	}

	store := &Store{db: db}

	// Seed default data
	if err := store.seedData(opts); err != nil {
		log.Printf("Warning: failed to seed data: %v", err)
	}

	return store, nil
}

// generateRandomPassword generates a random password of specified length
func generateRandomPassword(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	// Use base64 URL encoding to get a safe, printable password
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}

func (s *Store) seedData(opts Options) error {
	// Create default user if not exists
	var userCount int64
	s.db.Model(&models.User{}).Count(&userCount)
	if userCount == 0 {
		password := opts.AdminPassword
		if password == "" {
			generated, err := generateRandomPassword(16)
			if err != nil {
				return err
			}
			password = generated
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user := &models.User{
			ID:           uuid.New().String(),
			Username:     "admin",
			Email:        "admin@localhost",
			PasswordHash: string(hash),
			Plan:         models.PlanFree,
		}
		if err := s.db.Create(user).Error; err != nil {
			return err
		}
		if opts.AdminPassword == "" {
			log.Printf("Created default user: admin / %s (plan: free)", password)
		} else {
			log.Printf("Created default user: admin (plan: free)")
		}
	}

	return nil
}

// User operations

func (s *Store) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	return s.db.Create(user).Error
}

// UpdateUserPlan changes a user's plan. Callers are expected to invalidate
// the cached entitlement afterwards.
func (s *Store) UpdateUserPlan(id, plan string) error {
	result := s.db.Model(&models.User{}).Where("id = ?", id).Update("plan", plan)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Connection operations

// UpsertConnection inserts a connection or, if the user already has one for
// the same platform, overwrites its credentials and identity in place. The
// (user_id, platform) unique index makes the storage layer the enforcer of
// one-connection-per-platform, so two racing connects converge on a single
// row with the last writer's credentials.
func (s *Store) UpsertConnection(conn *models.Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "platform"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"platform_user_id", "username",
			"encrypted_access_token", "encrypted_refresh_token",
			"token_expires_at", "scopes", "status", "updated_at",
		}),
	}).Create(conn).Error
}

func (s *Store) GetConnectionByID(id string) (*models.Connection, error) {
	var conn models.Connection
	if err := s.db.Where("id = ?", id).First(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &conn, nil
}

func (s *Store) GetConnectionByUserAndPlatform(userID, platform string) (*models.Connection, error) {
	var conn models.Connection
	err := s.db.Where("user_id = ? AND platform = ?", userID, platform).First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &conn, nil
}

// GetConnectionsByUserID returns all connections for a user, oldest first.
func (s *Store) GetConnectionsByUserID(userID string) ([]models.Connection, error) {
	var conns []models.Connection
	err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&conns).Error
	if err != nil {
		return nil, err
	}
	return conns, nil
}

func (s *Store) CountConnectionsByUserID(userID string) (int64, error) {
	var count int64
	err := s.db.Model(&models.Connection{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// CountConnectionsByStatus returns the number of connections in each status,
// used for the active-connections metrics refresh job.
func (s *Store) CountConnectionsByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.Model(&models.Connection{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// UpdateConnectionStatus sets only the status column. Used for degradation
// to needs_reauth and for healing back to active; never touches credentials.
func (s *Store) UpdateConnectionStatus(id, status string) error {
	result := s.db.Model(&models.Connection{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// UpdateConnectionCredentials replaces the stored credential material after a
// successful refresh. A nil expiresAt clears the recorded expiry. The refresh
// token column is only overwritten when the platform rotated it.
func (s *Store) UpdateConnectionCredentials(
	id, encryptedAccessToken, encryptedRefreshToken string,
	expiresAt *time.Time,
) error {
	updates := map[string]any{
		"encrypted_access_token": encryptedAccessToken,
		"token_expires_at":       expiresAt,
		"status":                 models.StatusActive,
	}
	if encryptedRefreshToken != "" {
		updates["encrypted_refresh_token"] = encryptedRefreshToken
	}
	result := s.db.Model(&models.Connection{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *Store) DeleteConnection(id string) error {
	result := s.db.Delete(&models.Connection{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Audit log operations

func (s *Store) CreateAuditLog(auditLog *models.AuditLog) error {
	return s.db.Create(auditLog).Error
}

func (s *Store) CreateAuditLogBatch(logs []*models.AuditLog) error {
	if len(logs) == 0 {
		return nil
	}
	return s.db.Create(logs).Error
}

// DeleteOldAuditLogs removes audit entries older than the cutoff and returns
// the number of rows deleted.
func (s *Store) DeleteOldAuditLogs(cutoff time.Time) (int64, error) {
	result := s.db.Where("event_time < ?", cutoff).Delete(&models.AuditLog{})
	return result.RowsAffected, result.Error
}

// GetAuditLogsByResource returns audit entries for one resource, newest
// first, capped at limit.
func (s *Store) GetAuditLogsByResource(
	resourceType models.ResourceType, resourceID string, limit int,
) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.AuditLog
	err := s.db.Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("event_time DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access underlying database: %w", err)
	}
	return sqlDB.Close()
}

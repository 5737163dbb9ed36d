package models

import (
	"time"
)

// Plan values. Anything other than PlanFree is treated as unmetered for
// connection limits.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

type User struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string
	Plan         string `gorm:"not null;default:'free'"` // "free" or "pro"

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFreePlan returns true if the user is on the metered free plan.
func (u *User) IsFreePlan() bool {
	return u.Plan == PlanFree || u.Plan == ""
}

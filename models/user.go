package models

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User represents a farmer or trader consuming recommendations
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	FullName     string     `json:"full_name"`
	Phone        string     `json:"phone"`
	Region       string     `json:"region"`
	Role         string     `gorm:"default:'user'" json:"role"` // user, admin
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SetPassword hashes and stores the given plaintext password
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies a plaintext password against the stored hash
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Alert type constants for price alerts
const (
	AlertTypePriceAbove    = "price_above"
	AlertTypePriceBelow    = "price_below"
	AlertTypePercentChange = "percent_change"
)

// PriceAlert represents a user-configured price alert on a commodity
type PriceAlert struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      uint            `gorm:"index" json:"user_id"`
	User        User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Commodity   string          `gorm:"index;not null" json:"commodity"`
	Market      string          `json:"market"`
	AlertType   string          `json:"alert_type"` // price_above, price_below, percent_change
	TargetValue decimal.Decimal `gorm:"type:decimal(15,4)" json:"target_value"`
	IsTriggered bool            `gorm:"default:false" json:"is_triggered"`
	IsActive    bool            `gorm:"default:true" json:"is_active"`
	TriggeredAt *time.Time      `json:"triggered_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ValidAlertTypes returns valid price alert types
func ValidAlertTypes() []string {
	return []string{AlertTypePriceAbove, AlertTypePriceBelow, AlertTypePercentChange}
}

// IsValidAlertType checks if the alert type is valid
func IsValidAlertType(alertType string) bool {
	for _, valid := range ValidAlertTypes() {
		if alertType == valid {
			return true
		}
	}
	return false
}

// MigrateUserModels runs database migrations for user-related models
func MigrateUserModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&PriceAlert{},
	)
}

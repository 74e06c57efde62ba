package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Recommendation type constants
const (
	RecommendationBuy  = "BUY"
	RecommendationSell = "SELL"
	RecommendationHold = "HOLD"
)

// Confidence tier constants
const (
	ConfidenceLow    = "LOW"
	ConfidenceMedium = "MEDIUM"
	ConfidenceHigh   = "HIGH"
)

// Time horizon constants
const (
	HorizonShort  = "SHORT"
	HorizonMedium = "MEDIUM"
	HorizonLong   = "LONG"
)

// Status constants. EXPIRED and EVALUATED are terminal.
const (
	StatusActive    = "ACTIVE"
	StatusExpired   = "EXPIRED"
	StatusEvaluated = "EVALUATED"
)

// Outcome constants. Empty string means no outcome has been recorded yet.
const (
	OutcomeCorrect   = "CORRECT"
	OutcomeIncorrect = "INCORRECT"
	OutcomePartial   = "PARTIAL"
	OutcomeUnknown   = "UNKNOWN"
)

// Recommendation represents a persisted trade signal for a commodity/market,
// carried through its lifecycle from creation to outcome evaluation.
type Recommendation struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"index:idx_user_commodity_market;not null" json:"user_id"`

	Commodity string `gorm:"index:idx_user_commodity_market;not null" json:"commodity"`
	Market    string `gorm:"index:idx_user_commodity_market" json:"market"`

	Type       string `gorm:"not null" json:"type"`       // BUY, SELL, HOLD
	Confidence string `gorm:"not null" json:"confidence"` // LOW, MEDIUM, HIGH
	Reasoning  string `json:"reasoning"`
	Horizon    string `gorm:"not null" json:"horizon"` // SHORT, MEDIUM, LONG

	// Pricing snapshot at issuance. Nil for pure HOLD recommendations.
	CurrentPrice      *decimal.Decimal `gorm:"type:decimal(15,4)" json:"current_price"`
	TargetPrice       *decimal.Decimal `gorm:"type:decimal(15,4)" json:"target_price"`
	ExpectedChangePct *decimal.Decimal `gorm:"type:decimal(10,4)" json:"expected_change_pct"`

	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `gorm:"index" json:"expires_at"`
	LastEvaluatedAt *time.Time `json:"last_evaluated_at"`

	Acknowledged        bool   `gorm:"default:false" json:"acknowledged"`
	AcknowledgementNote string `json:"acknowledgement_note"`

	Status          string           `gorm:"index;default:'ACTIVE'" json:"status"`
	Outcome         string           `json:"outcome"` // CORRECT, INCORRECT, PARTIAL, UNKNOWN
	ActualChangePct *decimal.Decimal `gorm:"type:decimal(10,4)" json:"actual_change_pct"`
	RealizedROIPct  *decimal.Decimal `gorm:"column:realized_roi_pct;type:decimal(10,4)" json:"realized_roi_pct"`
	OutcomeNote     string           `json:"outcome_note"`

	ModelVersion string `json:"model_version"`
}

// IsTerminal reports whether the recommendation has reached a terminal status
func (r *Recommendation) IsTerminal() bool {
	return r.Status == StatusExpired || r.Status == StatusEvaluated
}

// HorizonDuration maps a time horizon to the recommendation validity window.
// SHORT = 3 days, MEDIUM = 14 days, LONG = 60 days; unknown horizons fall
// back to MEDIUM.
func HorizonDuration(horizon string) time.Duration {
	switch horizon {
	case HorizonShort:
		return 3 * 24 * time.Hour
	case HorizonLong:
		return 60 * 24 * time.Hour
	default:
		return 14 * 24 * time.Hour
	}
}

// ValidRecommendationTypes returns valid recommendation types
func ValidRecommendationTypes() []string {
	return []string{RecommendationBuy, RecommendationSell, RecommendationHold}
}

// IsValidRecommendationType checks if the recommendation type is valid
func IsValidRecommendationType(recType string) bool {
	for _, valid := range ValidRecommendationTypes() {
		if recType == valid {
			return true
		}
	}
	return false
}

// MigrateRecommendationModels runs database migrations for recommendation models
func MigrateRecommendationModels(db *gorm.DB) error {
	return db.AutoMigrate(&Recommendation{})
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Commodity represents a tradable agricultural commodity
type Commodity struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"` // maize, beans, coffee, ...
	Category  string    `json:"category"`                         // cereal, legume, cash_crop
	Unit      string    `json:"unit"`                             // kg, 90kg bag, litre
	Status    string    `gorm:"default:'active'" json:"status"`   // active, inactive
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Market represents a physical or virtual marketplace where prices are observed
type Market struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	Region    string    `json:"region"`
	Status    string    `gorm:"default:'active'" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommodityPrice represents an observed market price for a commodity
type CommodityPrice struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Commodity  string          `gorm:"index:idx_commodity_market_observed;not null" json:"commodity"`
	Market     string          `gorm:"index:idx_commodity_market_observed" json:"market"`
	Price      decimal.Decimal `gorm:"type:decimal(15,4)" json:"price"`
	Unit       string          `json:"unit"`
	Source     string          `json:"source"` // feed, manual, import
	ObservedAt time.Time       `gorm:"index:idx_commodity_market_observed" json:"observed_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MigrateMarketModels runs database migrations for market data models
func MigrateMarketModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Commodity{},
		&Market{},
		&CommodityPrice{},
	)
}

package marketdata

import (
	"context"
	"fmt"
	"time"

	"agromarket_backend/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Observation is a single observed market price
type Observation struct {
	Commodity  string          `json:"commodity"`
	Market     string          `json:"market"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Source provides the latest observed prices used by recommendation
// evaluation. A nil observation with a nil error means no price has been
// recorded since the given time.
type Source interface {
	LatestPrice(ctx context.Context, commodity, market string, since time.Time) (*Observation, error)
}

// DBSource reads observations from the commodity_prices table
type DBSource struct {
	db *gorm.DB
}

// NewDBSource creates a database-backed market data source
func NewDBSource(db *gorm.DB) *DBSource {
	return &DBSource{db: db}
}

// LatestPrice returns the most recent price for a commodity observed after
// the given time. When market is non-empty only that market is considered;
// otherwise the freshest observation across markets wins.
func (s *DBSource) LatestPrice(ctx context.Context, commodity, market string, since time.Time) (*Observation, error) {
	query := s.db.WithContext(ctx).
		Where("commodity = ? AND observed_at > ?", commodity, since)
	if market != "" {
		query = query.Where("market = ?", market)
	}

	var price models.CommodityPrice
	err := query.Order("observed_at DESC").First(&price).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest price for %s: %w", commodity, err)
	}

	return &Observation{
		Commodity:  price.Commodity,
		Market:     price.Market,
		Price:      price.Price,
		ObservedAt: price.ObservedAt,
	}, nil
}

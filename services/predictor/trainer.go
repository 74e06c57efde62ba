package predictor

import (
	"context"
	"fmt"
	"log"
	"time"

	"agromarket_backend/models"

	"gonum.org/v1/gonum/stat"
	"gorm.io/gorm"
)

const (
	// TrainingLookbackDays is how far back price history is considered
	TrainingLookbackDays = 90
	// MinTrainingSamples below which a commodity is skipped
	MinTrainingSamples = 8
)

// ModelStore persists trained model artifacts
type ModelStore interface {
	Loader
	Save(ctx context.Context, m *Model) error
}

// Trainer fits per-commodity forecast parameters from observed price history
// and persists the resulting model artifact.
type Trainer struct {
	db    *gorm.DB
	store ModelStore
}

// NewTrainer creates a trainer over the given price database and model store
func NewTrainer(db *gorm.DB, store ModelStore) *Trainer {
	return &Trainer{db: db, store: store}
}

// Train builds a fresh model from recent price history and saves it.
// Commodities with too little history are skipped, not failed.
func (t *Trainer) Train(ctx context.Context) (*Model, error) {
	var commodities []models.Commodity
	if err := t.db.WithContext(ctx).Where("status = ?", "active").Find(&commodities).Error; err != nil {
		return nil, fmt.Errorf("failed to load commodities: %w", err)
	}

	since := time.Now().AddDate(0, 0, -TrainingLookbackDays)
	params := make(map[string]CommodityParams, len(commodities))

	for _, commodity := range commodities {
		var prices []models.CommodityPrice
		err := t.db.WithContext(ctx).
			Where("commodity = ? AND observed_at >= ?", commodity.Name, since).
			Order("observed_at ASC").
			Find(&prices).Error
		if err != nil {
			log.Printf("Error loading prices for %s: %v", commodity.Name, err)
			continue
		}
		if len(prices) < MinTrainingSamples {
			continue
		}

		p, ok := fitCommodity(commodity.Name, prices)
		if !ok {
			continue
		}
		params[commodity.Name] = p
	}

	if len(params) == 0 {
		return nil, fmt.Errorf("no commodity had enough price history to train on")
	}

	now := time.Now().UTC()
	model := &Model{
		Version:   "v" + now.Format("20060102T150405Z"),
		TrainedAt: now,
		Params:    params,
	}

	if err := t.store.Save(ctx, model); err != nil {
		return nil, fmt.Errorf("failed to save model artifact: %w", err)
	}

	log.Printf("Trained model %s covering %d commodities", model.Version, len(params))
	return model, nil
}

// fitCommodity derives drift and volatility from an ascending price series
func fitCommodity(name string, prices []models.CommodityPrice) (CommodityParams, bool) {
	first, _ := prices[0].Price.Float64()
	last, _ := prices[len(prices)-1].Price.Float64()
	if first <= 0 {
		return CommodityParams{}, false
	}

	// Step-over-step percentage changes
	changes := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, _ := prices[i-1].Price.Float64()
		cur, _ := prices[i].Price.Float64()
		if prev <= 0 {
			continue
		}
		changes = append(changes, (cur-prev)/prev*100)
	}
	if len(changes) == 0 {
		return CommodityParams{}, false
	}

	_, volatility := stat.MeanStdDev(changes, nil)

	return CommodityParams{
		Commodity:     name,
		DriftPct:      (last - first) / first * 100,
		VolatilityPct: volatility,
		Samples:       len(prices),
	}, true
}

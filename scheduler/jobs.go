package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"agromarket_backend/config"
	"agromarket_backend/models"
	"agromarket_backend/services/marketdata"
	"agromarket_backend/services/predictor"
	"agromarket_backend/services/recommendations"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// Names of the core recurring jobs
const (
	JobDataCollection = "data_collection"
	JobRetraining     = "retraining"
	JobEvaluation     = "evaluation"
	JobAlertCheck     = "alert_check"
)

// CoreJobDeps bundles the collaborators the core jobs run against
type CoreJobDeps struct {
	DB        *gorm.DB
	Collector *marketdata.Collector
	Trainer   *predictor.Trainer
	Cache     *predictor.Cache
	Engine    *recommendations.Engine
}

// RegisterCoreJobs wires the recurring jobs onto the scheduler:
// price collection, model retraining (train then reload the cache),
// the recommendation evaluation sweep, and the price alert check.
func RegisterCoreJobs(s *Scheduler, cfg *config.Config, deps CoreJobDeps) error {
	jobs := []struct {
		name     string
		interval time.Duration
		action   JobFunc
	}{
		{
			name:     JobDataCollection,
			interval: time.Duration(cfg.CollectIntervalMin) * time.Minute,
			action: func(ctx context.Context) error {
				return deps.Collector.CollectAll(ctx)
			},
		},
		{
			name:     JobRetraining,
			interval: time.Duration(cfg.RetrainIntervalMin) * time.Minute,
			action: func(ctx context.Context) error {
				if _, err := deps.Trainer.Train(ctx); err != nil {
					return err
				}
				_, err := deps.Cache.Reload(ctx)
				return err
			},
		},
		{
			name:     JobEvaluation,
			interval: time.Duration(cfg.EvaluateIntervalMin) * time.Minute,
			action: func(ctx context.Context) error {
				return deps.Engine.EvaluateAll(ctx, time.Now())
			},
		},
		{
			name:     JobAlertCheck,
			interval: time.Duration(cfg.AlertIntervalMin) * time.Minute,
			action: func(ctx context.Context) error {
				return checkPriceAlerts(ctx, deps.DB)
			},
		},
	}

	for _, j := range jobs {
		if err := s.RegisterJob(j.name, j.interval, j.action); err != nil {
			return fmt.Errorf("failed to register job %s: %w", j.name, err)
		}
	}
	return nil
}

// checkPriceAlerts sweeps active, untriggered price alerts against the most
// recent observations. A missing price for one alert skips that alert only.
func checkPriceAlerts(ctx context.Context, db *gorm.DB) error {
	var alerts []models.PriceAlert
	if err := db.WithContext(ctx).
		Where("is_active = ? AND is_triggered = ?", true, false).
		Find(&alerts).Error; err != nil {
		return fmt.Errorf("failed to load alerts: %w", err)
	}

	triggered := 0
	for _, alert := range alerts {
		query := db.WithContext(ctx).Where("commodity = ?", alert.Commodity)
		if alert.Market != "" {
			query = query.Where("market = ?", alert.Market)
		}

		var latest models.CommodityPrice
		if err := query.Order("observed_at DESC").First(&latest).Error; err != nil {
			continue
		}

		shouldTrigger := false
		switch alert.AlertType {
		case models.AlertTypePriceAbove:
			shouldTrigger = latest.Price.GreaterThanOrEqual(alert.TargetValue)
		case models.AlertTypePriceBelow:
			shouldTrigger = latest.Price.LessThanOrEqual(alert.TargetValue)
		case models.AlertTypePercentChange:
			var previous models.CommodityPrice
			err := db.WithContext(ctx).
				Where("commodity = ? AND market = ? AND observed_at < ?",
					latest.Commodity, latest.Market, latest.ObservedAt).
				Order("observed_at DESC").First(&previous).Error
			if err != nil || previous.Price.IsZero() {
				continue
			}
			changePct := latest.Price.Sub(previous.Price).
				Div(previous.Price).
				Mul(hundred).
				Abs()
			shouldTrigger = changePct.GreaterThanOrEqual(alert.TargetValue)
		}

		if shouldTrigger {
			now := time.Now()
			err := db.WithContext(ctx).Model(&models.PriceAlert{}).
				Where("id = ? AND is_triggered = ?", alert.ID, false).
				Updates(map[string]interface{}{
					"is_triggered": true,
					"triggered_at": now,
				}).Error
			if err != nil {
				log.Printf("Error triggering alert %d: %v", alert.ID, err)
				continue
			}
			triggered++
			log.Printf("Alert %d triggered for user %d on %s", alert.ID, alert.UserID, alert.Commodity)
		}
	}

	if triggered > 0 {
		log.Printf("Alert sweep: %d of %d alerts triggered", triggered, len(alerts))
	}
	return nil
}

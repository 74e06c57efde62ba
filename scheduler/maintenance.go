package scheduler

import (
	"log"
	"time"

	"agromarket_backend/models"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"
)

// Retention windows for the weekly cleanup. Recommendations are never
// deleted; they are retained for accuracy analytics.
const (
	priceRetentionYears = 2
	alertRetentionDays  = 90
)

// Maintenance runs wall-clock housekeeping jobs that belong to calendar
// time (e.g. "Sunday at 01:00") rather than to a fixed interval.
type Maintenance struct {
	cron *gocron.Scheduler
	db   *gorm.DB
}

// NewMaintenance creates the maintenance runner
func NewMaintenance(db *gorm.DB) *Maintenance {
	return &Maintenance{
		cron: gocron.NewScheduler(time.UTC),
		db:   db,
	}
}

// Start schedules and launches the maintenance jobs
func (m *Maintenance) Start() {
	// Cleanup old data weekly on Sunday at 01:00 UTC
	m.cron.Every(1).Week().Sunday().At("01:00").Do(func() {
		m.cleanupOldData()
	})

	m.cron.StartAsync()
	log.Println("Maintenance scheduler started")
}

// Stop stops the maintenance scheduler
func (m *Maintenance) Stop() {
	m.cron.Stop()
	log.Println("Maintenance scheduler stopped")
}

// cleanupOldData removes stale price observations and old triggered alerts
func (m *Maintenance) cleanupOldData() {
	log.Println("Cleaning up old data...")

	priceCutoff := time.Now().AddDate(-priceRetentionYears, 0, 0)
	if err := m.db.Where("observed_at < ?", priceCutoff).
		Delete(&models.CommodityPrice{}).Error; err != nil {
		log.Printf("Error cleaning up old prices: %v", err)
	}

	alertCutoff := time.Now().AddDate(0, 0, -alertRetentionDays)
	if err := m.db.Where("is_triggered = ? AND triggered_at < ?", true, alertCutoff).
		Delete(&models.PriceAlert{}).Error; err != nil {
		log.Printf("Error cleaning up old alerts: %v", err)
	}

	log.Println("Cleanup completed")
}

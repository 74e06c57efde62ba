package recommendations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agromarket_backend/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a referenced recommendation id does not exist
var ErrNotFound = errors.New("recommendation not found")

// Store is the persistence boundary for recommendations. Every write is a
// single-row operation, so a concurrent acknowledge and evaluate on the same
// id cannot corrupt each other: outcome fields are written once via guarded
// updates, acknowledgement is last-writer-wins.
type Store interface {
	Insert(ctx context.Context, rec *models.Recommendation) error
	GetByID(ctx context.Context, id uint) (*models.Recommendation, error)
	// FindActiveByKey returns the ACTIVE recommendation for the triple, or
	// nil when none exists.
	FindActiveByKey(ctx context.Context, userID, commodity, market string) (*models.Recommendation, error)
	// FindEvaluableBefore returns the ACTIVE recommendations issued at or
	// before now: both those still inside their validity window and those
	// already past expiry, since the evaluation pass handles both.
	FindEvaluableBefore(ctx context.Context, now time.Time) ([]models.Recommendation, error)
	ListByUser(ctx context.Context, userID string, status string, limit int) ([]models.Recommendation, error)
	// RecordOutcome persists the terminal evaluation of rec. The update is
	// guarded on status ACTIVE so an outcome is only ever written once;
	// a lost race is a no-op, not an error.
	RecordOutcome(ctx context.Context, rec *models.Recommendation) error
	// MarkExpired transitions an ACTIVE recommendation to EXPIRED without
	// recording an outcome.
	MarkExpired(ctx context.Context, id uint) error
	// SetAcknowledged updates the consumer-owned acknowledgement fields only.
	SetAcknowledged(ctx context.Context, id uint, note string) error
}

// DBStore is the gorm-backed Store implementation
type DBStore struct {
	db *gorm.DB
}

// NewDBStore creates a database-backed recommendation store
func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Insert(ctx context.Context, rec *models.Recommendation) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert recommendation: %w", err)
	}
	return nil
}

func (s *DBStore) GetByID(ctx context.Context, id uint) (*models.Recommendation, error) {
	var rec models.Recommendation
	err := s.db.WithContext(ctx).First(&rec, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendation %d: %w", id, err)
	}
	return &rec, nil
}

func (s *DBStore) FindActiveByKey(ctx context.Context, userID, commodity, market string) (*models.Recommendation, error) {
	var rec models.Recommendation
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND commodity = ? AND market = ? AND status = ?",
			userID, commodity, market, models.StatusActive).
		Order("created_at DESC").
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up active recommendation: %w", err)
	}
	return &rec, nil
}

func (s *DBStore) FindEvaluableBefore(ctx context.Context, now time.Time) ([]models.Recommendation, error) {
	var recs []models.Recommendation
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", models.StatusActive, now).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load evaluable recommendations: %w", err)
	}
	return recs, nil
}

func (s *DBStore) ListByUser(ctx context.Context, userID string, status string, limit int) ([]models.Recommendation, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recs []models.Recommendation
	if err := query.Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	return recs, nil
}

func (s *DBStore) RecordOutcome(ctx context.Context, rec *models.Recommendation) error {
	updates := map[string]interface{}{
		"status":            models.StatusEvaluated,
		"outcome":           rec.Outcome,
		"actual_change_pct": rec.ActualChangePct,
		"realized_roi_pct":  rec.RealizedROIPct,
		"outcome_note":      rec.OutcomeNote,
		"last_evaluated_at": rec.LastEvaluatedAt,
	}
	result := s.db.WithContext(ctx).
		Model(&models.Recommendation{}).
		Where("id = ? AND status = ?", rec.ID, models.StatusActive).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to record outcome for recommendation %d: %w", rec.ID, result.Error)
	}
	return nil
}

func (s *DBStore) MarkExpired(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).
		Model(&models.Recommendation{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Update("status", models.StatusExpired)
	if result.Error != nil {
		return fmt.Errorf("failed to expire recommendation %d: %w", id, result.Error)
	}
	return nil
}

func (s *DBStore) SetAcknowledged(ctx context.Context, id uint, note string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Recommendation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"acknowledged":         true,
			"acknowledgement_note": note,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to acknowledge recommendation %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

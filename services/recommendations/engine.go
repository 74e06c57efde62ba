package recommendations

import (
	"context"
	"fmt"
	"log"
	"time"

	"agromarket_backend/models"
	"agromarket_backend/services/marketdata"
	"agromarket_backend/services/predictor"

	"github.com/shopspring/decimal"
)

// ModelProvider yields the current forecasting model; satisfied by
// predictor.Cache.
type ModelProvider interface {
	Get(ctx context.Context) (*predictor.Model, error)
}

// EvaluationConfig tunes outcome classification. The tolerance band and the
// minimum window are business parameters, not algorithm constants.
type EvaluationConfig struct {
	// MinWindow is how long after issuance a price observation must be
	// before it counts for evaluation.
	MinWindow time.Duration
	// TolerancePct is the band around the expected change inside which a
	// direction-matching move counts as CORRECT rather than PARTIAL.
	TolerancePct decimal.Decimal
}

// DefaultEvaluationConfig returns the standard evaluation tuning:
// a one day minimum window and a +/-3 percentage point tolerance band.
func DefaultEvaluationConfig() EvaluationConfig {
	return EvaluationConfig{
		MinWindow:    24 * time.Hour,
		TolerancePct: decimal.NewFromInt(3),
	}
}

// Engine drives recommendations through their lifecycle: creation from model
// forecasts, periodic evaluation against newly observed prices, and expiry.
type Engine struct {
	store  Store
	source marketdata.Source
	model  ModelProvider
	cfg    EvaluationConfig
}

// NewEngine creates a lifecycle engine over the given collaborators
func NewEngine(store Store, source marketdata.Source, model ModelProvider, cfg EvaluationConfig) *Engine {
	return &Engine{
		store:  store,
		source: source,
		model:  model,
		cfg:    cfg,
	}
}

// Generate produces at most one recommendation for the given subject. When
// an unexpired, unacknowledged ACTIVE recommendation already exists for the
// same (user, commodity, market) triple, that one is returned instead of
// creating duplicate noise. Returns (nil, nil) when the model has no
// actionable forecast or no price is available for the commodity.
func (e *Engine) Generate(ctx context.Context, userID, commodity, market string) (*models.Recommendation, error) {
	now := time.Now()

	existing, err := e.store.FindActiveByKey(ctx, userID, commodity, market)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Acknowledged && now.Before(existing.ExpiresAt) {
		return existing, nil
	}

	model, err := e.model.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("no model available for generation: %w", err)
	}

	obs, err := e.source.LatestPrice(ctx, commodity, market, time.Time{})
	if err != nil {
		return nil, err
	}
	if obs == nil {
		log.Printf("No observed price for %s/%s, skipping generation", commodity, market)
		return nil, nil
	}

	forecast, ok := model.Forecast(commodity, obs.Price)
	if !ok {
		log.Printf("Model %s has no parameters for %s, skipping generation", model.Version, commodity)
		return nil, nil
	}

	currentPrice := obs.Price
	rec := &models.Recommendation{
		UserID:            userID,
		Commodity:         commodity,
		Market:            market,
		Type:              forecast.Type,
		Confidence:        forecast.Confidence,
		Reasoning:         forecast.Reasoning,
		Horizon:           forecast.Horizon,
		CurrentPrice:      &currentPrice,
		TargetPrice:       forecast.TargetPrice,
		ExpectedChangePct: forecast.ExpectedChangePct,
		CreatedAt:         now,
		ExpiresAt:         now.Add(models.HorizonDuration(forecast.Horizon)),
		Status:            models.StatusActive,
		ModelVersion:      model.Version,
	}

	if err := e.store.Insert(ctx, rec); err != nil {
		return nil, err
	}

	log.Printf("Generated %s recommendation %d for %s/%s (user %s, model %s)",
		rec.Type, rec.ID, commodity, market, userID, model.Version)
	return rec, nil
}

// EvaluateAll sweeps all ACTIVE recommendations. Recommendations past their
// expiry are marked EXPIRED with no outcome; the rest are evaluated against
// the latest observed price when one fresh enough exists, otherwise left
// ACTIVE for the next pass. Per-item failures are logged and skipped — only
// a store-level failure aborts the sweep.
func (e *Engine) EvaluateAll(ctx context.Context, now time.Time) error {
	recs, err := e.store.FindEvaluableBefore(ctx, now)
	if err != nil {
		return fmt.Errorf("evaluation sweep aborted: %w", err)
	}

	var evaluated, expired, pending int
	for i := range recs {
		rec := &recs[i]
		if rec.IsTerminal() {
			continue
		}

		if now.After(rec.ExpiresAt) {
			if err := e.store.MarkExpired(ctx, rec.ID); err != nil {
				log.Printf("Error expiring recommendation %d: %v", rec.ID, err)
				continue
			}
			expired++
			continue
		}

		obs, err := e.source.LatestPrice(ctx, rec.Commodity, rec.Market, rec.CreatedAt)
		if err != nil {
			log.Printf("Error fetching price for %s/%s: %v", rec.Commodity, rec.Market, err)
			continue
		}
		if obs == nil || obs.ObservedAt.Sub(rec.CreatedAt) < e.cfg.MinWindow {
			// No fresh enough observation; ride to the next pass
			pending++
			continue
		}

		e.classify(rec, obs, now)
		if err := e.store.RecordOutcome(ctx, rec); err != nil {
			log.Printf("Error recording outcome for recommendation %d: %v", rec.ID, err)
			continue
		}
		evaluated++
	}

	log.Printf("Evaluation sweep: %d evaluated, %d expired, %d still pending of %d active",
		evaluated, expired, pending, len(recs))
	return nil
}

// Acknowledge marks a recommendation as seen by its consumer. It touches
// only the acknowledgement fields; status and outcome are unaffected.
func (e *Engine) Acknowledge(ctx context.Context, id uint, note string) (*models.Recommendation, error) {
	if err := e.store.SetAcknowledged(ctx, id, note); err != nil {
		return nil, err
	}
	return e.store.GetByID(ctx, id)
}

// classify fills the outcome fields of rec from the observed price. The
// recommendation type implies a direction: BUY expects the price to rise,
// SELL expects it to fall. A direction match within the tolerance band of
// the expected change is CORRECT, outside it PARTIAL; the opposite
// direction is INCORRECT. HOLD recommendations and recommendations without
// a usable pricing snapshot are UNKNOWN.
func (e *Engine) classify(rec *models.Recommendation, obs *marketdata.Observation, now time.Time) {
	evaluatedAt := now
	rec.LastEvaluatedAt = &evaluatedAt
	rec.Status = models.StatusEvaluated

	if rec.CurrentPrice == nil || rec.CurrentPrice.IsZero() {
		rec.Outcome = models.OutcomeUnknown
		rec.OutcomeNote = "No issuance price recorded; outcome cannot be determined"
		return
	}

	actual := obs.Price.Sub(*rec.CurrentPrice).
		Div(*rec.CurrentPrice).
		Mul(decimal.NewFromInt(100)).
		Round(4)
	rec.ActualChangePct = &actual

	roi := realizedROI(rec.Type, actual)
	rec.RealizedROIPct = &roi

	if rec.Type == models.RecommendationHold || rec.ExpectedChangePct == nil {
		rec.Outcome = models.OutcomeUnknown
		rec.OutcomeNote = fmt.Sprintf("No directional claim to verify; price moved %s%%", actual)
		return
	}

	var directionMatch, directionOpposite bool
	switch rec.Type {
	case models.RecommendationBuy:
		directionMatch = actual.IsPositive()
		directionOpposite = actual.IsNegative()
	case models.RecommendationSell:
		directionMatch = actual.IsNegative()
		directionOpposite = actual.IsPositive()
	}

	switch {
	case directionMatch:
		deviation := actual.Sub(*rec.ExpectedChangePct).Abs()
		if deviation.LessThanOrEqual(e.cfg.TolerancePct) {
			rec.Outcome = models.OutcomeCorrect
			rec.OutcomeNote = fmt.Sprintf("Price moved %s%% vs expected %s%%", actual, rec.ExpectedChangePct)
		} else {
			rec.Outcome = models.OutcomePartial
			rec.OutcomeNote = fmt.Sprintf("Direction correct but magnitude off: %s%% vs expected %s%%",
				actual, rec.ExpectedChangePct)
		}
	case directionOpposite:
		rec.Outcome = models.OutcomeIncorrect
		rec.OutcomeNote = fmt.Sprintf("Price moved %s%% against the %s call", actual, rec.Type)
	default:
		// Flat price: neither confirmed nor contradicted
		rec.Outcome = models.OutcomeUnknown
		rec.OutcomeNote = "Price unchanged since issuance"
	}
}

// realizedROI converts the observed price change into a notional-position
// return: a BUY earns the change itself, a SELL (avoided loss / short) earns
// its negation. Quantity is not tracked, so the change stands in for ROI.
func realizedROI(recType string, actualChangePct decimal.Decimal) decimal.Decimal {
	switch recType {
	case models.RecommendationBuy:
		return actualChangePct
	case models.RecommendationSell:
		return actualChangePct.Neg()
	default:
		return decimal.Zero
	}
}

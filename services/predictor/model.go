package predictor

import (
	"fmt"
	"time"

	"agromarket_backend/models"

	"github.com/shopspring/decimal"
)

// Signal thresholds. A commodity whose expected drift is inside the band
// produces a HOLD with no price target.
const (
	BuyThresholdPct  = 2.0
	SellThresholdPct = -2.0
)

// CommodityParams holds the fitted per-commodity forecast parameters
type CommodityParams struct {
	Commodity     string  `bson:"commodity" json:"commodity"`
	DriftPct      float64 `bson:"drift_pct" json:"drift_pct"`           // expected % change over the horizon
	VolatilityPct float64 `bson:"volatility_pct" json:"volatility_pct"` // stddev of daily % changes
	Samples       int     `bson:"samples" json:"samples"`
}

// Model is a trained forecasting model. A Model is immutable once built;
// the cache swaps whole instances so readers never see partial updates.
type Model struct {
	Version   string                     `bson:"version" json:"version"`
	TrainedAt time.Time                  `bson:"trained_at" json:"trained_at"`
	Params    map[string]CommodityParams `bson:"params" json:"params"`
}

// Forecast is the model output for a single commodity/market subject
type Forecast struct {
	Type              string
	Confidence        string
	Horizon           string
	ExpectedChangePct *decimal.Decimal
	TargetPrice       *decimal.Decimal
	Reasoning         string
}

// Forecast produces a trade forecast for a commodity given its latest
// observed price. Returns false when the model has no parameters for the
// commodity.
func (m *Model) Forecast(commodity string, latestPrice decimal.Decimal) (*Forecast, bool) {
	params, ok := m.Params[commodity]
	if !ok || params.Samples == 0 {
		return nil, false
	}

	f := &Forecast{
		Confidence: confidenceTier(params),
		Horizon:    horizonFor(params),
	}

	switch {
	case params.DriftPct >= BuyThresholdPct:
		f.Type = models.RecommendationBuy
	case params.DriftPct <= SellThresholdPct:
		f.Type = models.RecommendationSell
	default:
		// Pure HOLD: no directional claim, no price target
		f.Type = models.RecommendationHold
		f.Reasoning = fmt.Sprintf(
			"Expected drift %.1f%% is within the neutral band; no actionable move for %s",
			params.DriftPct, commodity)
		return f, true
	}

	expected := decimal.NewFromFloat(params.DriftPct).Round(4)
	target := latestPrice.Mul(decimal.NewFromFloat(1 + params.DriftPct/100)).Round(4)
	f.ExpectedChangePct = &expected
	f.TargetPrice = &target
	f.Reasoning = fmt.Sprintf(
		"Momentum drift %.1f%% over %d observations, daily volatility %.1f%%",
		params.DriftPct, params.Samples, params.VolatilityPct)
	return f, true
}

// confidenceTier maps signal-to-noise (drift vs volatility) to a tier
func confidenceTier(p CommodityParams) string {
	if p.VolatilityPct <= 0 {
		return models.ConfidenceLow
	}
	snr := abs(p.DriftPct) / p.VolatilityPct
	switch {
	case snr >= 1.5:
		return models.ConfidenceHigh
	case snr >= 0.75:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// horizonFor picks the recommendation horizon from volatility: volatile
// commodities realize (or invalidate) a forecast quickly.
func horizonFor(p CommodityParams) string {
	switch {
	case p.VolatilityPct >= 8.0:
		return models.HorizonShort
	case p.VolatilityPct <= 2.0:
		return models.HorizonLong
	default:
		return models.HorizonMedium
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

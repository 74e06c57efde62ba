package predictor

import (
	"testing"
	"time"

	"agromarket_backend/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paramsModel(params ...CommodityParams) *Model {
	m := &Model{
		Version:   "v1",
		TrainedAt: time.Now().UTC(),
		Params:    make(map[string]CommodityParams, len(params)),
	}
	for _, p := range params {
		m.Params[p.Commodity] = p
	}
	return m
}

func TestForecastSignalThresholds(t *testing.T) {
	m := paramsModel(
		CommodityParams{Commodity: "maize", DriftPct: 5, VolatilityPct: 3, Samples: 30},
		CommodityParams{Commodity: "coffee", DriftPct: -4, VolatilityPct: 3, Samples: 30},
		CommodityParams{Commodity: "beans", DriftPct: 1, VolatilityPct: 3, Samples: 30},
	)
	price := decimal.NewFromInt(200)

	buy, ok := m.Forecast("maize", price)
	require.True(t, ok)
	assert.Equal(t, models.RecommendationBuy, buy.Type)
	require.NotNil(t, buy.TargetPrice)
	assert.True(t, buy.TargetPrice.Equal(decimal.NewFromInt(210)), "target: got %s", buy.TargetPrice)
	require.NotNil(t, buy.ExpectedChangePct)
	assert.True(t, buy.ExpectedChangePct.Equal(decimal.NewFromInt(5)))

	sell, ok := m.Forecast("coffee", price)
	require.True(t, ok)
	assert.Equal(t, models.RecommendationSell, sell.Type)
	require.NotNil(t, sell.TargetPrice)
	assert.True(t, sell.TargetPrice.Equal(decimal.NewFromInt(192)))

	hold, ok := m.Forecast("beans", price)
	require.True(t, ok)
	assert.Equal(t, models.RecommendationHold, hold.Type)
	assert.Nil(t, hold.TargetPrice, "a HOLD carries no price target")
	assert.Nil(t, hold.ExpectedChangePct)
}

func TestForecastUnknownCommodity(t *testing.T) {
	m := paramsModel(CommodityParams{Commodity: "maize", DriftPct: 5, VolatilityPct: 3, Samples: 30})

	_, ok := m.Forecast("cassava", decimal.NewFromInt(100))
	assert.False(t, ok)

	// Zero-sample parameters are as good as missing
	m.Params["empty"] = CommodityParams{Commodity: "empty"}
	_, ok = m.Forecast("empty", decimal.NewFromInt(100))
	assert.False(t, ok)
}

func TestConfidenceFollowsSignalToNoise(t *testing.T) {
	cases := []struct {
		name string
		p    CommodityParams
		want string
	}{
		{"strong drift low noise", CommodityParams{DriftPct: 6, VolatilityPct: 3, Samples: 30}, models.ConfidenceHigh},
		{"moderate ratio", CommodityParams{DriftPct: 3, VolatilityPct: 3, Samples: 30}, models.ConfidenceMedium},
		{"noisy", CommodityParams{DriftPct: 2, VolatilityPct: 9, Samples: 30}, models.ConfidenceLow},
		{"degenerate volatility", CommodityParams{DriftPct: 4, VolatilityPct: 0, Samples: 30}, models.ConfidenceLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, confidenceTier(tc.p))
		})
	}
}

func TestHorizonFollowsVolatility(t *testing.T) {
	assert.Equal(t, models.HorizonShort, horizonFor(CommodityParams{VolatilityPct: 9}))
	assert.Equal(t, models.HorizonMedium, horizonFor(CommodityParams{VolatilityPct: 5}))
	assert.Equal(t, models.HorizonLong, horizonFor(CommodityParams{VolatilityPct: 1.5}))
}

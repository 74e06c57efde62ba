package recommendations

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"agromarket_backend/models"
	"agromarket_backend/services/marketdata"
	"agromarket_backend/services/predictor"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store that mirrors the guarded-update semantics
// of the database implementation: outcome and expiry writes only land on
// ACTIVE rows.
type memStore struct {
	nextID  uint
	recs    map[uint]*models.Recommendation
	inserts int
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[uint]*models.Recommendation)}
}

func (s *memStore) Insert(ctx context.Context, rec *models.Recommendation) error {
	s.nextID++
	rec.ID = s.nextID
	cp := *rec
	s.recs[rec.ID] = &cp
	s.inserts++
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id uint) (*models.Recommendation, error) {
	rec, ok := s.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) FindActiveByKey(ctx context.Context, userID, commodity, market string) (*models.Recommendation, error) {
	for _, rec := range s.recs {
		if rec.UserID == userID && rec.Commodity == commodity && rec.Market == market &&
			rec.Status == models.StatusActive {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindEvaluableBefore(ctx context.Context, now time.Time) ([]models.Recommendation, error) {
	var out []models.Recommendation
	for _, rec := range s.recs {
		if rec.Status == models.StatusActive && !rec.CreatedAt.After(now) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListByUser(ctx context.Context, userID string, status string, limit int) ([]models.Recommendation, error) {
	var out []models.Recommendation
	for _, rec := range s.recs {
		if rec.UserID != userID {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *memStore) RecordOutcome(ctx context.Context, rec *models.Recommendation) error {
	stored, ok := s.recs[rec.ID]
	if !ok || stored.Status != models.StatusActive {
		// Guarded update: a lost race is a no-op
		return nil
	}
	stored.Status = models.StatusEvaluated
	stored.Outcome = rec.Outcome
	stored.ActualChangePct = rec.ActualChangePct
	stored.RealizedROIPct = rec.RealizedROIPct
	stored.OutcomeNote = rec.OutcomeNote
	stored.LastEvaluatedAt = rec.LastEvaluatedAt
	return nil
}

func (s *memStore) MarkExpired(ctx context.Context, id uint) error {
	stored, ok := s.recs[id]
	if !ok || stored.Status != models.StatusActive {
		return nil
	}
	stored.Status = models.StatusExpired
	return nil
}

func (s *memStore) SetAcknowledged(ctx context.Context, id uint, note string) error {
	stored, ok := s.recs[id]
	if !ok {
		return ErrNotFound
	}
	stored.Acknowledged = true
	stored.AcknowledgementNote = note
	return nil
}

// memSource serves canned observations keyed by commodity
type memSource struct {
	obs map[string]*marketdata.Observation
	err error
}

func (s *memSource) LatestPrice(ctx context.Context, commodity, market string, since time.Time) (*marketdata.Observation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.obs[commodity], nil
}

// fixedModel satisfies ModelProvider with a prebuilt model
type fixedModel struct {
	model *predictor.Model
	err   error
}

func (f *fixedModel) Get(ctx context.Context) (*predictor.Model, error) {
	return f.model, f.err
}

func buyModel() *predictor.Model {
	return &predictor.Model{
		Version:   "v20260801T000000Z",
		TrainedAt: time.Now().UTC(),
		Params: map[string]predictor.CommodityParams{
			"maize":  {Commodity: "maize", DriftPct: 10, VolatilityPct: 3, Samples: 40},
			"coffee": {Commodity: "coffee", DriftPct: 0.5, VolatilityPct: 3, Samples: 40},
		},
	}
}

func dec(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}

// seedActive inserts an ACTIVE BUY recommendation issued at `created`,
// priced at 100 with an expected +10% move.
func seedActive(t *testing.T, store *memStore, commodity string, created time.Time) *models.Recommendation {
	t.Helper()
	rec := &models.Recommendation{
		UserID:            "u1",
		Commodity:         commodity,
		Market:            "kampala",
		Type:              models.RecommendationBuy,
		Confidence:        models.ConfidenceHigh,
		Horizon:           models.HorizonMedium,
		CurrentPrice:      dec(100),
		TargetPrice:       dec(110),
		ExpectedChangePct: dec(10),
		CreatedAt:         created,
		ExpiresAt:         created.Add(models.HorizonDuration(models.HorizonMedium)),
		Status:            models.StatusActive,
	}
	require.NoError(t, store.Insert(context.Background(), rec))
	return rec
}

func newTestEngine(store Store, source marketdata.Source, model ModelProvider) *Engine {
	return NewEngine(store, source, model, DefaultEvaluationConfig())
}

func TestGenerateCreatesActiveRecommendation(t *testing.T) {
	store := newMemStore()
	source := &memSource{obs: map[string]*marketdata.Observation{
		"maize": {Commodity: "maize", Market: "kampala", Price: decimal.NewFromInt(100), ObservedAt: time.Now()},
	}}
	engine := newTestEngine(store, source, &fixedModel{model: buyModel()})

	rec, err := engine.Generate(context.Background(), "u1", "maize", "kampala")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, models.RecommendationBuy, rec.Type)
	assert.Equal(t, models.StatusActive, rec.Status)
	assert.Equal(t, models.ConfidenceHigh, rec.Confidence)
	require.NotNil(t, rec.CurrentPrice)
	assert.True(t, rec.CurrentPrice.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, rec.TargetPrice)
	assert.True(t, rec.TargetPrice.Equal(decimal.NewFromInt(110)))
	require.NotNil(t, rec.ExpectedChangePct)
	assert.True(t, rec.ExpectedChangePct.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "v20260801T000000Z", rec.ModelVersion)
	assert.Equal(t,
		rec.CreatedAt.Add(models.HorizonDuration(rec.Horizon)),
		rec.ExpiresAt,
		"validity window follows the horizon")
	assert.NotZero(t, rec.ID, "recommendation must be persisted")
}

func TestGenerateReturnsExistingActive(t *testing.T) {
	store := newMemStore()
	existing := seedActive(t, store, "maize", time.Now())
	source := &memSource{obs: map[string]*marketdata.Observation{
		"maize": {Commodity: "maize", Market: "kampala", Price: decimal.NewFromInt(100), ObservedAt: time.Now()},
	}}
	engine := newTestEngine(store, source, &fixedModel{model: buyModel()})

	rec, err := engine.Generate(context.Background(), "u1", "maize", "kampala")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, existing.ID, rec.ID, "must return the existing active recommendation")
	assert.Equal(t, 1, store.inserts, "no duplicate insert")
}

func TestGenerateNoPriceYieldsNothing(t *testing.T) {
	store := newMemStore()
	source := &memSource{obs: map[string]*marketdata.Observation{}}
	engine := newTestEngine(store, source, &fixedModel{model: buyModel()})

	rec, err := engine.Generate(context.Background(), "u1", "maize", "kampala")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Zero(t, store.inserts)
}

func TestGenerateUnknownCommodityYieldsNothing(t *testing.T) {
	store := newMemStore()
	source := &memSource{obs: map[string]*marketdata.Observation{
		"cassava": {Commodity: "cassava", Market: "kampala", Price: decimal.NewFromInt(50), ObservedAt: time.Now()},
	}}
	engine := newTestEngine(store, source, &fixedModel{model: buyModel()})

	rec, err := engine.Generate(context.Background(), "u1", "cassava", "kampala")
	require.NoError(t, err)
	assert.Nil(t, rec, "model has no parameters for this commodity")
}

func TestGenerateFailsWithoutModel(t *testing.T) {
	store := newMemStore()
	source := &memSource{}
	engine := newTestEngine(store, source, &fixedModel{err: errors.New("store offline")})

	_, err := engine.Generate(context.Background(), "u1", "maize", "kampala")
	require.Error(t, err)
}

func TestEvaluateOutcomeClassification(t *testing.T) {
	created := time.Now().Add(-48 * time.Hour)
	now := time.Now()

	cases := []struct {
		name        string
		latestPrice float64
		wantOutcome string
		wantROI     float64
	}{
		{"within tolerance is CORRECT", 112, models.OutcomeCorrect, 12},
		{"right direction outside band is PARTIAL", 101, models.OutcomePartial, 1},
		{"opposite direction is INCORRECT", 95, models.OutcomeIncorrect, -5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			rec := seedActive(t, store, "maize", created)
			source := &memSource{obs: map[string]*marketdata.Observation{
				"maize": {
					Commodity:  "maize",
					Market:     "kampala",
					Price:      decimal.NewFromFloat(tc.latestPrice),
					ObservedAt: now,
				},
			}}
			engine := newTestEngine(store, source, &fixedModel{model: buyModel()})

			require.NoError(t, engine.EvaluateAll(context.Background(), now))

			got, err := store.GetByID(context.Background(), rec.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusEvaluated, got.Status)
			assert.Equal(t, tc.wantOutcome, got.Outcome)
			require.NotNil(t, got.ActualChangePct)
			assert.True(t, got.ActualChangePct.Equal(decimal.NewFromFloat(tc.wantROI)),
				"actual change: got %s", got.ActualChangePct)
			require.NotNil(t, got.RealizedROIPct)
			assert.True(t, got.RealizedROIPct.Equal(decimal.NewFromFloat(tc.wantROI)),
				"BUY realizes the observed change as ROI")
			require.NotNil(t, got.LastEvaluatedAt)
		})
	}
}

func TestEvaluateSellROIIsNegatedChange(t *testing.T) {
	created := time.Now().Add(-48 * time.Hour)
	now := time.Now()

	store := newMemStore()
	rec := seedActive(t, store, "maize", created)
	rec.Type = models.RecommendationSell
	expected := decimal.NewFromInt(-10)
	rec.ExpectedChangePct = &expected
	store.recs[rec.ID].Type = models.RecommendationSell
	store.recs[rec.ID].ExpectedChangePct = &expected

	source := &memSource{obs: map[string]*marketdata.Observation{
		"maize": {Commodity: "maize", Market: "kampala", Price: decimal.NewFromInt(92), ObservedAt: now},
	}}
	engine := newTestEngine(store, source, &fixedModel{model: buyModel()})

	require.NoError(t, engine.EvaluateAll(context.Background(), now))

	got, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCorrect, got.Outcome, "-8 vs expected -10 is inside the band")
	require.NotNil(t, got.RealizedROIPct)
	assert.True(t, got.RealizedROIPct.Equal(decimal.NewFromInt(8)),
		"a SELL earns the negation of the price change")
}

func TestEvaluateExpiresWithoutOutcome(t *testing.T) {
	created := time.Now().Add(-20 * 24 * time.Hour) // past the 14 day MEDIUM window
	now := time.Now()

	store := newMemStore()
	rec := seedActive(t, store, "maize", created)
	source := &memSource{obs: map[string]*marketdata.Observation{}}
	engine := newTestEngine(store, source, &fixedModel{model: buyModel()})

	require.NoError(t, engine.EvaluateAll(context.Background(), now))

	got, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)
	assert.Empty(t, got.Outcome, "expiry records no outcome")
	assert.Nil(t, got.ActualChangePct)
}

func TestEvaluateWaitsForMinimumWindow(t *testing.T) {
	created := time.Now().Add(-2 * time.Hour)
	now := time.Now()

	store := newMemStore()
	rec := seedActive(t, store, "maize", created)
	source := &memSource{obs: map[string]*marketdata.Observation{
		"maize": {Commodity: "maize", Market: "kampala", Price: decimal.NewFromInt(120), ObservedAt: now},
	}}
	engine := newTestEngine(store, source, &fixedModel{model: buyModel()})

	require.NoError(t, engine.EvaluateAll(context.Background(), now))

	got, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status,
		"observations younger than the minimum window must not settle an outcome")
	assert.Empty(t, got.Outcome)
}

func TestEvaluateHoldIsUnknown(t *testing.T) {
	created := time.Now().Add(-48 * time.Hour)
	now := time.Now()

	store := newMemStore()
	rec := seedActive(t, store, "maize", created)
	store.recs[rec.ID].Type = models.RecommendationHold
	store.recs[rec.ID].ExpectedChangePct = nil
	store.recs[rec.ID].TargetPrice = nil

	source := &memSource{obs: map[string]*marketdata.Observation{
		"maize": {Commodity: "maize", Market: "kampala", Price: decimal.NewFromInt(130), ObservedAt: now},
	}}
	engine := newTestEngine(store, source, &fixedModel{model: buyModel()})

	require.NoError(t, engine.EvaluateAll(context.Background(), now))

	got, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEvaluated, got.Status)
	assert.Equal(t, models.OutcomeUnknown, got.Outcome, "a HOLD makes no verifiable claim")
	require.NotNil(t, got.ActualChangePct, "the observed move is still recorded")
}

func TestEvaluateIsIdempotent(t *testing.T) {
	created := time.Now().Add(-48 * time.Hour)
	now := time.Now()

	store := newMemStore()
	rec := seedActive(t, store, "maize", created)
	source := &memSource{obs: map[string]*marketdata.Observation{
		"maize": {Commodity: "maize", Market: "kampala", Price: decimal.NewFromInt(112), ObservedAt: now},
	}}
	engine := newTestEngine(store, source, &fixedModel{model: buyModel()})

	require.NoError(t, engine.EvaluateAll(context.Background(), now))
	first, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)

	// Second sweep finds nothing ACTIVE and changes nothing
	require.NoError(t, engine.EvaluateAll(context.Background(), now.Add(time.Hour)))
	second, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Outcome, second.Outcome)
	assert.Equal(t, first.LastEvaluatedAt, second.LastEvaluatedAt)
}

func TestEvaluateSkipsItemErrors(t *testing.T) {
	created := time.Now().Add(-48 * time.Hour)
	now := time.Now()

	store := newMemStore()
	seedActive(t, store, "maize", created)
	source := &memSource{err: errors.New("feed down")}
	engine := newTestEngine(store, source, &fixedModel{model: buyModel()})

	// A per-item price failure skips the item; the sweep itself succeeds
	require.NoError(t, engine.EvaluateAll(context.Background(), now))
}

func TestTerminalOutcomeIsWriteOnce(t *testing.T) {
	created := time.Now().Add(-48 * time.Hour)
	store := newMemStore()
	rec := seedActive(t, store, "maize", created)
	store.recs[rec.ID].Status = models.StatusEvaluated
	store.recs[rec.ID].Outcome = models.OutcomeCorrect

	// A late evaluation racing the settled row must not overwrite it
	late := *store.recs[rec.ID]
	late.Outcome = models.OutcomeIncorrect
	require.NoError(t, store.RecordOutcome(context.Background(), &late))
	require.NoError(t, store.MarkExpired(context.Background(), rec.ID))

	got, err := store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEvaluated, got.Status)
	assert.Equal(t, models.OutcomeCorrect, got.Outcome)
}

func TestAcknowledgeLeavesLifecycleAlone(t *testing.T) {
	store := newMemStore()
	rec := seedActive(t, store, "maize", time.Now())
	engine := newTestEngine(store, &memSource{}, &fixedModel{model: buyModel()})

	got, err := engine.Acknowledge(context.Background(), rec.ID, "noted, buying monday")
	require.NoError(t, err)
	assert.True(t, got.Acknowledged)
	assert.Equal(t, "noted, buying monday", got.AcknowledgementNote)
	assert.Equal(t, models.StatusActive, got.Status, "acknowledgement is not a lifecycle transition")
	assert.Empty(t, got.Outcome)
}

func TestAcknowledgeUnknownID(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store, &memSource{}, &fixedModel{model: buyModel()})

	_, err := engine.Acknowledge(context.Background(), 999, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

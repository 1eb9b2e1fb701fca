package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/datasource"
	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/marketdata"
	"github.com/yourusername/furlong/internal/metrics"
	"github.com/yourusername/furlong/internal/models"
)

var raceStart = time.Date(2026, 6, 6, 15, 0, 0, 0, time.UTC)

type fakeFeed struct {
	cards    map[models.Segment][]datasource.RaceCard
	outcomes map[string]*models.RaceOutcome
}

func (f *fakeFeed) Upcoming(_ context.Context, segment models.Segment, _ time.Duration) ([]datasource.RaceCard, error) {
	return f.cards[segment], nil
}

func (f *fakeFeed) Outcome(_ context.Context, raceID string) (*models.RaceOutcome, error) {
	o, ok := f.outcomes[raceID]
	if !ok {
		return nil, &datasource.FeedError{Path: "outcome", Status: 404, Code: datasource.ErrCodeNotFound, Err: datasource.ErrNotFound}
	}
	return o, nil
}

type fakePredictor struct {
	version int64
	prices  []models.MarketPrices
}

func (p *fakePredictor) Predict(_ context.Context, raceID string, segment models.Segment, vectors []models.FeatureVector, prices models.MarketPrices) (*models.PredictionRecord, error) {
	if segment == "dirt" {
		return nil, fmt.Errorf("segment dirt: %w", models.ErrModelUnavailable)
	}
	p.prices = append(p.prices, prices)
	rec := &models.PredictionRecord{ID: uuid.New(), RaceID: raceID, Segment: segment, ArtifactVersion: p.version}
	for i, v := range vectors {
		rec.Horses = append(rec.Horses, models.HorsePrediction{HorseID: v.HorseID, CompositeRank: i + 1})
	}
	return rec, nil
}

type recordingNotifier struct {
	races []string
}

func (n *recordingNotifier) NotifyPrediction(_ context.Context, rec *models.PredictionRecord) error {
	n.races = append(n.races, rec.RaceID)
	return nil
}

type failingPrices struct{}

func (failingPrices) Prices(context.Context, string) (models.MarketPrices, error) {
	return nil, fmt.Errorf("redis down")
}

func card(segment models.Segment, race string, horses ...string) datasource.RaceCard {
	c := datasource.RaceCard{RaceID: race, Segment: segment, StartTime: raceStart}
	for i, h := range horses {
		c.Vectors = append(c.Vectors, models.FeatureVector{RaceID: race, HorseID: h, Position: i + 1, Segment: segment})
	}
	return c
}

func newTestLive() (*Live, *fakeFeed, *fakePredictor, *recordingNotifier) {
	feed := &fakeFeed{
		cards: map[models.Segment][]datasource.RaceCard{
			"turf": {card("turf", "turf-r1", "a", "b", "c"), card("turf", "turf-r2", "d", "e")},
			"dirt": {card("dirt", "dirt-r1", "x", "y")},
		},
		outcomes: map[string]*models.RaceOutcome{},
	}
	predictor := &fakePredictor{version: 1}
	notifier := &recordingNotifier{}
	live := NewLive(feed, marketdata.Chain{failingPrices{}}, predictor, notifier, config.NewHolder(config.DefaultEngineConfig()), logger.Discard())
	live.now = func() time.Time { return raceStart.Add(10 * time.Minute) }
	return live, feed, predictor, notifier
}

func TestPredictUpcomingAnnouncesOncePerVersion(t *testing.T) {
	live, _, predictor, notifier := newTestLive()
	ctx := context.Background()

	n, err := live.PredictUpcoming(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"turf-r1", "turf-r2"}, notifier.races)
	assert.Equal(t, 2, live.Pending())
	require.NotEmpty(t, predictor.prices)
	assert.Empty(t, predictor.prices[0], "price failure predicts without prices")

	n, err = live.PredictUpcoming(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, notifier.races, 2)

	predictor.version = 2
	n, err = live.PredictUpcoming(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "new champion re-announces")
}

func TestSettleClassifiesOfficialResults(t *testing.T) {
	live, feed, _, _ := newTestLive()
	ctx := context.Background()
	_, err := live.PredictUpcoming(ctx, time.Hour)
	require.NoError(t, err)

	win := models.MarketPrices{}
	win.Set(models.MarketWin, "b", decimal.NewFromInt(4))
	feed.outcomes["turf-r1"] = &models.RaceOutcome{RaceID: "turf-r1", Segment: "turf", FinishOrder: []string{"b", "a", "c"}, ClosingPrices: win}

	hits := metrics.RaceResultsTotal.WithLabelValues("turf", string(models.FailureHit))
	before := testutil.ToFloat64(hits)

	reports, err := live.Settle(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, models.FailureHit, reports[0].Category)
	assert.Equal(t, before+1, testutil.ToFloat64(hits), "settled races are counted")
	assert.Equal(t, 2, reports[0].PredictedRank)
	assert.True(t, reports[0].StartTime.Equal(raceStart))
	assert.Equal(t, 1, live.Pending(), "turf-r2 has no result yet")

	days, coverage := live.Summary()
	require.Len(t, days, 1)
	assert.Equal(t, 1, days[0].Counts[models.FailureHit])
	require.Len(t, coverage, 1)
	assert.Equal(t, models.Segment("turf"), coverage[0].Segment)
}

func TestSettleWaitsForStart(t *testing.T) {
	live, feed, _, _ := newTestLive()
	live.now = func() time.Time { return raceStart.Add(-time.Minute) }
	_, err := live.PredictUpcoming(context.Background(), time.Hour)
	require.NoError(t, err)
	feed.outcomes["turf-r1"] = &models.RaceOutcome{RaceID: "turf-r1", FinishOrder: []string{"a"}}

	reports, err := live.Settle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Equal(t, 2, live.Pending())
}

func TestSettleKeepsTrailingWindow(t *testing.T) {
	live, feed, _, _ := newTestLive()
	ctx := context.Background()
	_, err := live.PredictUpcoming(ctx, time.Hour)
	require.NoError(t, err)
	feed.outcomes["turf-r1"] = &models.RaceOutcome{RaceID: "turf-r1", Segment: "turf", FinishOrder: []string{"a", "b", "c"}}

	_, err = live.Settle(ctx)
	require.NoError(t, err)
	days, _ := live.Summary()
	require.Len(t, days, 1)

	live.now = func() time.Time { return raceStart.Add(settledRetention - time.Hour) }
	_, err = live.Settle(ctx)
	require.NoError(t, err)
	days, _ = live.Summary()
	assert.Len(t, days, 1, "inside the window")

	live.now = func() time.Time { return raceStart.Add(settledRetention + time.Hour) }
	_, err = live.Settle(ctx)
	require.NoError(t, err)
	days, coverage := live.Summary()
	assert.Empty(t, days)
	assert.Empty(t, coverage)
	assert.Equal(t, 1, live.Pending(), "unsettled races are not trimmed")
}

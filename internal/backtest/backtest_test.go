package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/testutil"
)

var start = time.Date(2025, 1, 1, 14, 0, 0, 0, time.UTC)

func TestAUC(t *testing.T) {
	assert.Equal(t, 1.0, AUC([]float64{0.1, 0.2, 0.8, 0.9}, []bool{false, false, true, true}))
	assert.Equal(t, 0.0, AUC([]float64{0.9, 0.8, 0.2, 0.1}, []bool{false, false, true, true}))
	assert.Equal(t, 0.5, AUC([]float64{0.1, 0.2}, []bool{true, true}))
	assert.InDelta(t, 0.5, AUC([]float64{0.5, 0.5, 0.5, 0.5}, []bool{true, false, true, false}), 1e-12)
}

func TestSplitByTimeIsChronological(t *testing.T) {
	races := testutil.Races(1, "turf", 100, start)
	// shuffle-ish: reverse input order
	for i, j := 0, len(races)-1; i < j; i, j = i+1, j-1 {
		races[i], races[j] = races[j], races[i]
	}
	split, err := SplitByTime(races, SplitConfig{TrainFraction: 0.7, ValidationFraction: 0.15, HoldoutFraction: 0.15})
	require.NoError(t, err)
	assert.Len(t, split.Train, 70)
	assert.Len(t, split.Validation, 15)
	assert.Len(t, split.Holdout, 15)

	_, trainEnd := Window(split.Train)
	valStart, valEnd := Window(split.Validation)
	holdStart, _ := Window(split.Holdout)
	assert.True(t, valStart.After(trainEnd))
	assert.True(t, holdStart.After(valEnd))
}

func TestSplitByTimeNeverSplitsSameStart(t *testing.T) {
	races := testutil.Races(2, "turf", 20, start)
	for i := range races {
		// pairs of races share a start time
		races[i].StartTime = start.AddDate(0, 0, i/2)
	}
	split, err := SplitByTime(races, SplitConfig{TrainFraction: 0.55, ValidationFraction: 0.2, HoldoutFraction: 0.25})
	require.NoError(t, err)

	_, trainEnd := Window(split.Train)
	valStart, valEnd := Window(split.Validation)
	holdStart, _ := Window(split.Holdout)
	assert.True(t, valStart.After(trainEnd))
	assert.True(t, holdStart.After(valEnd))
}

func TestSplitByTimeTooFewRaces(t *testing.T) {
	_, err := SplitByTime(testutil.Races(3, "turf", 2, start), SplitConfig{TrainFraction: 0.7, ValidationFraction: 0.15, HoldoutFraction: 0.15})
	assert.ErrorIs(t, err, models.ErrInsufficientData)
}

func TestEvaluateDeterministic(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	holdout := testutil.Races(7, "turf", 60, start)
	artifact := testutil.Artifact("turf")
	ev := NewEvaluator(cfg)

	first, err := ev.Evaluate(context.Background(), artifact, holdout)
	require.NoError(t, err)
	second, err := ev.Evaluate(context.Background(), artifact, holdout)
	require.NoError(t, err)

	assert.Equal(t, first.Metrics, second.Metrics)
	m := first.Metrics
	assert.Equal(t, 60, m.Races)
	assert.Equal(t, models.SampleCount(holdout), m.Samples)
	assert.Greater(t, m.WinAUC, 0.6, "fixture artifact ranks by the true strength drivers")
	assert.Greater(t, m.PlaceAUC, 0.6)
	assert.Greater(t, m.TopKCoverage, 0.0)
	assert.GreaterOrEqual(t, m.CompositeScore, 0.0)
	assert.LessOrEqual(t, m.CompositeScore, 1.0)
	assert.Len(t, first.Replays, 60)
}

func TestEvaluateFailures(t *testing.T) {
	ev := NewEvaluator(config.DefaultEngineConfig())
	_, err := ev.Evaluate(context.Background(), testutil.Artifact("turf"), nil)
	assert.ErrorIs(t, err, models.ErrEvaluationFailure)

	broken := testutil.Artifact("turf")
	broken.Members[0].Coefficients = []float64{1}
	_, err = ev.Evaluate(context.Background(), broken, testutil.Races(1, "turf", 5, start))
	assert.ErrorIs(t, err, models.ErrEvaluationFailure)

	mixed := testutil.Races(1, "dirt", 5, start)
	_, err = ev.Evaluate(context.Background(), testutil.Artifact("turf"), mixed)
	assert.ErrorIs(t, err, models.ErrEvaluationFailure, "a turf artifact is never scored on dirt races")
}

func TestCompositeScore(t *testing.T) {
	perfect := models.MetricSet{
		WinAUC: 1, PlaceAUC: 1, QuinellaHitRate: 1, TopKCoverage: 1,
		WinReturn: decimal.NewFromInt(1), PlaceReturn: decimal.NewFromInt(1),
	}
	assert.InDelta(t, 1.0, CompositeScore(perfect), 1e-9)

	chance := models.MetricSet{WinAUC: 0.5, PlaceAUC: 0.5, WinReturn: decimal.NewFromFloat(-0.5), PlaceReturn: decimal.NewFromFloat(-0.5)}
	assert.Equal(t, 0.0, CompositeScore(chance))

	mid := models.MetricSet{WinAUC: 0.75, PlaceAUC: 0.5, TopKCoverage: 0.5}
	// 0.5*0.25 + 0.5*0.20 + (1/3)*0.15 + (1/3)*0.10
	assert.InDelta(t, 0.3083, CompositeScore(mid), 1e-4)
}

func TestMonteCarloSeeded(t *testing.T) {
	replays := []RaceReplay{
		{Return: decimal.NewFromInt(2)},
		{Return: decimal.NewFromInt(-1)},
		{Return: decimal.NewFromInt(-1)},
		{Return: decimal.Zero},
	}
	a := RunMonteCarlo(replays, MonteCarloConfig{Iterations: 500, Seed: 9})
	b := RunMonteCarlo(replays, MonteCarloConfig{Iterations: 500, Seed: 9})
	assert.Equal(t, a, b)
	assert.InDelta(t, 0.0, a.MeanReturn, 0.5)
	assert.Greater(t, a.ConfidenceIntervals["95%"], 0.0)
	assert.Equal(t, 1000, RunMonteCarlo(nil, MonteCarloConfig{}).Iterations)
}

func TestEquityCurveDrawdown(t *testing.T) {
	rec := &models.PredictionRecord{RaceID: "r"}
	replays := []RaceReplay{
		{Record: rec, Return: decimal.NewFromInt(3)},
		{Record: rec, Return: decimal.NewFromInt(-2)},
		{Record: rec, Return: decimal.NewFromInt(-2)},
		{Record: rec, Return: decimal.NewFromInt(5)},
	}
	curve := BuildEquityCurve(replays)
	assert.True(t, curve.MaxDrawdown().Equal(decimal.NewFromInt(4)))
	assert.True(t, curve.Final().Equal(decimal.NewFromInt(4)))
}

func TestWriteYAMLReport(t *testing.T) {
	current := models.MetricSet{WinAUC: 0.6}
	result := models.BacktestResult{
		Segment:     "turf",
		CandidateID: uuid.New(),
		CurrentID:   uuid.New(),
		Candidate:   models.MetricSet{WinAUC: 0.62, Races: 40},
		Current:     &current,
		Promote:     true,
		Outcome:     models.OutcomePromoted,
		Reason:      "calibration improved",
	}
	report := NewReport(result, nil, nil)
	out := filepath.Join(t.TempDir(), "reports", "turf.yaml")
	require.NoError(t, WriteYAMLReport(report, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var parsed map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Equal(t, "turf", parsed["segment"])
	assert.Equal(t, "promoted", parsed["outcome"])

	console := GenerateConsoleReport(report)
	assert.Contains(t, console, "win_auc")
	assert.Contains(t, console, "0.6200")
}

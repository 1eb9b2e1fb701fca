package analysis

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/models"
)

var day = time.Date(2026, 5, 2, 15, 0, 0, 0, time.UTC)

// race builds a ten-horse race predicted in order h1..h10 where winner won
// at the given closing win price.
func race(id string, segment models.Segment, winner string, odds float64, when time.Time) Race {
	rec := &models.PredictionRecord{RaceID: id, Segment: segment}
	for i := 1; i <= 10; i++ {
		rec.Horses = append(rec.Horses, models.HorsePrediction{HorseID: fmt.Sprintf("h%d", i), Position: i})
	}
	prices := models.MarketPrices{}
	if odds > 0 {
		prices.Set(models.MarketWin, winner, decimal.NewFromFloat(odds))
	}
	return Race{
		Record: rec,
		Outcome: models.RaceOutcome{
			RaceID:        id,
			Segment:       segment,
			StartTime:     when,
			FinishOrder:   []string{winner, "x"},
			ClosingPrices: prices,
		},
	}
}

func TestClassifyFailure(t *testing.T) {
	cfg := config.DefaultEngineConfig().Failure

	tests := []struct {
		name   string
		winner string
		odds   float64
		want   models.FailureCategory
		rank   int
	}{
		{"top pick wins", "h1", 2.5, models.FailureHit, 1},
		{"third pick wins", "h3", 8, models.FailureHit, 3},
		{"favorite ranked seventh", "h7", 3, models.FailureBlindSpot, 7},
		{"fourth pick wins", "h4", 6, models.FailureCloseCall, 4},
		{"fifth pick at long odds is still close", "h5", 30, models.FailureCloseCall, 5},
		{"unranked longshot", "h9", 22, models.FailureUpset, 9},
		{"winner not in record", "ghost", 22, models.FailureUpset, 0},
		{"mid-priced sixth", "h6", 7, models.FailureMiss, 6},
		{"no price, sixth", "h6", 0, models.FailureMiss, 6},
		{"upset threshold is inclusive", "h8", 10, models.FailureUpset, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := race("r1", "turf", tt.winner, tt.odds, day)
			got, err := ClassifyFailure(r.Record, r.Outcome, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Category)
			assert.Equal(t, tt.rank, got.PredictedRank)
			assert.Equal(t, tt.want != models.FailureHit, got.Category.IsFailure())
		})
	}
}

func TestClassifyFailureMismatch(t *testing.T) {
	r := race("r1", "turf", "h1", 2, day)
	r.Outcome.RaceID = "r2"
	_, err := ClassifyFailure(r.Record, r.Outcome, config.DefaultEngineConfig().Failure)
	assert.ErrorIs(t, err, ErrRaceMismatch)

	reports := ClassifyAll([]Race{r, race("r3", "turf", "h1", 2, day), {}}, config.DefaultEngineConfig().Failure)
	require.Len(t, reports, 1)
	assert.Equal(t, "r3", reports[0].RaceID)
}

func TestSummarizeFailures(t *testing.T) {
	cfg := config.DefaultEngineConfig().Failure
	next := day.AddDate(0, 0, 1)
	races := []Race{
		race("a", "turf", "h1", 2, next),
		race("b", "turf", "h2", 3, day),
		race("c", "turf", "h4", 6, day.Add(2*time.Hour)),
		race("d", "turf", "h9", 25, day.Add(3*time.Hour)),
	}
	summary := SummarizeFailures(ClassifyAll(races, cfg))
	require.Len(t, summary, 2)

	first := summary[0]
	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, 3, first.Races)
	assert.Equal(t, 1, first.Counts[models.FailureHit])
	assert.Equal(t, 1, first.Counts[models.FailureCloseCall])
	assert.Equal(t, 1, first.Counts[models.FailureUpset])
	assert.InDelta(t, (1.0/2+1.0/4+1.0/9)/3, first.MRR, 1e-9)
	assert.InDelta(t, 1.0/3, first.HitRate(), 1e-9)

	assert.Equal(t, 1, summary[1].Counts[models.FailureHit])
	assert.Equal(t, 1.0, summary[1].MRR)
}

func TestDetectWeakSegments(t *testing.T) {
	var races []Race
	for i := 0; i < 10; i++ {
		races = append(races, race(fmt.Sprintf("t%d", i), "turf", "h1", 2, day))
	}
	for i := 0; i < 10; i++ {
		winner := "h8"
		if i < 3 {
			winner = "h2"
		}
		races = append(races, race(fmt.Sprintf("d%d", i), "dirt", winner, 5, day))
	}

	cov := DetectWeakSegments(races, 3, 0.7)
	require.Len(t, cov, 2)
	// overall 13/20 = 0.65, threshold 0.455
	assert.Equal(t, models.Segment("dirt"), cov[0].Segment)
	assert.InDelta(t, 0.3, cov[0].Rate, 1e-9)
	assert.True(t, cov[0].Weak)
	assert.Equal(t, models.Segment("turf"), cov[1].Segment)
	assert.False(t, cov[1].Weak)

	assert.Nil(t, DetectWeakSegments(nil, 3, 0.7))
}

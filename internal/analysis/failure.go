// Package analysis classifies concluded races against their predictions and
// summarizes where the models miss.
package analysis

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/metrics"
	"github.com/yourusername/furlong/internal/models"
)

// ErrRaceMismatch is returned when a prediction and an outcome describe different races
var ErrRaceMismatch = errors.New("prediction and outcome are for different races")

// closeCallRanks is the last rank outside the hit zone still counted as close
const closeCallRanks = 5

// Race pairs a prediction with the outcome of the same race
type Race struct {
	Record  *models.PredictionRecord
	Outcome models.RaceOutcome
}

// FailureReport is the classification of one race
type FailureReport struct {
	RaceID        string                 `json:"race_id"`
	Segment       models.Segment         `json:"segment"`
	StartTime     time.Time              `json:"start_time"`
	WinnerID      string                 `json:"winner_id"`
	PredictedRank int                    `json:"predicted_rank"`
	WinnerOdds    decimal.Decimal        `json:"winner_odds"`
	HasOdds       bool                   `json:"has_odds"`
	Category      models.FailureCategory `json:"category"`
}

// ClassifyFailure categorizes a race by where its winner sat in the predicted
// order and at what closing win price. Rules are checked in order: upset,
// close-call, blind-spot, hit. A winner ranked sixth or lower priced between
// the favorite and upset thresholds, or without a price, is a miss.
func ClassifyFailure(rec *models.PredictionRecord, outcome models.RaceOutcome, cfg config.FailureConfig) (FailureReport, error) {
	if rec.RaceID != outcome.RaceID {
		return FailureReport{}, fmt.Errorf("%s vs %s: %w", rec.RaceID, outcome.RaceID, ErrRaceMismatch)
	}
	winner := outcome.Winner()
	r := FailureReport{
		RaceID:        rec.RaceID,
		Segment:       rec.Segment,
		StartTime:     outcome.StartTime,
		WinnerID:      winner,
		PredictedRank: rec.PredictedRank(winner),
	}
	r.WinnerOdds, r.HasOdds = outcome.ClosingPrice(models.MarketWin, winner)

	upset := decimal.NewFromFloat(cfg.UpsetOdds)
	favorite := decimal.NewFromFloat(cfg.FavoriteOdds)
	outsideTop := r.PredictedRank == 0 || r.PredictedRank > closeCallRanks

	switch {
	case outsideTop && r.HasOdds && r.WinnerOdds.GreaterThanOrEqual(upset):
		r.Category = models.FailureUpset
	case r.PredictedRank == 4 || r.PredictedRank == 5:
		r.Category = models.FailureCloseCall
	case outsideTop && r.HasOdds && r.WinnerOdds.LessThan(favorite):
		r.Category = models.FailureBlindSpot
	case r.PredictedRank >= 1 && r.PredictedRank <= 3:
		r.Category = models.FailureHit
	default:
		r.Category = models.FailureMiss
	}
	return r, nil
}

// ClassifyAll classifies every race and records each category. Pairs that
// do not describe the same race are skipped.
func ClassifyAll(races []Race, cfg config.FailureConfig) []FailureReport {
	out := make([]FailureReport, 0, len(races))
	for _, race := range races {
		if race.Record == nil {
			continue
		}
		r, err := ClassifyFailure(race.Record, race.Outcome, cfg)
		if err != nil {
			continue
		}
		metrics.RecordRaceResult(string(r.Segment), string(r.Category))
		out = append(out, r)
	}
	return out
}

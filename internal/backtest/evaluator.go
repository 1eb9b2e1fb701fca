// Package backtest scores model artifacts against time-sliced holdout races
// and produces comparable metric sets.
package backtest

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yourusername/furlong/internal/calibration"
	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/prediction"
	"github.com/yourusername/furlong/internal/scoring"
)

// RaceReplay is one holdout race replayed through the prediction pipeline
type RaceReplay struct {
	Record  *models.PredictionRecord
	Outcome models.RaceOutcome
	// Return is the net flat-stake profit of the race's recommended bets
	Return decimal.Decimal
}

// Evaluation is the metric set plus the replays it was computed from
type Evaluation struct {
	Metrics models.MetricSet
	Replays []RaceReplay
}

// Evaluator computes holdout metrics. It holds no state beyond the engine
// configuration, so the same inputs always give the same metrics.
type Evaluator struct {
	cfg config.EngineConfig
}

// NewEvaluator creates an evaluator
func NewEvaluator(cfg config.EngineConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate replays every holdout race with artifact. Recommendations are
// priced on closing prices with the live EV rule. Failures wrap
// models.ErrEvaluationFailure.
func (e *Evaluator) Evaluate(ctx context.Context, artifact *models.ModelArtifact, holdout []models.LabeledRace) (*Evaluation, error) {
	if len(holdout) == 0 {
		return nil, fmt.Errorf("empty holdout: %w", models.ErrEvaluationFailure)
	}
	ens, err := scoring.NewEnsemble(artifact)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrEvaluationFailure)
	}

	var (
		winScores, placeScores []float64
		winLabels, placeLabels []bool
		covered, quinella      int
		anchorPlaced, anchors  int
		winBets, placeBets     tally
		anchorBets             tally
	)
	eval := &Evaluation{Replays: make([]RaceReplay, 0, len(holdout))}

	for _, race := range holdout {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if race.Segment != artifact.Segment {
			return nil, fmt.Errorf("race %s is %s, artifact is %s: %w", race.RaceID, race.Segment, artifact.Segment, models.ErrEvaluationFailure)
		}
		rec, err := prediction.PredictWith(ens, race.RaceID, race.Segment, race.Vectors, race.Outcome.ClosingPrices, e.cfg)
		if err != nil {
			return nil, fmt.Errorf("race %s: %v: %w", race.RaceID, err, models.ErrEvaluationFailure)
		}
		outcome := race.Outcome
		field := len(race.Vectors)

		for _, h := range rec.Horses {
			winScores = append(winScores, h.WinProbability)
			winLabels = append(winLabels, outcome.Winner() == h.HorseID)
			placeScores = append(placeScores, h.PlaceProbability)
			placeLabels = append(placeLabels, outcome.Placed(h.HorseID, field))
		}

		for _, id := range rec.TopN(e.cfg.TopK) {
			if id == outcome.Winner() {
				covered++
				break
			}
		}
		if quinellaHit(rec, outcome) {
			quinella++
		}

		if rec.AnchorHorseID != "" {
			anchors++
			placed := outcome.Placed(rec.AnchorHorseID, field)
			if placed {
				anchorPlaced++
			}
			if price, ok := outcome.ClosingPrice(models.MarketPlace, rec.AnchorHorseID); ok {
				anchorBets.add(placed, price)
			}
		}

		var raceBets tally
		for _, id := range rec.Recommendations[models.MarketWin] {
			price, _ := outcome.ClosingPrice(models.MarketWin, id)
			won := outcome.Winner() == id
			winBets.add(won, price)
			raceBets.add(won, price)
		}
		for _, id := range rec.Recommendations[models.MarketPlace] {
			price, _ := outcome.ClosingPrice(models.MarketPlace, id)
			placed := outcome.Placed(id, field)
			placeBets.add(placed, price)
			raceBets.add(placed, price)
		}

		eval.Replays = append(eval.Replays, RaceReplay{
			Record:  rec,
			Outcome: outcome,
			Return:  raceBets.payout.Sub(raceBets.stake),
		})
	}

	m := models.MetricSet{
		WinAUC:           round4(AUC(winScores, winLabels)),
		PlaceAUC:         round4(AUC(placeScores, placeLabels)),
		BrierScore:       round4(calibration.Brier(winScores, winLabels)),
		CalibrationError: round4(calibration.ExpectedCalibrationError(winScores, winLabels, 10)),
		TopKCoverage:     round4(ratio(covered, len(holdout))),
		QuinellaHitRate:  round4(ratio(quinella, len(holdout))),
		AnchorPlaceRate:  round4(ratio(anchorPlaced, anchors)),
		AnchorPlaceROI:   anchorBets.roi(),
		WinReturn:        winBets.roi(),
		PlaceReturn:      placeBets.roi(),
		RealizedReturn:   winBets.merge(placeBets).roi(),
		WinBets:          winBets.bets,
		PlaceBets:        placeBets.bets,
		Races:            len(holdout),
		Samples:          len(winScores),
	}
	m.CompositeScore = CompositeScore(m)
	eval.Metrics = m
	return eval, nil
}

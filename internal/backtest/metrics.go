package backtest

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/furlong/internal/models"
)

// AUC returns the area under the ROC curve of scores against labels. It
// returns 0.5 when only one class is present.
func AUC(scores []float64, labels []bool) float64 {
	if len(scores) < 2 {
		return 0.5
	}
	var pos int
	for _, l := range labels {
		if l {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return 0.5
	}

	y := make([]float64, len(scores))
	classes := make([]bool, len(labels))
	copy(y, scores)
	copy(classes, labels)
	stat.SortWeightedLabeled(y, classes, nil)

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	if len(tpr) < 2 {
		return 0.5
	}
	return integrate.Trapezoidal(fpr, tpr)
}

// tally accumulates flat-stake bets
type tally struct {
	bets   int
	stake  decimal.Decimal
	payout decimal.Decimal
}

func (t *tally) add(won bool, price decimal.Decimal) {
	t.bets++
	t.stake = t.stake.Add(decimal.NewFromInt(1))
	if won {
		t.payout = t.payout.Add(price)
	}
}

// roi returns (payout - stake) / stake rounded to 4 places, zero without bets
func (t tally) roi() decimal.Decimal {
	if t.stake.IsZero() {
		return decimal.Zero
	}
	return t.payout.Sub(t.stake).Div(t.stake).Round(4)
}

func (t tally) merge(o tally) tally {
	return tally{bets: t.bets + o.bets, stake: t.stake.Add(o.stake), payout: t.payout.Add(o.payout)}
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// quinellaHit reports whether the top two predicted are the first two home
func quinellaHit(rec *models.PredictionRecord, outcome models.RaceOutcome) bool {
	if len(rec.Horses) < 2 || len(outcome.FinishOrder) < 2 {
		return false
	}
	top := rec.TopN(2)
	first, second := outcome.FinishOrder[0], outcome.FinishOrder[1]
	return (top[0] == first && top[1] == second) || (top[0] == second && top[1] == first)
}

func round4(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*1e4) / 1e4
}

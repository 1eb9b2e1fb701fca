package backtest

import (
	"time"

	"github.com/shopspring/decimal"
)

// EquityPoint is the cumulative net return after one holdout race
type EquityPoint struct {
	Time     time.Time       `json:"time" yaml:"time"`
	RaceID   string          `json:"race_id" yaml:"race_id"`
	Value    decimal.Decimal `json:"value" yaml:"value"`
	Drawdown decimal.Decimal `json:"drawdown" yaml:"drawdown"`
}

// EquityCurve is the running flat-stake result over a holdout
type EquityCurve []EquityPoint

// BuildEquityCurve accumulates replay returns in race order
func BuildEquityCurve(replays []RaceReplay) EquityCurve {
	curve := make(EquityCurve, 0, len(replays))
	value := decimal.Zero
	peak := decimal.Zero
	for _, r := range replays {
		value = value.Add(r.Return)
		if value.GreaterThan(peak) {
			peak = value
		}
		curve = append(curve, EquityPoint{
			Time:     r.Outcome.StartTime,
			RaceID:   r.Record.RaceID,
			Value:    value,
			Drawdown: peak.Sub(value),
		})
	}
	return curve
}

// MaxDrawdown returns the largest peak-to-trough fall in units staked
func (e EquityCurve) MaxDrawdown() decimal.Decimal {
	worst := decimal.Zero
	for _, p := range e {
		if p.Drawdown.GreaterThan(worst) {
			worst = p.Drawdown
		}
	}
	return worst
}

// Final returns the closing cumulative value
func (e EquityCurve) Final() decimal.Decimal {
	if len(e) == 0 {
		return decimal.Zero
	}
	return e[len(e)-1].Value
}

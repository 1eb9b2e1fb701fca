package backtest

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// MonteCarloConfig configures the bootstrap of holdout returns
type MonteCarloConfig struct {
	Iterations int
	Seed       uint64
}

// MonteCarloResult summarizes resampled total returns per staked unit
type MonteCarloResult struct {
	Iterations          int                `json:"iterations" yaml:"iterations"`
	MeanReturn          float64            `json:"mean_return" yaml:"mean_return"`
	StdReturn           float64            `json:"std_return" yaml:"std_return"`
	VaR95               float64            `json:"var_95" yaml:"var_95"`
	ProbabilityOfProfit float64            `json:"probability_of_profit" yaml:"probability_of_profit"`
	ConfidenceIntervals map[string]float64 `json:"confidence_intervals" yaml:"confidence_intervals"`
}

// RunMonteCarlo resamples replayed races with replacement and reports the
// distribution of the summed net return. Races without bets contribute zero.
func RunMonteCarlo(replays []RaceReplay, cfg MonteCarloConfig) MonteCarloResult {
	if cfg.Iterations <= 0 {
		cfg.Iterations = 1000
	}
	result := MonteCarloResult{Iterations: cfg.Iterations}
	if len(replays) == 0 {
		return result
	}

	returns := make([]float64, len(replays))
	for i, r := range replays {
		returns[i], _ = r.Return.Float64()
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))
	distribution := make([]float64, cfg.Iterations)
	for i := range distribution {
		var total float64
		for range returns {
			total += returns[rng.IntN(len(returns))]
		}
		distribution[i] = total
	}
	sort.Float64s(distribution)

	result.MeanReturn, result.StdReturn = stat.MeanStdDev(distribution, nil)
	result.VaR95 = stat.Quantile(0.05, stat.Empirical, distribution, nil)
	result.ProbabilityOfProfit = probabilityAbove(distribution, 0)
	result.ConfidenceIntervals = CalculateConfidenceIntervals(distribution, []float64{0.9, 0.95})
	return result
}

// CalculateConfidenceIntervals returns the width of central intervals of a
// sorted distribution
func CalculateConfidenceIntervals(sorted []float64, levels []float64) map[string]float64 {
	results := make(map[string]float64, len(levels))
	for _, level := range levels {
		p := (1.0 - level) / 2.0
		low := stat.Quantile(p, stat.Empirical, sorted, nil)
		high := stat.Quantile(1-p, stat.Empirical, sorted, nil)
		results[fmt.Sprintf("%.0f%%", level*100)] = high - low
	}
	return results
}

func probabilityAbove(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v > threshold {
			count++
		}
	}
	return float64(count) / float64(len(values))
}

package calibration

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/yourusername/furlong/internal/models"
)

// BinStat summarizes predicted vs observed rate in one probability bin
type BinStat struct {
	Lower         float64 `json:"lower" yaml:"lower"`
	Upper         float64 `json:"upper" yaml:"upper"`
	Count         int     `json:"count" yaml:"count"`
	MeanPredicted float64 `json:"mean_predicted" yaml:"mean_predicted"`
	ObservedRate  float64 `json:"observed_rate" yaml:"observed_rate"`
}

// ReliabilityReport compares raw and calibrated probabilities on a sample set
type ReliabilityReport struct {
	Bins        []BinStat `json:"bins" yaml:"bins"`
	BrierBefore float64   `json:"brier_before" yaml:"brier_before"`
	BrierAfter  float64   `json:"brier_after" yaml:"brier_after"`
	ECE         float64   `json:"ece" yaml:"ece"`
}

// Brier returns the mean squared error between probabilities and outcomes
func Brier(probs []float64, outcomes []bool) float64 {
	if len(probs) == 0 {
		return 0
	}
	diffs := make([]float64, len(probs))
	for i, p := range probs {
		d := p - outcomeValue(outcomes[i])
		diffs[i] = d * d
	}
	return floats.Sum(diffs) / float64(len(diffs))
}

// ReliabilityBins groups predictions into equal-width probability bins
func ReliabilityBins(probs []float64, outcomes []bool, bins int) []BinStat {
	if bins < 1 {
		bins = 1
	}
	stats := make([]BinStat, bins)
	sums := make([]float64, bins)
	hits := make([]float64, bins)
	width := 1 / float64(bins)
	for i := range stats {
		stats[i].Lower = float64(i) * width
		stats[i].Upper = float64(i+1) * width
	}
	for i, p := range probs {
		b := int(math.Floor(p / width))
		if b >= bins {
			b = bins - 1
		}
		if b < 0 {
			b = 0
		}
		stats[b].Count++
		sums[b] += p
		hits[b] += outcomeValue(outcomes[i])
	}
	for i := range stats {
		if stats[i].Count > 0 {
			stats[i].MeanPredicted = sums[i] / float64(stats[i].Count)
			stats[i].ObservedRate = hits[i] / float64(stats[i].Count)
		}
	}
	return stats
}

// ExpectedCalibrationError is the count-weighted gap between predicted and
// observed rates across equal-width bins
func ExpectedCalibrationError(probs []float64, outcomes []bool, bins int) float64 {
	if len(probs) == 0 {
		return 0
	}
	var ece float64
	for _, b := range ReliabilityBins(probs, outcomes, bins) {
		if b.Count == 0 {
			continue
		}
		ece += float64(b.Count) * math.Abs(b.MeanPredicted-b.ObservedRate)
	}
	return ece / float64(len(probs))
}

// Report evaluates a calibration map on samples. The raw Brier score treats
// the score itself as a probability, so it is only meaningful for
// probability-style members.
func Report(samples []Sample, m models.CalibrationMap, bins int) ReliabilityReport {
	raw := make([]float64, len(samples))
	calibrated := make([]float64, len(samples))
	outcomes := make([]bool, len(samples))
	for i, s := range samples {
		raw[i] = clamp01(s.Score)
		calibrated[i] = m.Probability(s.Score)
		outcomes[i] = s.Outcome
	}
	return ReliabilityReport{
		Bins:        ReliabilityBins(calibrated, outcomes, bins),
		BrierBefore: Brier(raw, outcomes),
		BrierAfter:  Brier(calibrated, outcomes),
		ECE:         ExpectedCalibrationError(calibrated, outcomes, bins),
	}
}

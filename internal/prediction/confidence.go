package prediction

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/scoring"
)

// EstimateInterval returns the weighted mean of member probabilities and a
// symmetric interval of half-width z times their weighted population
// standard deviation, clipped to [0,1]. A single member yields a point.
func EstimateInterval(members []scoring.MemberProbability, z float64) (float64, models.Interval) {
	if len(members) == 0 {
		return 0, models.Interval{}
	}
	probs := make([]float64, len(members))
	weights := make([]float64, len(members))
	for i, m := range members {
		probs[i] = m.Probability
		weights[i] = m.Weight
	}
	mean, std := stat.PopMeanStdDev(probs, weights)
	if len(members) < 2 || math.IsNaN(std) || floats.Max(probs) == floats.Min(probs) {
		mean, std = probs[0], 0
	}
	half := z * std
	return mean, models.Interval{
		Lower: math.Max(0, mean-half),
		Upper: math.Min(1, mean+half),
	}
}

// RaceConfidence is one minus the normalized entropy of the win
// probabilities; 1 means one clear favourite, 0 a uniform field.
func RaceConfidence(winProbs []float64) float64 {
	if len(winProbs) < 2 {
		return 1
	}
	var total float64
	for _, p := range winProbs {
		total += p
	}
	if total <= 0 {
		return 0
	}
	var h float64
	for _, p := range winProbs {
		if p <= 0 {
			continue
		}
		q := p / total
		h -= q * math.Log(q)
	}
	return math.Max(0, 1-h/math.Log(float64(len(winProbs))))
}

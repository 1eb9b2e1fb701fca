package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// plattModel is a logistic fit on the standardized score
type plattModel struct {
	a, b      float64
	mean, std float64
}

func (p plattModel) predict(score float64) float64 {
	z := (score - p.mean) / p.std
	return sigmoid(p.a*z + p.b)
}

// plattFit fits sigmoid(a*z+b) with Platt's smoothed targets. A negative
// slope would break monotonicity, so it collapses to the base rate instead.
func plattFit(samples []Sample) (plattModel, error) {
	scores := make([]float64, len(samples))
	var positives float64
	for i, s := range samples {
		scores[i] = s.Score
		positives += outcomeValue(s.Outcome)
	}
	negatives := float64(len(samples)) - positives

	mean, std := stat.PopMeanStdDev(scores, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}

	hi := (positives + 1) / (positives + 2)
	lo := 1 / (negatives + 2)
	z := make([]float64, len(samples))
	t := make([]float64, len(samples))
	for i, s := range samples {
		z[i] = (s.Score - mean) / std
		if s.Outcome {
			t[i] = hi
		} else {
			t[i] = lo
		}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			var loss float64
			for i := range z {
				u := x[0]*z[i] + x[1]
				loss += t[i]*softplus(-u) + (1-t[i])*softplus(u)
			}
			return loss
		},
		Grad: func(grad, x []float64) {
			grad[0], grad[1] = 0, 0
			for i := range z {
				d := sigmoid(x[0]*z[i]+x[1]) - t[i]
				grad[0] += d * z[i]
				grad[1] += d
			}
		},
	}

	base := positives / float64(len(samples))
	init := []float64{1, logit(base)}
	result, err := optimize.Minimize(problem, init, &optimize.Settings{MajorIterations: 200}, &optimize.BFGS{})
	if result == nil {
		return plattModel{}, fmt.Errorf("platt optimization failed: %w", err)
	}
	a, b := result.X[0], result.X[1]
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return plattModel{}, fmt.Errorf("platt optimization diverged: %v", err)
	}

	if a < 0 {
		a, b = 0, logit(base)
	}
	return plattModel{a: a, b: b, mean: mean, std: std}, nil
}

func sigmoid(u float64) float64 {
	if u >= 0 {
		return 1 / (1 + math.Exp(-u))
	}
	e := math.Exp(u)
	return e / (1 + e)
}

// softplus computes log(1+exp(u)) without overflow
func softplus(u float64) float64 {
	if u > 30 {
		return u
	}
	return math.Log1p(math.Exp(u))
}

func logit(p float64) float64 {
	const eps = 1e-6
	p = math.Min(math.Max(p, eps), 1-eps)
	return math.Log(p / (1 - p))
}

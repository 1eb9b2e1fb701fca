package training

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// standardizer centers and scales columns so penalties treat them alike
type standardizer struct {
	mean, std []float64
}

func newStandardizer(rows [][]float64) standardizer {
	width := len(rows[0])
	s := standardizer{mean: make([]float64, width), std: make([]float64, width)}
	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		s.mean[j], s.std[j] = stat.PopMeanStdDev(col, nil)
		if s.std[j] == 0 || math.IsNaN(s.std[j]) {
			s.std[j] = 1
		}
	}
	return s
}

func (s standardizer) apply(rows [][]float64) *mat.Dense {
	x := mat.NewDense(len(rows), len(s.mean), nil)
	for i, r := range rows {
		for j, v := range r {
			x.Set(i, j, (v-s.mean[j])/s.std[j])
		}
	}
	return x
}

// unscale maps coefficients on standardized columns back to raw columns
func (s standardizer) unscale(coef []float64, intercept float64) ([]float64, float64) {
	raw := make([]float64, len(coef))
	for j, c := range coef {
		raw[j] = c / s.std[j]
		intercept -= c * s.mean[j] / s.std[j]
	}
	return raw, intercept
}

// fitLogistic fits an L2-penalized logistic regression with BFGS. The
// intercept is not penalized.
func fitLogistic(rows [][]float64, labels []bool, l2 float64) ([]float64, float64, error) {
	std := newStandardizer(rows)
	x := std.apply(rows)
	n, width := x.Dims()
	y := make([]float64, n)
	for i, l := range labels {
		if l {
			y[i] = 1
		}
	}

	params := width + 1
	u := make([]float64, n)
	linear := func(w []float64) {
		for i := 0; i < n; i++ {
			s := w[width]
			for j := 0; j < width; j++ {
				s += w[j] * x.At(i, j)
			}
			u[i] = s
		}
	}
	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			linear(w)
			var loss float64
			for i := range u {
				loss += softplus(u[i]) - y[i]*u[i]
			}
			loss /= float64(n)
			for j := 0; j < width; j++ {
				loss += 0.5 * l2 * w[j] * w[j]
			}
			return loss
		},
		Grad: func(grad, w []float64) {
			linear(w)
			for k := range grad {
				grad[k] = 0
			}
			for i := range u {
				d := (sigmoid(u[i]) - y[i]) / float64(n)
				for j := 0; j < width; j++ {
					grad[j] += d * x.At(i, j)
				}
				grad[width] += d
			}
			for j := 0; j < width; j++ {
				grad[j] += l2 * w[j]
			}
		},
	}

	init := make([]float64, params)
	result, err := optimize.Minimize(problem, init, &optimize.Settings{MajorIterations: 300, GradientThreshold: 1e-8}, &optimize.BFGS{})
	if result == nil {
		return nil, 0, fmt.Errorf("logistic fit failed: %w", err)
	}
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, 0, fmt.Errorf("logistic fit diverged")
		}
	}
	coef, intercept := std.unscale(result.X[:width], result.X[width])
	return coef, intercept, nil
}

// fitRidge solves (XᵀX + αI)β = Xᵀ(y-ȳ) on standardized columns
func fitRidge(rows [][]float64, target []float64, alpha float64) ([]float64, float64, error) {
	std := newStandardizer(rows)
	x := std.apply(rows)
	_, width := x.Dims()

	yMean := stat.Mean(target, nil)
	yc := make([]float64, len(target))
	for i, v := range target {
		yc[i] = v - yMean
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for j := 0; j < width; j++ {
		xtx.Set(j, j, xtx.At(j, j)+alpha)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(len(yc), yc))

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return nil, 0, fmt.Errorf("ridge solve failed: %w", err)
	}
	coef, intercept := std.unscale(beta.RawVector().Data, yMean)
	return coef, intercept, nil
}

func sigmoid(u float64) float64 {
	if u >= 0 {
		return 1 / (1 + math.Exp(-u))
	}
	e := math.Exp(u)
	return e / (1 + e)
}

func softplus(u float64) float64 {
	if u > 30 {
		return u
	}
	return math.Log1p(math.Exp(u))
}

package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrNoTrials is returned when a search is configured with zero trials
var ErrNoTrials = errors.New("search needs at least one trial")

// Dimension is one searchable hyperparameter. Log dimensions are sampled
// uniformly in log space.
type Dimension struct {
	Name string
	Low  float64
	High float64
	Log  bool
}

func (d Dimension) fromUnit(u float64) float64 {
	if d.Log {
		lo, hi := math.Log(d.Low), math.Log(d.High)
		return math.Exp(lo + u*(hi-lo))
	}
	return d.Low + u*(d.High-d.Low)
}

// Space is the set of searched dimensions
type Space []Dimension

// DefaultSpace returns the search space over the trainer's hyperparameters
func DefaultSpace() Space {
	return Space{
		{Name: ParamL2Win, Low: 1e-4, High: 1, Log: true},
		{Name: ParamL2Place, Low: 1e-4, High: 1, Log: true},
		{Name: ParamRidgeAlpha, Low: 1e-2, High: 100, Log: true},
		{Name: ParamRankWeight, Low: 0.25, High: 2},
	}
}

func (s Space) params(unit []float64) Params {
	p := make(Params, len(s))
	for i, d := range s {
		p[d.Name] = d.fromUnit(unit[i])
	}
	return p
}

// Objective scores a configuration; higher is better
type Objective func(ctx context.Context, p Params) (float64, error)

// SearchConfig bounds a search
type SearchConfig struct {
	Trials        int
	StartupTrials int
	// Candidates is how many proposals the surrogate ranks per guided trial
	Candidates int
	Seed       uint64
}

// Trial is one evaluated configuration
type Trial struct {
	Index  int
	Params Params
	Score  float64
	Err    error
}

// SearchResult holds the best configuration and every trial in order
type SearchResult struct {
	Best      Params
	BestScore float64
	Trials    []Trial
}

// Search runs a bounded sequential model-based optimization. The first
// StartupTrials are drawn uniformly. Each later trial perturbs the best
// configurations seen so far and evaluates the proposal a kernel-regression
// surrogate rates highest. A fixed seed always visits the same
// configurations. Failed trials are recorded and skipped; the search fails
// only when every trial failed, returning the last trial error.
func Search(ctx context.Context, space Space, objective Objective, cfg SearchConfig) (*SearchResult, error) {
	if cfg.Trials <= 0 {
		return nil, ErrNoTrials
	}
	if cfg.StartupTrials <= 0 {
		cfg.StartupTrials = 1
	}
	if cfg.Candidates <= 0 {
		cfg.Candidates = 24
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d)
	uniform := distuv.Uniform{Min: 0, Max: 1, Src: src}

	res := &SearchResult{BestScore: math.Inf(-1), Trials: make([]Trial, 0, cfg.Trials)}
	var (
		points  [][]float64
		scores  []float64
		lastErr error
	)

	for i := 0; i < cfg.Trials; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var unit []float64
		if i < cfg.StartupTrials || len(points) == 0 {
			unit = make([]float64, len(space))
			for d := range unit {
				unit[d] = uniform.Rand()
			}
		} else {
			unit = propose(points, scores, len(space), cfg.Candidates, i, src)
		}

		p := space.params(unit)
		score, err := objective(ctx, p)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err
			res.Trials = append(res.Trials, Trial{Index: i, Params: p, Score: math.Inf(-1), Err: err})
			continue
		}
		res.Trials = append(res.Trials, Trial{Index: i, Params: p, Score: score})
		points = append(points, unit)
		scores = append(scores, score)
		if score > res.BestScore {
			res.Best, res.BestScore = p, score
		}
	}

	if res.Best == nil {
		return nil, fmt.Errorf("all %d search trials failed: %w", cfg.Trials, lastErr)
	}
	return res, nil
}

// propose perturbs the top quarter of observed points and returns the
// candidate with the best surrogate estimate plus an exploration bonus.
func propose(points [][]float64, scores []float64, dims, candidates, trial int, src rand.Source) []float64 {
	order := make([]int, len(points))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	elite := order[:max(1, len(order)/4)]

	// the perturbation narrows as trials accumulate
	sigma := math.Max(0.03, 0.25/math.Sqrt(float64(trial)))
	picker := rand.New(src)

	var (
		best      []float64
		bestValue = math.Inf(-1)
	)
	for c := 0; c < candidates; c++ {
		center := points[elite[picker.IntN(len(elite))]]
		cand := make([]float64, dims)
		for d := range cand {
			n := distuv.Normal{Mu: center[d], Sigma: sigma, Src: src}
			cand[d] = math.Min(1, math.Max(0, n.Rand()))
		}
		if v := acquisition(cand, points, scores); v > bestValue {
			best, bestValue = cand, v
		}
	}
	return best
}

const bandwidth = 0.15

// acquisition is a Nadaraya-Watson estimate of the objective at x plus a
// bonus that grows where few trials have been observed.
func acquisition(x []float64, points [][]float64, scores []float64) float64 {
	var num, den float64
	for i, p := range points {
		var d2 float64
		for j := range x {
			d := x[j] - p[j]
			d2 += d * d
		}
		w := math.Exp(-d2 / (2 * bandwidth * bandwidth))
		num += w * scores[i]
		den += w
	}
	if den < 1e-12 {
		return math.Inf(1)
	}
	spread := 0.0
	if len(scores) > 1 {
		lo, hi := scores[0], scores[0]
		for _, s := range scores {
			lo, hi = math.Min(lo, s), math.Max(hi, s)
		}
		spread = hi - lo
	}
	return num/den + 0.1*spread/(1+den)
}

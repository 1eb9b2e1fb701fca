package calibration

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/furlong/internal/models"
)

var testConfig = Config{BlendWeight: 0.6, Bins: 10, MinSamples: 50}

// logisticSamples draws scores uniformly and outcomes from a sigmoid of the score
func logisticSamples(r *rand.Rand, n int) []Sample {
	samples := make([]Sample, n)
	for i := range samples {
		score := r.Float64()*6 - 3
		samples[i] = Sample{Score: score, Outcome: r.Float64() < sigmoid(score)}
	}
	return samples
}

func TestFitIsMonotone(t *testing.T) {
	for seed := uint64(1); seed <= 25; seed++ {
		r := rand.New(rand.NewPCG(seed, seed*7))
		samples := logisticSamples(r, 200+r.IntN(300))

		m, err := Fit("logit_win", models.MarketWin, samples, testConfig)
		require.NoError(t, err, "seed %d", seed)
		assert.True(t, m.IsMonotone(), "seed %d", seed)

		prev := -1.0
		for s := -5.0; s <= 5.0; s += 0.05 {
			p := m.Probability(s)
			assert.GreaterOrEqual(t, p, prev, "seed %d score %.2f", seed, s)
			assert.True(t, p >= 0 && p <= 1)
			prev = p
		}
	}
}

func TestFitMonotoneOnAdversarialOutcomes(t *testing.T) {
	// outcomes anti-correlated with score still produce a nondecreasing map
	r := rand.New(rand.NewPCG(3, 4))
	samples := make([]Sample, 300)
	for i := range samples {
		score := float64(i) / 30
		samples[i] = Sample{Score: score, Outcome: r.Float64() < 1-score/10}
	}
	m, err := Fit("ridge_rank", models.MarketPlace, samples, testConfig)
	require.NoError(t, err)
	assert.True(t, m.IsMonotone())
}

func TestFitClampsOutOfRange(t *testing.T) {
	r := rand.New(rand.NewPCG(11, 12))
	m, err := Fit("logit_win", models.MarketWin, logisticSamples(r, 400), testConfig)
	require.NoError(t, err)

	assert.Equal(t, m.Values[0], m.Probability(-1e9))
	assert.Equal(t, m.Values[len(m.Values)-1], m.Probability(1e9))
}

func TestFitNeverSplitsTies(t *testing.T) {
	samples := make([]Sample, 0, 120)
	for i := 0; i < 120; i++ {
		// three distinct scores with 40 samples each
		samples = append(samples, Sample{Score: float64(i % 3), Outcome: i%4 == 0 || i%3 == 2})
	}
	m, err := Fit("logit_win", models.MarketWin, samples, Config{BlendWeight: 1, Bins: 20, MinSamples: 10})
	require.NoError(t, err)
	assert.Len(t, m.UpperBounds, 3)
	assert.Equal(t, []float64{0, 1, 2}, m.UpperBounds)
}

func TestFitInsufficientData(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	_, err := Fit("logit_win", models.MarketWin, logisticSamples(r, 10), testConfig)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientData))

	var ide *models.InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, 10, ide.Have)
	assert.Equal(t, 50, ide.Need)
}

func TestFitSingleClass(t *testing.T) {
	samples := make([]Sample, 100)
	for i := range samples {
		samples[i] = Sample{Score: float64(i), Outcome: false}
	}
	_, err := Fit("logit_place", models.MarketPlace, samples, testConfig)
	require.Error(t, err)

	var cfe *models.CalibrationFitError
	require.True(t, errors.As(err, &cfe))
	assert.Equal(t, "logit_place", cfe.Member)
	assert.Equal(t, models.MarketPlace, cfe.Market)
	assert.True(t, errors.Is(err, models.ErrCalibrationFit))
}

func TestFitRejectsNonFiniteScore(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	samples := logisticSamples(r, 100)
	samples[17].Score = math.NaN()
	_, err := Fit("logit_win", models.MarketWin, samples, testConfig)
	assert.True(t, errors.Is(err, models.ErrCalibrationFit))
}

func TestBlendWeightExtremes(t *testing.T) {
	r := rand.New(rand.NewPCG(21, 22))
	samples := logisticSamples(r, 500)

	isoOnly, err := Fit("logit_win", models.MarketWin, samples, Config{BlendWeight: 1, Bins: 5, MinSamples: 50})
	require.NoError(t, err)
	plattOnly, err := Fit("logit_win", models.MarketWin, samples, Config{BlendWeight: 0, Bins: 5, MinSamples: 50})
	require.NoError(t, err)

	assert.True(t, isoOnly.IsMonotone())
	assert.True(t, plattOnly.IsMonotone())
	assert.Equal(t, 1.0, isoOnly.BlendWeight)
	assert.Equal(t, 0.0, plattOnly.BlendWeight)
	assert.NotEqual(t, isoOnly.Values, plattOnly.Values)
}

func TestIsotonicPoolsViolators(t *testing.T) {
	samples := []Sample{
		{Score: 1, Outcome: true},
		{Score: 2, Outcome: false},
		{Score: 3, Outcome: true},
		{Score: 4, Outcome: true},
	}
	fitted := isotonicFit(samples)
	assert.Equal(t, []float64{0.5, 0.5, 1, 1}, fitted)
}

func TestBrierAndECE(t *testing.T) {
	probs := []float64{0.9, 0.1, 0.8, 0.2}
	outcomes := []bool{true, false, true, false}
	assert.InDelta(t, 0.025, Brier(probs, outcomes), 1e-9)

	perfect := []float64{1, 0}
	assert.Equal(t, 0.0, ExpectedCalibrationError(perfect, []bool{true, false}, 10))

	ece := ExpectedCalibrationError([]float64{0.5, 0.5}, []bool{true, true}, 10)
	assert.InDelta(t, 0.5, ece, 1e-9)
	assert.Equal(t, 0.0, Brier(nil, nil))
}

func TestReportImprovesBrier(t *testing.T) {
	r := rand.New(rand.NewPCG(31, 32))
	// raw scores are systematically overconfident probabilities
	samples := make([]Sample, 1000)
	for i := range samples {
		p := r.Float64()
		samples[i] = Sample{Score: p, Outcome: r.Float64() < 0.25+p/2}
	}
	m, err := Fit("logit_win", models.MarketWin, samples, testConfig)
	require.NoError(t, err)

	rep := Report(samples, m, 10)
	assert.Len(t, rep.Bins, 10)
	assert.Less(t, rep.BrierAfter, rep.BrierBefore)
}

// Package calibration fits monotonic score-to-probability maps by blending an
// isotonic fit with a Platt (logistic) fit.
package calibration

import (
	"math"
	"sort"

	"github.com/yourusername/furlong/internal/models"
)

// Sample is one (oriented raw score, outcome) pair from the trailing window
type Sample struct {
	Score   float64
	Outcome bool
}

// Config holds the blend weight, bin count and minimum sample count
type Config struct {
	BlendWeight float64
	Bins        int
	MinSamples  int
}

// Fit builds a CalibrationMap from samples. The map is nondecreasing in
// score. It fails with *models.InsufficientDataError below cfg.MinSamples
// and with *models.CalibrationFitError when the samples cannot support a fit.
func Fit(member string, market models.MarketType, samples []Sample, cfg Config) (models.CalibrationMap, error) {
	if len(samples) < cfg.MinSamples {
		return models.CalibrationMap{}, &models.InsufficientDataError{Have: len(samples), Need: cfg.MinSamples}
	}

	sorted := make([]Sample, 0, len(samples))
	var positives int
	for _, s := range samples {
		if math.IsNaN(s.Score) || math.IsInf(s.Score, 0) {
			return models.CalibrationMap{}, &models.CalibrationFitError{Member: member, Market: market, Reason: "non-finite score"}
		}
		if s.Outcome {
			positives++
		}
		sorted = append(sorted, s)
	}
	if positives == 0 || positives == len(sorted) {
		return models.CalibrationMap{}, &models.CalibrationFitError{Member: member, Market: market, Reason: "outcomes contain a single class"}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })

	iso := isotonicFit(sorted)
	platt, err := plattFit(sorted)
	if err != nil {
		return models.CalibrationMap{}, &models.CalibrationFitError{Member: member, Market: market, Reason: err.Error()}
	}

	bins := cfg.Bins
	if bins < 1 {
		bins = 1
	}
	target := int(math.Ceil(float64(len(sorted)) / float64(bins)))

	w := cfg.BlendWeight
	m := models.CalibrationMap{BlendWeight: w, SampleCount: len(sorted)}
	var (
		isoSum, plattSum float64
		count            int
	)
	for i, s := range sorted {
		isoSum += iso[i]
		plattSum += platt.predict(s.Score)
		count++

		last := i == len(sorted)-1
		// never split a run of equal scores across bins
		if !last && (count < target || sorted[i+1].Score == s.Score) {
			continue
		}
		value := w*(isoSum/float64(count)) + (1-w)*(plattSum/float64(count))
		if n := len(m.Values); n > 0 && value < m.Values[n-1] {
			value = m.Values[n-1]
		}
		m.UpperBounds = append(m.UpperBounds, s.Score)
		m.Values = append(m.Values, clamp01(value))
		isoSum, plattSum, count = 0, 0, 0
	}

	return m, nil
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

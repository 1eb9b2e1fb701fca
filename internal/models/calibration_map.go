package models

import "sort"

// CalibrationMap maps an oriented raw score to a calibrated probability.
// Bin i covers scores up to and including UpperBounds[i]; Values is
// nondecreasing. Scores beyond the fitted range take the boundary bin value.
type CalibrationMap struct {
	UpperBounds []float64 `json:"upper_bounds" msgpack:"upper_bounds"`
	Values      []float64 `json:"values" msgpack:"values"`
	BlendWeight float64   `json:"blend_weight" msgpack:"blend_weight"`
	SampleCount int       `json:"sample_count" msgpack:"sample_count"`
}

// Probability returns the calibrated probability for an oriented score
func (m CalibrationMap) Probability(score float64) float64 {
	n := len(m.Values)
	if n == 0 {
		return 0
	}
	i := sort.SearchFloat64s(m.UpperBounds, score)
	if i >= n {
		return m.Values[n-1]
	}
	return m.Values[i]
}

// IsMonotone reports whether the map is nondecreasing
func (m CalibrationMap) IsMonotone() bool {
	for i := 1; i < len(m.Values); i++ {
		if m.Values[i] < m.Values[i-1] {
			return false
		}
	}
	return true
}

// Empty reports whether the map has no bins
func (m CalibrationMap) Empty() bool {
	return len(m.Values) == 0
}

package models

import (
	"math"
	"sort"
	"time"
)

// Segment partitions models by track surface or course type
type Segment string

// FeatureVector is one immutable feature record for a horse in a race
type FeatureVector struct {
	RaceID      string             `json:"race_id" validate:"required"`
	HorseID     string             `json:"horse_id" validate:"required"`
	Position    int                `json:"position" validate:"required,gt=0"`
	Segment     Segment            `json:"segment" validate:"required"`
	Features    map[string]float64 `json:"features"`
	Categorical map[string]string  `json:"categorical,omitempty"`
	AsOf        time.Time          `json:"as_of" validate:"required"`
}

// Value returns the numeric feature and whether it is usable
func (fv FeatureVector) Value(name string) (float64, bool) {
	v, ok := fv.Features[name]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FeatureSchema fixes the column layout a model artifact was trained on.
// Defaults holds the imputation value for each numeric column.
type FeatureSchema struct {
	Numeric     []string            `json:"numeric" msgpack:"numeric"`
	Categorical map[string][]string `json:"categorical,omitempty" msgpack:"categorical"`
	Defaults    map[string]float64  `json:"defaults" msgpack:"defaults"`
}

// Width returns the encoded vector length, excluding the intercept
func (s FeatureSchema) Width() int {
	n := len(s.Numeric)
	for _, levels := range s.Categorical {
		n += len(levels)
	}
	return n
}

// CategoricalNames returns categorical column names in stable order
func (s FeatureSchema) CategoricalNames() []string {
	names := make([]string, 0, len(s.Categorical))
	for name := range s.Categorical {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

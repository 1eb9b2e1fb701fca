package training

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/furlong/internal/models"
)

// InferSchema collects every numeric and categorical column seen in races.
// The imputation default of a numeric column is its training mean.
func InferSchema(races []models.LabeledRace) models.FeatureSchema {
	values := make(map[string][]float64)
	levels := make(map[string]map[string]struct{})
	for _, r := range races {
		for _, v := range r.Vectors {
			for name := range v.Features {
				if x, ok := v.Value(name); ok {
					values[name] = append(values[name], x)
				} else if _, seen := values[name]; !seen {
					values[name] = nil
				}
			}
			for name, level := range v.Categorical {
				if levels[name] == nil {
					levels[name] = make(map[string]struct{})
				}
				levels[name][level] = struct{}{}
			}
		}
	}

	schema := models.FeatureSchema{Defaults: make(map[string]float64, len(values))}
	for name, xs := range values {
		schema.Numeric = append(schema.Numeric, name)
		if len(xs) > 0 {
			schema.Defaults[name] = stat.Mean(xs, nil)
		}
	}
	sort.Strings(schema.Numeric)

	if len(levels) > 0 {
		schema.Categorical = make(map[string][]string, len(levels))
		for name, set := range levels {
			ls := make([]string, 0, len(set))
			for l := range set {
				ls = append(ls, l)
			}
			sort.Strings(ls)
			schema.Categorical[name] = ls
		}
	}
	return schema
}

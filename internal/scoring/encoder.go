package scoring

import (
	"github.com/yourusername/furlong/internal/models"
)

// Encoder lays a FeatureVector out as a dense row following a FeatureSchema.
// Numeric columns come first in schema order, then one-hot categorical levels
// in sorted column order.
type Encoder struct {
	schema      models.FeatureSchema
	categorical []string
}

// NewEncoder creates an encoder for schema
func NewEncoder(schema models.FeatureSchema) *Encoder {
	return &Encoder{schema: schema, categorical: schema.CategoricalNames()}
}

// Width returns the encoded row length
func (e *Encoder) Width() int {
	return e.schema.Width()
}

// Encode returns the row and the names of numeric features that were missing
// or non-finite and replaced by the schema default.
func (e *Encoder) Encode(fv models.FeatureVector) ([]float64, []string) {
	row := make([]float64, 0, e.Width())
	var imputed []string
	for _, name := range e.schema.Numeric {
		v, ok := fv.Value(name)
		if !ok {
			v = e.schema.Defaults[name]
			imputed = append(imputed, name)
		}
		row = append(row, v)
	}
	for _, name := range e.categorical {
		got := fv.Categorical[name]
		for _, level := range e.schema.Categorical[name] {
			if got == level {
				row = append(row, 1)
			} else {
				row = append(row, 0)
			}
		}
	}
	return row, imputed
}

// Package scoring turns feature vectors into raw per-member scores using the
// active model artifact of a segment.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/yourusername/furlong/internal/models"
)

// ErrUnknownKind is returned by NewModel for an unrecognised model kind
var ErrUnknownKind = errors.New("unknown model kind")

// ErrWidthMismatch is returned when coefficients do not match the schema width
var ErrWidthMismatch = errors.New("coefficient count does not match feature schema")

// RawScore is one member's uncalibrated output for a horse
type RawScore struct {
	Member string
	Kind   models.ModelKind
	Value  float64
}

// Oriented returns the score with "higher is better" orientation, the form
// calibration maps are fitted on.
func (r RawScore) Oriented() float64 {
	if r.Kind == models.ModelKindRank {
		return -r.Value
	}
	return r.Value
}

// Model produces a raw score from an encoded feature row
type Model interface {
	Name() string
	Kind() models.ModelKind
	Score(x []float64) RawScore
}

type linear struct {
	name      string
	coef      []float64
	intercept float64
}

func (l linear) dot(x []float64) float64 {
	s := l.intercept
	for i, c := range l.coef {
		s += c * x[i]
	}
	return s
}

// RankModel predicts finishing position on an open range; lower is better
type RankModel struct {
	linear
}

// Name returns the member name
func (m RankModel) Name() string { return m.name }

// Kind returns models.ModelKindRank
func (m RankModel) Kind() models.ModelKind { return models.ModelKindRank }

// Score returns the predicted finishing position
func (m RankModel) Score(x []float64) RawScore {
	return RawScore{Member: m.name, Kind: models.ModelKindRank, Value: m.dot(x)}
}

// ProbabilityModel is a logistic model producing a score on [0,1]
type ProbabilityModel struct {
	linear
}

// Name returns the member name
func (m ProbabilityModel) Name() string { return m.name }

// Kind returns models.ModelKindProbability
func (m ProbabilityModel) Kind() models.ModelKind { return models.ModelKindProbability }

// Score returns the logistic probability
func (m ProbabilityModel) Score(x []float64) RawScore {
	u := m.dot(x)
	var p float64
	if u >= 0 {
		p = 1 / (1 + math.Exp(-u))
	} else {
		e := math.Exp(u)
		p = e / (1 + e)
	}
	return RawScore{Member: m.name, Kind: models.ModelKindProbability, Value: p}
}

// NewModel builds the model variant described by spec. width is the encoded
// feature width the coefficients must match.
func NewModel(spec models.ModelSpec, width int) (Model, error) {
	if len(spec.Coefficients) != width {
		return nil, fmt.Errorf("%s: %w: have %d, want %d", spec.Name, ErrWidthMismatch, len(spec.Coefficients), width)
	}
	l := linear{name: spec.Name, coef: spec.Coefficients, intercept: spec.Intercept}
	switch spec.Kind {
	case models.ModelKindRank:
		return RankModel{l}, nil
	case models.ModelKindProbability:
		return ProbabilityModel{l}, nil
	default:
		return nil, fmt.Errorf("%s: %w: %q", spec.Name, ErrUnknownKind, spec.Kind)
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// ModelKind tags the family of raw score a model produces
type ModelKind string

const (
	// ModelKindRank produces an open-range score where lower means a better finish
	ModelKindRank ModelKind = "rank"
	// ModelKindProbability produces a probability-like score on [0,1]
	ModelKindProbability ModelKind = "probability"
)

// ModelSpec holds the trained parameters of one ensemble member together
// with the calibration maps fitted for it, keyed by market.
type ModelSpec struct {
	Name         string                        `json:"name" msgpack:"name"`
	Kind         ModelKind                     `json:"kind" msgpack:"kind"`
	Target       MarketType                    `json:"target" msgpack:"target"`
	Coefficients []float64                     `json:"coefficients" msgpack:"coefficients"`
	Intercept    float64                       `json:"intercept" msgpack:"intercept"`
	Weight       float64                       `json:"weight" msgpack:"weight"`
	Calibration  map[MarketType]CalibrationMap `json:"calibration" msgpack:"calibration"`
}

// ModelArtifact is a versioned, immutable bundle of trained members for a segment
type ModelArtifact struct {
	ID              uuid.UUID          `db:"id" json:"id" msgpack:"id"`
	Segment         Segment            `db:"segment" json:"segment" msgpack:"segment"`
	Version         int64              `db:"version" json:"version" msgpack:"version"`
	TrainedFrom     time.Time          `db:"trained_from" json:"trained_from" msgpack:"trained_from"`
	TrainedTo       time.Time          `db:"trained_to" json:"trained_to" msgpack:"trained_to"`
	Schema          FeatureSchema      `db:"-" json:"schema" msgpack:"schema"`
	Members         []ModelSpec        `db:"-" json:"members" msgpack:"members"`
	Hyperparameters map[string]float64 `db:"hyperparameters" json:"hyperparameters" msgpack:"hyperparameters"`
	SampleCount     int                `db:"sample_count" json:"sample_count" msgpack:"sample_count"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at" msgpack:"created_at"`
}

// MembersFor returns the members that carry a calibration map for the market
func (a *ModelArtifact) MembersFor(market MarketType) []ModelSpec {
	out := make([]ModelSpec, 0, len(a.Members))
	for _, m := range a.Members {
		if _, ok := m.Calibration[market]; ok {
			out = append(out, m)
		}
	}
	return out
}

// RankMember returns the first rank-style member, if any
func (a *ModelArtifact) RankMember() (ModelSpec, bool) {
	for _, m := range a.Members {
		if m.Kind == ModelKindRank {
			return m, true
		}
	}
	return ModelSpec{}, false
}

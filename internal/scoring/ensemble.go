package scoring

import (
	"fmt"

	"github.com/yourusername/furlong/internal/models"
)

// MemberProbability is one member's calibrated probability for a market
type MemberProbability struct {
	Member      string
	Probability float64
	Weight      float64
}

// HorseScores holds every member output for one horse
type HorseScores struct {
	HorseID  string
	Position int
	Raw      []RawScore
	// Probabilities holds calibrated member probabilities keyed by market
	Probabilities map[models.MarketType][]MemberProbability
	RankScore     float64
	HasRank       bool
	Imputed       []string
}

// LowConfidence reports whether any feature had to be imputed
func (h HorseScores) LowConfidence() bool {
	return len(h.Imputed) > 0
}

// Ensemble applies every member of one artifact. It is immutable and safe
// for concurrent use.
type Ensemble struct {
	artifact *models.ModelArtifact
	encoder  *Encoder
	members  []Model
	specs    []models.ModelSpec
}

// NewEnsemble builds the member models of an artifact
func NewEnsemble(artifact *models.ModelArtifact) (*Ensemble, error) {
	if artifact == nil || len(artifact.Members) == 0 {
		return nil, fmt.Errorf("artifact has no members")
	}
	enc := NewEncoder(artifact.Schema)
	e := &Ensemble{artifact: artifact, encoder: enc}
	for _, spec := range artifact.Members {
		m, err := NewModel(spec, enc.Width())
		if err != nil {
			return nil, err
		}
		e.members = append(e.members, m)
		e.specs = append(e.specs, spec)
	}
	return e, nil
}

// Artifact returns the artifact the ensemble was built from
func (e *Ensemble) Artifact() *models.ModelArtifact {
	return e.artifact
}

// ScoreHorse runs every member over one feature vector and applies each
// member's calibration maps to its oriented score.
func (e *Ensemble) ScoreHorse(fv models.FeatureVector) HorseScores {
	row, imputed := e.encoder.Encode(fv)
	hs := HorseScores{
		HorseID:       fv.HorseID,
		Position:      fv.Position,
		Raw:           make([]RawScore, 0, len(e.members)),
		Probabilities: make(map[models.MarketType][]MemberProbability, len(models.Markets)),
		Imputed:       imputed,
	}
	for i, m := range e.members {
		raw := m.Score(row)
		hs.Raw = append(hs.Raw, raw)
		if raw.Kind == models.ModelKindRank && !hs.HasRank {
			hs.RankScore = raw.Value
			hs.HasRank = true
		}
		spec := e.specs[i]
		for _, market := range models.Markets {
			cm, ok := spec.Calibration[market]
			if !ok || cm.Empty() {
				continue
			}
			hs.Probabilities[market] = append(hs.Probabilities[market], MemberProbability{
				Member:      spec.Name,
				Probability: cm.Probability(raw.Oriented()),
				Weight:      memberWeight(spec),
			})
		}
	}
	return hs
}

func memberWeight(spec models.ModelSpec) float64 {
	if spec.Weight <= 0 {
		return 1
	}
	return spec.Weight
}

package scoring

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/metrics"
	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/registry"
)

// ChampionSource returns the active artifact of a segment
type ChampionSource interface {
	Active(segment models.Segment) (*registry.Champion, error)
}

// ScoredRace is the ensemble output for every horse of one race, tied to the
// single champion snapshot it was computed from.
type ScoredRace struct {
	RaceID   string
	Segment  models.Segment
	Artifact *models.ModelArtifact
	Version  int64
	Horses   []HorseScores
}

// Scorer scores races against the live champion of their segment
type Scorer struct {
	champions ChampionSource
	logger    *logger.ScoringLogger
	// ensembles caches built ensembles by artifact id
	ensembles sync.Map
}

// NewScorer creates a scorer reading champions from source
func NewScorer(source ChampionSource, log *logger.ScoringLogger) *Scorer {
	return &Scorer{champions: source, logger: log}
}

// Champion returns the active champion of a segment. A miss is counted and
// logged and returns models.ErrModelUnavailable.
func (s *Scorer) Champion(raceID string, segment models.Segment) (*registry.Champion, error) {
	champion, err := s.champions.Active(segment)
	if err != nil {
		metrics.RecordModelUnavailable(string(segment))
		s.logger.LogModelUnavailable(raceID, string(segment))
		return nil, err
	}
	return champion, nil
}

// ScoreRace scores every vector of a race. All vectors must belong to
// segment; there is no fallback to another segment's champion.
func (s *Scorer) ScoreRace(raceID string, segment models.Segment, vectors []models.FeatureVector) (*ScoredRace, error) {
	if err := CheckRace(segment, vectors); err != nil {
		return nil, err
	}
	champion, err := s.Champion(raceID, segment)
	if err != nil {
		return nil, err
	}
	return s.ScoreChampion(champion, raceID, segment, vectors)
}

// ScoreChampion scores a race against an already loaded champion snapshot
func (s *Scorer) ScoreChampion(champion *registry.Champion, raceID string, segment models.Segment, vectors []models.FeatureVector) (*ScoredRace, error) {
	ens, err := s.ensemble(champion.Artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to build ensemble for %s: %w", segment, err)
	}
	scored := ScoreWith(ens, raceID, segment, vectors)
	scored.Version = champion.Version
	for _, h := range scored.Horses {
		if h.LowConfidence() {
			metrics.RecordImputedFeatures(string(segment), len(h.Imputed))
			s.logger.LogImputedFeatures(raceID, h.HorseID, h.Imputed)
		}
	}
	return scored, nil
}

func (s *Scorer) ensemble(a *models.ModelArtifact) (*Ensemble, error) {
	if e, ok := s.ensembles.Load(a.ID); ok {
		return e.(*Ensemble), nil
	}
	e, err := NewEnsemble(a)
	if err != nil {
		return nil, err
	}
	actual, _ := s.ensembles.LoadOrStore(a.ID, e)
	return actual.(*Ensemble), nil
}

// Forget drops a cached ensemble, typically after a champion swap
func (s *Scorer) Forget(id uuid.UUID) {
	s.ensembles.Delete(id)
}

// CheckRace validates that a race has vectors and they share its segment
func CheckRace(segment models.Segment, vectors []models.FeatureVector) error {
	if len(vectors) == 0 {
		return models.ErrEmptyRace
	}
	for _, v := range vectors {
		if v.Segment != segment {
			return fmt.Errorf("horse %s has segment %s, race has %s: %w", v.HorseID, v.Segment, segment, models.ErrSegmentMismatch)
		}
	}
	return nil
}

// ScoreWith scores a race with an explicit ensemble, as the backtester does
// for candidate artifacts that are not yet active.
func ScoreWith(ens *Ensemble, raceID string, segment models.Segment, vectors []models.FeatureVector) *ScoredRace {
	scored := &ScoredRace{
		RaceID:   raceID,
		Segment:  segment,
		Artifact: ens.Artifact(),
		Version:  ens.Artifact().Version,
		Horses:   make([]HorseScores, 0, len(vectors)),
	}
	for _, v := range vectors {
		scored.Horses = append(scored.Horses, ens.ScoreHorse(v))
	}
	return scored
}

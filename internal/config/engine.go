package config

import (
	"sync/atomic"
	"time"

	"github.com/creasty/defaults"

	"github.com/yourusername/furlong/internal/models"
)

// EngineConfigVersion is bumped whenever a field is added to EngineConfig
const EngineConfigVersion = 3

// EngineConfig holds every tunable of the scoring and retrain engine.
// Defaults are applied from struct tags before the file is unmarshalled.
type EngineConfig struct {
	Version     int               `mapstructure:"version" default:"3" validate:"required,gt=0"`
	Segments    []string          `mapstructure:"segments" default:"[\"turf\",\"dirt\"]" validate:"required,min=1,dive,segment"`
	EV          EVConfig          `mapstructure:"ev"`
	Confidence  ConfidenceConfig  `mapstructure:"confidence"`
	Rank        RankWeights       `mapstructure:"rank"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Retrain     RetrainConfig     `mapstructure:"retrain"`
	Failure     FailureConfig     `mapstructure:"failure"`
	DarkHorse   DarkHorseConfig   `mapstructure:"dark_horse"`
	Tickets     TicketsConfig     `mapstructure:"tickets"`
	TopK        int               `mapstructure:"top_k" default:"3" validate:"gt=0"`
	// WeaknessRatio flags segments whose top-K cover rate falls below this
	// fraction of the overall rate.
	WeaknessRatio float64 `mapstructure:"weakness_ratio" default:"0.7" validate:"gt=0,lte=1"`
	// CacheTTLSeconds bounds how long a PredictionRecord is served from cache.
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" default:"60" validate:"gt=0"`
}

// EVConfig holds expected value gates
type EVConfig struct {
	Threshold      float64 `mapstructure:"threshold" default:"1.5" validate:"gt=0"`
	LooseThreshold float64 `mapstructure:"loose_threshold" default:"1.2" validate:"gt=0"`
}

// ConfidenceConfig scales the inter-model disagreement interval
type ConfidenceConfig struct {
	Z float64 `mapstructure:"z" default:"1.96" validate:"gt=0"`
	// WideHalfWidth marks a horse low-confidence when its win interval is wider
	WideHalfWidth float64 `mapstructure:"wide_half_width" default:"0.15" validate:"gt=0,lte=1"`
}

// RankWeights weights the composite score components
type RankWeights struct {
	Win   float64 `mapstructure:"win" default:"0.5" validate:"gte=0,lte=1"`
	Place float64 `mapstructure:"place" default:"0.3" validate:"gte=0,lte=1"`
	Rank  float64 `mapstructure:"rank" default:"0.2" validate:"gte=0,lte=1"`
}

// CalibrationConfig configures the isotonic/Platt blend
type CalibrationConfig struct {
	// BlendWeight is the isotonic share; the Platt fit gets 1-BlendWeight
	BlendWeight float64 `mapstructure:"blend_weight" default:"0.6" validate:"gte=0,lte=1"`
	Bins        int     `mapstructure:"bins" default:"20" validate:"gte=2"`
	MinSamples  int     `mapstructure:"min_samples" default:"100" validate:"gt=0"`
}

// RetrainConfig configures the champion/challenger loop
type RetrainConfig struct {
	WindowYears             int     `mapstructure:"window_years" default:"3" validate:"gt=0"`
	MinSamples              int     `mapstructure:"min_samples" default:"100" validate:"gt=0"`
	SearchTrials            int     `mapstructure:"search_trials" default:"20" validate:"gt=0"`
	SearchStartupTrials     int     `mapstructure:"search_startup_trials" default:"5" validate:"gt=0"`
	SearchSeed              uint64  `mapstructure:"search_seed" default:"42"`
	DiscriminationTolerance float64 `mapstructure:"discrimination_tolerance" default:"0.005" validate:"gte=0"`
	TrainFraction           float64 `mapstructure:"train_fraction" default:"0.7" validate:"gt=0,lt=1"`
	ValidationFraction      float64 `mapstructure:"validation_fraction" default:"0.15" validate:"gt=0,lt=1"`
	HoldoutFraction         float64 `mapstructure:"holdout_fraction" default:"0.15" validate:"gt=0,lt=1"`
	BootstrapMinAUC         float64 `mapstructure:"bootstrap_min_auc" default:"0.5" validate:"gte=0,lte=1"`
}

// FailureConfig holds the post-race classification thresholds
type FailureConfig struct {
	UpsetOdds    float64 `mapstructure:"upset_odds" default:"10" validate:"gt=1"`
	FavoriteOdds float64 `mapstructure:"favorite_odds" default:"5" validate:"gt=1"`
}

// DarkHorseConfig holds the dark horse thresholds
type DarkHorseConfig struct {
	MinPlace float64 `mapstructure:"min_place" default:"0.2" validate:"gte=0,lte=1"`
	MaxWin   float64 `mapstructure:"max_win" default:"0.1" validate:"gte=0,lte=1"`
}

// TicketsConfig bounds the anchor-keyed combination tickets
type TicketsConfig struct {
	// TopN is the number of horses, anchor included, that tickets draw from
	TopN            int `mapstructure:"top_n" default:"5" validate:"gte=2"`
	MaxCombinations int `mapstructure:"max_combinations" default:"10" validate:"gt=0"`
}

// DefaultEngineConfig returns the engine configuration with documented defaults
func DefaultEngineConfig() EngineConfig {
	var ec EngineConfig
	// Set only fails for non-pointer input.
	_ = defaults.Set(&ec)
	return ec
}

// SegmentList returns the configured segments as typed values
func (ec EngineConfig) SegmentList() []models.Segment {
	out := make([]models.Segment, 0, len(ec.Segments))
	for _, s := range ec.Segments {
		out = append(out, models.Segment(s))
	}
	return out
}

// Window returns the trailing retrain window ending at now
func (ec EngineConfig) Window(now time.Time) (time.Time, time.Time) {
	return now.AddDate(-ec.Retrain.WindowYears, 0, 0), now
}

// CacheTTL returns the prediction cache TTL
func (ec EngineConfig) CacheTTL() time.Duration {
	return time.Duration(ec.CacheTTLSeconds) * time.Second
}

// Holder publishes engine configuration snapshots. Readers always see a
// complete snapshot; updates replace the pointer. Every Store bumps the
// generation so derived state can tell snapshots apart.
type Holder struct {
	current atomic.Pointer[engineSnapshot]
}

type engineSnapshot struct {
	cfg        EngineConfig
	generation uint64
}

// NewHolder creates a holder with an initial snapshot
func NewHolder(ec EngineConfig) *Holder {
	h := &Holder{}
	h.Store(ec)
	return h
}

// Load returns the current snapshot
func (h *Holder) Load() EngineConfig {
	return h.current.Load().cfg
}

// Snapshot returns the current snapshot and its generation
func (h *Holder) Snapshot() (EngineConfig, uint64) {
	s := h.current.Load()
	return s.cfg, s.generation
}

// Store replaces the current snapshot
func (h *Holder) Store(ec EngineConfig) {
	for {
		prev := h.current.Load()
		next := &engineSnapshot{cfg: ec, generation: 1}
		if prev != nil {
			next.generation = prev.generation + 1
		}
		if h.current.CompareAndSwap(prev, next) {
			return
		}
	}
}

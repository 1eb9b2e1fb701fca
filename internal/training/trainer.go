// Package training fits candidate model artifacts for a segment: two
// logistic members, one ridge rank member, and the calibration maps of each.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/furlong/internal/calibration"
	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/scoring"
)

// Ensemble member names
const (
	MemberLogitWin   = "logit_win"
	MemberLogitPlace = "logit_place"
	MemberRidgeRank  = "ridge_rank"
)

// Hyperparameter names
const (
	ParamL2Win      = "l2_win"
	ParamL2Place    = "l2_place"
	ParamRidgeAlpha = "ridge_alpha"
	ParamRankWeight = "rank_weight"
)

// Params holds one hyperparameter configuration
type Params map[string]float64

// DefaultParams returns the configuration used when no search is run
func DefaultParams() Params {
	return Params{
		ParamL2Win:      0.01,
		ParamL2Place:    0.01,
		ParamRidgeAlpha: 1,
		ParamRankWeight: 1,
	}
}

func (p Params) get(name string) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return DefaultParams()[name]
}

// Trainer fits artifacts. It is safe for concurrent use.
type Trainer struct {
	cal        calibration.Config
	minSamples int
	now        func() time.Time
}

// NewTrainer creates a trainer from the engine configuration
func NewTrainer(cfg config.EngineConfig) *Trainer {
	return &Trainer{
		cal: calibration.Config{
			BlendWeight: cfg.Calibration.BlendWeight,
			Bins:        cfg.Calibration.Bins,
			MinSamples:  cfg.Calibration.MinSamples,
		},
		minSamples: cfg.Retrain.MinSamples,
		now:        time.Now,
	}
}

type dataset struct {
	rows   [][]float64
	win    []bool
	place  []bool
	finish []float64
}

func buildDataset(enc *scoring.Encoder, races []models.LabeledRace) dataset {
	var d dataset
	for _, r := range races {
		field := len(r.Vectors)
		for _, v := range r.Vectors {
			row, _ := enc.Encode(v)
			pos := r.Outcome.FinishPosition(v.HorseID)
			if pos == 0 {
				pos = len(r.Outcome.FinishOrder) + 1
			}
			d.rows = append(d.rows, row)
			d.win = append(d.win, pos == 1)
			d.place = append(d.place, r.Outcome.Placed(v.HorseID, field))
			d.finish = append(d.finish, float64(pos))
		}
	}
	return d
}

// Train fits a new artifact for segment on races. The artifact's calibration
// maps are fitted on the same training window. Training fails with
// *models.InsufficientDataError when races hold fewer samples than the
// configured minimum, and with *models.CalibrationFitError when any map
// cannot be built.
func (t *Trainer) Train(ctx context.Context, segment models.Segment, races []models.LabeledRace, params Params) (*models.ModelArtifact, error) {
	samples := models.SampleCount(races)
	if samples < t.minSamples {
		return nil, &models.InsufficientDataError{Segment: segment, Have: samples, Need: t.minSamples}
	}
	for _, r := range races {
		if r.Segment != segment {
			return nil, fmt.Errorf("race %s: %w", r.RaceID, models.ErrSegmentMismatch)
		}
	}

	schema := InferSchema(races)
	if schema.Width() == 0 {
		return nil, fmt.Errorf("no usable feature columns: %w", models.ErrInsufficientData)
	}
	enc := scoring.NewEncoder(schema)
	data := buildDataset(enc, races)

	members := make([]models.ModelSpec, 0, 3)

	coef, intercept, err := fitLogistic(data.rows, data.win, params.get(ParamL2Win))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MemberLogitWin, err)
	}
	members = append(members, models.ModelSpec{
		Name: MemberLogitWin, Kind: models.ModelKindProbability, Target: models.MarketWin,
		Coefficients: coef, Intercept: intercept, Weight: 1,
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	coef, intercept, err = fitLogistic(data.rows, data.place, params.get(ParamL2Place))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MemberLogitPlace, err)
	}
	members = append(members, models.ModelSpec{
		Name: MemberLogitPlace, Kind: models.ModelKindProbability, Target: models.MarketPlace,
		Coefficients: coef, Intercept: intercept, Weight: 1,
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	coef, intercept, err = fitRidge(data.rows, data.finish, params.get(ParamRidgeAlpha))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MemberRidgeRank, err)
	}
	members = append(members, models.ModelSpec{
		Name: MemberRidgeRank, Kind: models.ModelKindRank, Target: models.MarketWin,
		Coefficients: coef, Intercept: intercept, Weight: params.get(ParamRankWeight),
	})

	for i := range members {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := t.calibrate(segment, &members[i], enc.Width(), data); err != nil {
			return nil, err
		}
	}

	from, to := races[0].StartTime, races[0].StartTime
	for _, r := range races {
		if r.StartTime.Before(from) {
			from = r.StartTime
		}
		if r.StartTime.After(to) {
			to = r.StartTime
		}
	}

	hp := make(map[string]float64, len(params))
	for k := range DefaultParams() {
		hp[k] = params.get(k)
	}
	return &models.ModelArtifact{
		ID:              uuid.New(),
		Segment:         segment,
		TrainedFrom:     from,
		TrainedTo:       to,
		Schema:          schema,
		Members:         members,
		Hyperparameters: hp,
		SampleCount:     samples,
		CreatedAt:       t.now().UTC(),
	}, nil
}

// calibrate fits the maps of one member. Probability members are calibrated
// for their target market; the rank member for both markets.
func (t *Trainer) calibrate(segment models.Segment, spec *models.ModelSpec, width int, data dataset) error {
	model, err := scoring.NewModel(*spec, width)
	if err != nil {
		return err
	}
	scores := make([]float64, len(data.rows))
	for i, row := range data.rows {
		scores[i] = model.Score(row).Oriented()
	}

	markets := []models.MarketType{spec.Target}
	if spec.Kind == models.ModelKindRank {
		markets = []models.MarketType{models.MarketWin, models.MarketPlace}
	}

	spec.Calibration = make(map[models.MarketType]models.CalibrationMap, len(markets))
	for _, market := range markets {
		labels := data.win
		if market == models.MarketPlace {
			labels = data.place
		}
		samples := make([]calibration.Sample, len(scores))
		for i, s := range scores {
			samples[i] = calibration.Sample{Score: s, Outcome: labels[i]}
		}
		m, err := calibration.Fit(spec.Name, market, samples, t.cal)
		if err != nil {
			var ide *models.InsufficientDataError
			if errors.As(err, &ide) {
				ide.Segment = segment
			}
			return err
		}
		spec.Calibration[market] = m
	}
	return nil
}

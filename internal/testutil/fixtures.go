// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourusername/furlong/internal/models"
)

// Schema is the two-column schema used by every fixture
func Schema() models.FeatureSchema {
	return models.FeatureSchema{
		Numeric:  []string{"speed", "form"},
		Defaults: map[string]float64{"speed": 50, "form": 0},
	}
}

// Artifact returns a hand-built three-member artifact for segment. Higher
// speed and form mean a stronger horse for every member.
func Artifact(segment models.Segment) *models.ModelArtifact {
	return &models.ModelArtifact{
		ID:          uuid.New(),
		Segment:     segment,
		Version:     1,
		TrainedFrom: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		TrainedTo:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		Schema:      Schema(),
		Members: []models.ModelSpec{
			{
				Name:         "logit_win",
				Kind:         models.ModelKindProbability,
				Target:       models.MarketWin,
				Coefficients: []float64{0.1, 0.5},
				Intercept:    -6.5,
				Weight:       1,
				Calibration: map[models.MarketType]models.CalibrationMap{
					models.MarketWin: {
						UpperBounds: []float64{0.05, 0.1, 0.2, 0.4, 1},
						Values:      []float64{0.03, 0.08, 0.18, 0.35, 0.6},
					},
				},
			},
			{
				Name:         "logit_place",
				Kind:         models.ModelKindProbability,
				Target:       models.MarketPlace,
				Coefficients: []float64{0.08, 0.4},
				Intercept:    -4.5,
				Weight:       1,
				Calibration: map[models.MarketType]models.CalibrationMap{
					models.MarketPlace: {
						UpperBounds: []float64{0.1, 0.3, 0.5, 0.7, 1},
						Values:      []float64{0.1, 0.25, 0.45, 0.65, 0.85},
					},
				},
			},
			{
				Name:         "ridge_rank",
				Kind:         models.ModelKindRank,
				Target:       models.MarketWin,
				Coefficients: []float64{-0.1, -0.5},
				Intercept:    10,
				Weight:       1,
				Calibration: map[models.MarketType]models.CalibrationMap{
					models.MarketWin: {
						UpperBounds: []float64{-6, -5, -4, -3, 0},
						Values:      []float64{0.04, 0.09, 0.2, 0.33, 0.55},
					},
					models.MarketPlace: {
						UpperBounds: []float64{-6, -5, -4, -3, 0},
						Values:      []float64{0.12, 0.27, 0.5, 0.62, 0.8},
					},
				},
			},
		},
		Hyperparameters: map[string]float64{"l2": 0.1},
		SampleCount:     1000,
		CreatedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Vector builds a feature vector for one horse
func Vector(raceID string, segment models.Segment, position int, speed, form float64) models.FeatureVector {
	return models.FeatureVector{
		RaceID:   raceID,
		HorseID:  fmt.Sprintf("%s-h%d", raceID, position),
		Position: position,
		Segment:  segment,
		Features: map[string]float64{"speed": speed, "form": form},
		AsOf:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Races generates n labeled races one day apart starting at start. Finishing
// order follows 0.1*speed + 0.5*form plus noise, and closing prices follow the
// same strength with a bookmaker margin.
func Races(seed uint64, segment models.Segment, n int, start time.Time) []models.LabeledRace {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	races := make([]models.LabeledRace, 0, n)
	for i := 0; i < n; i++ {
		raceID := fmt.Sprintf("%s-r%04d", segment, i)
		field := 6 + r.IntN(7)
		when := start.AddDate(0, 0, i)

		type runner struct {
			id       string
			strength float64
		}
		runners := make([]runner, 0, field)
		vectors := make([]models.FeatureVector, 0, field)
		var total float64
		for p := 1; p <= field; p++ {
			speed := 50 + r.NormFloat64()*10
			form := r.NormFloat64()
			v := Vector(raceID, segment, p, speed, form)
			v.AsOf = when.Add(-time.Hour)
			vectors = append(vectors, v)
			s := 0.1*speed + 0.5*form
			runners = append(runners, runner{id: v.HorseID, strength: s + r.NormFloat64()*0.8})
			total += math.Exp(s)
		}

		prices := models.MarketPrices{}
		for i, v := range vectors {
			s := 0.1*v.Features["speed"] + 0.5*v.Features["form"]
			p := math.Exp(s) / total
			win := math.Max(1.05, 0.85/p)
			prices.Set(models.MarketWin, runners[i].id, decimal.NewFromFloat(win).Round(2))
			prices.Set(models.MarketPlace, runners[i].id, decimal.NewFromFloat(math.Max(1.05, 1+(win-1)/4)).Round(2))
		}

		sort.SliceStable(runners, func(a, b int) bool { return runners[a].strength > runners[b].strength })
		order := make([]string, 0, field)
		for _, rn := range runners {
			order = append(order, rn.id)
		}

		races = append(races, models.LabeledRace{
			RaceID:    raceID,
			Segment:   segment,
			StartTime: when,
			Vectors:   vectors,
			Outcome: models.RaceOutcome{
				RaceID:        raceID,
				Segment:       segment,
				StartTime:     when,
				FinishOrder:   order,
				ClosingPrices: prices,
			},
		})
	}
	return races
}

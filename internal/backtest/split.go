package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yourusername/furlong/internal/models"
)

// SplitConfig holds the train/validation/holdout fractions
type SplitConfig struct {
	TrainFraction      float64
	ValidationFraction float64
	HoldoutFraction    float64
}

// TimeSplit is a chronological partition of labeled races. Every validation
// race starts strictly after every training race, and every holdout race
// strictly after every validation race.
type TimeSplit struct {
	Train      []models.LabeledRace
	Validation []models.LabeledRace
	Holdout    []models.LabeledRace
}

// Window returns the first and last start time of a race slice
func Window(races []models.LabeledRace) (time.Time, time.Time) {
	if len(races) == 0 {
		return time.Time{}, time.Time{}
	}
	return races[0].StartTime, races[len(races)-1].StartTime
}

// SplitByTime orders races by start time and cuts them by fraction. A cut
// never falls between two races with the same start time; it moves forward
// until the time changes. It fails when any part would be empty.
func SplitByTime(races []models.LabeledRace, cfg SplitConfig) (TimeSplit, error) {
	sorted := make([]models.LabeledRace, len(races))
	copy(sorted, races)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].StartTime.Before(sorted[j].StartTime)
		}
		return sorted[i].RaceID < sorted[j].RaceID
	})

	n := len(sorted)
	trainEnd := advanceCut(sorted, int(math.Round(float64(n)*cfg.TrainFraction)))
	valEnd := advanceCut(sorted, int(math.Round(float64(n)*(cfg.TrainFraction+cfg.ValidationFraction))))
	if valEnd < trainEnd {
		valEnd = trainEnd
	}

	split := TimeSplit{
		Train:      sorted[:trainEnd],
		Validation: sorted[trainEnd:valEnd],
		Holdout:    sorted[valEnd:],
	}
	if len(split.Train) == 0 || len(split.Validation) == 0 || len(split.Holdout) == 0 {
		return TimeSplit{}, fmt.Errorf("split of %d races leaves an empty part (%d/%d/%d): %w",
			n, len(split.Train), len(split.Validation), len(split.Holdout), models.ErrInsufficientData)
	}
	return split, nil
}

func advanceCut(sorted []models.LabeledRace, cut int) int {
	if cut <= 0 {
		return 0
	}
	for cut < len(sorted) && sorted[cut].StartTime.Equal(sorted[cut-1].StartTime) {
		cut++
	}
	return cut
}

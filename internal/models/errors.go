package models

import (
	"errors"
	"fmt"
)

// Custom errors
var (
	ErrNotFound          = errors.New("record not found")
	ErrModelUnavailable  = errors.New("no active model artifact for segment")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrCalibrationFit    = errors.New("calibration fit failed")
	ErrEvaluationFailure = errors.New("evaluation failed")
	ErrEmptyRace         = errors.New("race has no feature vectors")
	ErrSegmentMismatch   = errors.New("feature vector segment does not match race")
	ErrVersionConflict   = errors.New("active artifact version changed")
)

// InsufficientDataError reports a sample count below the configured minimum
type InsufficientDataError struct {
	Segment Segment
	Have    int
	Need    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for segment %s: have %d samples, need %d", e.Segment, e.Have, e.Need)
}

// Unwrap allows errors.Is(err, ErrInsufficientData)
func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}

// CalibrationFitError reports a calibration map that could not be built
type CalibrationFitError struct {
	Member string
	Market MarketType
	Reason string
}

func (e *CalibrationFitError) Error() string {
	return fmt.Sprintf("calibration fit failed for %s/%s: %s", e.Member, e.Market, e.Reason)
}

// Unwrap allows errors.Is(err, ErrCalibrationFit)
func (e *CalibrationFitError) Unwrap() error {
	return ErrCalibrationFit
}

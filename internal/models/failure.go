package models

// FailureCategory classifies how a race's predicted order related to its winner
type FailureCategory string

// Failure categories, in evaluation priority order
const (
	FailureUpset     FailureCategory = "upset"
	FailureCloseCall FailureCategory = "close-call"
	FailureBlindSpot FailureCategory = "blind-spot"
	FailureHit       FailureCategory = "hit"
	// FailureMiss covers winners ranked 6th or worse priced between the
	// favourite and upset thresholds.
	FailureMiss FailureCategory = "miss"
)

// IsFailure reports whether the category counts as a missed pick
func (c FailureCategory) IsFailure() bool {
	return c != FailureHit
}

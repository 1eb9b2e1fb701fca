package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CycleOutcome is the terminal state of a retrain cycle
type CycleOutcome string

// Retrain cycle outcomes
const (
	OutcomePromoted CycleOutcome = "promoted"
	OutcomeKept     CycleOutcome = "kept"
	OutcomeAborted  CycleOutcome = "aborted"
	OutcomeRejected CycleOutcome = "rejected"
)

// MetricSet is the comparable metric set produced by the backtester
type MetricSet struct {
	WinAUC           float64         `json:"win_auc" db:"win_auc"`
	PlaceAUC         float64         `json:"place_auc" db:"place_auc"`
	BrierScore       float64         `json:"brier_score" db:"brier_score"`
	CalibrationError float64         `json:"calibration_error" db:"calibration_error"`
	TopKCoverage     float64         `json:"top_k_coverage" db:"top_k_coverage"`
	QuinellaHitRate  float64         `json:"quinella_hit_rate" db:"quinella_hit_rate"`
	AnchorPlaceRate  float64         `json:"anchor_place_rate" db:"anchor_place_rate"`
	AnchorPlaceROI   decimal.Decimal `json:"anchor_place_roi" db:"anchor_place_roi"`
	WinReturn        decimal.Decimal `json:"win_return" db:"win_return"`
	PlaceReturn      decimal.Decimal `json:"place_return" db:"place_return"`
	RealizedReturn   decimal.Decimal `json:"realized_return" db:"realized_return"`
	WinBets          int             `json:"win_bets" db:"win_bets"`
	PlaceBets        int             `json:"place_bets" db:"place_bets"`
	Races            int             `json:"races" db:"races"`
	Samples          int             `json:"samples" db:"samples"`
	CompositeScore   float64         `json:"composite_score" db:"composite_score"`
}

// BacktestResult is the append-only record of one retrain cycle
type BacktestResult struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	Segment       Segment      `json:"segment" db:"segment"`
	CandidateID   uuid.UUID    `json:"candidate_id" db:"candidate_id"`
	CurrentID     uuid.UUID    `json:"current_id" db:"current_id"`
	HoldoutStart  time.Time    `json:"holdout_start" db:"holdout_start"`
	HoldoutEnd    time.Time    `json:"holdout_end" db:"holdout_end"`
	Candidate     MetricSet    `json:"candidate" db:"-"`
	Current       *MetricSet   `json:"current,omitempty" db:"-"`
	Promote       bool         `json:"promote" db:"promote"`
	Outcome       CycleOutcome `json:"outcome" db:"outcome"`
	Reason        string       `json:"reason,omitempty" db:"reason"`
	ActiveVersion int64        `json:"active_version" db:"active_version"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

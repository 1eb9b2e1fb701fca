package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RaceOutcome is the finishing order and closing prices of a concluded race
type RaceOutcome struct {
	RaceID        string       `json:"race_id" validate:"required"`
	Segment       Segment      `json:"segment"`
	StartTime     time.Time    `json:"start_time"`
	FinishOrder   []string     `json:"finish_order" validate:"required,min=1"`
	ClosingPrices MarketPrices `json:"closing_prices"`
}

// Winner returns the winning horse id
func (o RaceOutcome) Winner() string {
	if len(o.FinishOrder) == 0 {
		return ""
	}
	return o.FinishOrder[0]
}

// FinishPosition returns the 1-based finish of a horse, or 0 if it did not finish
func (o RaceOutcome) FinishPosition(horseID string) int {
	for i, id := range o.FinishOrder {
		if id == horseID {
			return i + 1
		}
	}
	return 0
}

// PlacePositions returns how many finishers pay in the place market
func PlacePositions(fieldSize int) int {
	if fieldSize >= 8 {
		return 3
	}
	return 2
}

// Placed reports whether the horse finished in the paying places
func (o RaceOutcome) Placed(horseID string, fieldSize int) bool {
	pos := o.FinishPosition(horseID)
	return pos > 0 && pos <= PlacePositions(fieldSize)
}

// ClosingPrice returns the closing price of a horse in a market
func (o RaceOutcome) ClosingPrice(market MarketType, horseID string) (decimal.Decimal, bool) {
	return o.ClosingPrices.Price(market, horseID)
}

// LabeledRace pairs the feature vectors of a race with its outcome
type LabeledRace struct {
	RaceID    string          `json:"race_id"`
	Segment   Segment         `json:"segment"`
	StartTime time.Time       `json:"start_time"`
	Vectors   []FeatureVector `json:"vectors"`
	Outcome   RaceOutcome     `json:"outcome"`
}

// SampleCount returns the number of horse-level samples in a set of races
func SampleCount(races []LabeledRace) int {
	n := 0
	for _, r := range races {
		n += len(r.Vectors)
	}
	return n
}

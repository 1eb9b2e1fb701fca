package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Interval is a closed probability interval clipped to [0,1]
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// HalfWidth returns half the interval width
func (i Interval) HalfWidth() float64 {
	return (i.Upper - i.Lower) / 2
}

// HorsePrediction is one ranked entry of a PredictionRecord
type HorsePrediction struct {
	HorseID          string                         `json:"horse_id"`
	Position         int                            `json:"position"`
	WinProbability   float64                        `json:"win_probability"`
	PlaceProbability float64                        `json:"place_probability"`
	WinInterval      Interval                       `json:"win_interval"`
	PlaceInterval    Interval                       `json:"place_interval"`
	RankScore        float64                        `json:"rank_score"`
	CompositeScore   float64                        `json:"composite_score"`
	CompositeRank    int                            `json:"composite_rank"`
	ExpectedValue    map[MarketType]decimal.Decimal `json:"expected_value,omitempty"`
	Recommended      map[MarketType]bool            `json:"recommended,omitempty"`
	LowConfidence    bool                           `json:"low_confidence"`
}

// TicketType names a combination wager
type TicketType string

// Combination wager types
const (
	TicketQuinella TicketType = "quinella"
	TicketTrio     TicketType = "trio"
)

// Ticket is one combination wager. Horses[0] is the anchor leg.
type Ticket struct {
	Type   TicketType `json:"type"`
	Horses []string   `json:"horses"`
}

// PredictionRecord is the immutable per-race output of the scoring pipeline
type PredictionRecord struct {
	ID              uuid.UUID               `json:"id"`
	RaceID          string                  `json:"race_id"`
	Segment         Segment                 `json:"segment"`
	ArtifactID      uuid.UUID               `json:"artifact_id"`
	ArtifactVersion int64                   `json:"artifact_version"`
	Horses          []HorsePrediction       `json:"horses"`
	AnchorHorseID   string                  `json:"anchor_horse_id"`
	Recommendations map[MarketType][]string `json:"recommendations"`
	LooseCandidates map[MarketType][]string `json:"loose_candidates,omitempty"`
	TopPick         string                  `json:"top_pick"`
	DarkHorses      []string                `json:"dark_horses,omitempty"`
	Tickets         []Ticket                `json:"tickets,omitempty"`
	RaceConfidence  float64                 `json:"race_confidence"`
	LowConfidence   bool                    `json:"low_confidence"`
	CreatedAt       time.Time               `json:"created_at"`
}

// Horse returns the prediction for a horse id
func (p *PredictionRecord) Horse(horseID string) (HorsePrediction, bool) {
	for _, h := range p.Horses {
		if h.HorseID == horseID {
			return h, true
		}
	}
	return HorsePrediction{}, false
}

// PredictedRank returns the 1-based composite rank of a horse, or 0 if absent
func (p *PredictionRecord) PredictedRank(horseID string) int {
	for i, h := range p.Horses {
		if h.HorseID == horseID {
			return i + 1
		}
	}
	return 0
}

// TopN returns the ids of the first n horses in composite order
func (p *PredictionRecord) TopN(n int) []string {
	if n > len(p.Horses) {
		n = len(p.Horses)
	}
	ids := make([]string, 0, n)
	for _, h := range p.Horses[:n] {
		ids = append(ids, h.HorseID)
	}
	return ids
}

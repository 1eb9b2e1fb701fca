package prediction

import (
	"sort"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/models"
)

// Aggregate sets the composite score and rank of every horse and returns
// them sorted by descending composite score. Equal scores fall back to
// ascending post position, then horse id, so the order is total.
//
// Win, place and rank score are min-max normalized within the race; the rank
// score is inverted since a lower predicted finish is better. hasRank false
// gives every horse the neutral 0.5 rank component.
func Aggregate(horses []models.HorsePrediction, w config.RankWeights, hasRank bool) []models.HorsePrediction {
	out := make([]models.HorsePrediction, len(horses))
	copy(out, horses)

	win := make([]float64, len(out))
	place := make([]float64, len(out))
	rank := make([]float64, len(out))
	for i, h := range out {
		win[i] = h.WinProbability
		place[i] = h.PlaceProbability
		rank[i] = h.RankScore
	}
	win = normalize(win)
	place = normalize(place)
	rank = normalize(rank)

	for i := range out {
		r := 0.5
		if hasRank {
			r = 1 - rank[i]
		}
		out[i].CompositeScore = w.Win*win[i] + w.Place*place[i] + w.Rank*r
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CompositeScore != out[j].CompositeScore {
			return out[i].CompositeScore > out[j].CompositeScore
		}
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].HorseID < out[j].HorseID
	})
	for i := range out {
		out[i].CompositeRank = i + 1
	}
	return out
}

// SelectAnchor returns the horse with the highest place probability, ties
// broken by win probability then lower post position.
func SelectAnchor(horses []models.HorsePrediction) string {
	if len(horses) == 0 {
		return ""
	}
	best := horses[0]
	for _, h := range horses[1:] {
		if anchorBefore(h, best) {
			best = h
		}
	}
	return best.HorseID
}

func anchorBefore(a, b models.HorsePrediction) bool {
	if a.PlaceProbability != b.PlaceProbability {
		return a.PlaceProbability > b.PlaceProbability
	}
	if a.WinProbability != b.WinProbability {
		return a.WinProbability > b.WinProbability
	}
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	return a.HorseID < b.HorseID
}

// normalize rescales to [0,1]; a constant column maps to 0.5
func normalize(v []float64) []float64 {
	if len(v) == 0 {
		return v
	}
	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	out := make([]float64, len(v))
	for i, x := range v {
		if hi == lo {
			out[i] = 0.5
			continue
		}
		out[i] = (x - lo) / (hi - lo)
	}
	return out
}

// DarkHorses returns horses with a solid place chance but a low win chance,
// in composite order.
func DarkHorses(horses []models.HorsePrediction, cfg config.DarkHorseConfig) []string {
	var out []string
	for _, h := range horses {
		if h.PlaceProbability >= cfg.MinPlace && h.WinProbability < cfg.MaxWin {
			out = append(out, h.HorseID)
		}
	}
	return out
}

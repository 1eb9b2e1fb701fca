package analysis

import (
	"sort"

	"github.com/yourusername/furlong/internal/models"
)

// SegmentCoverage is the top-K cover rate of one segment
type SegmentCoverage struct {
	Segment models.Segment `json:"segment" yaml:"segment"`
	Races   int            `json:"races" yaml:"races"`
	Covered int            `json:"covered" yaml:"covered"`
	Rate    float64        `json:"rate" yaml:"rate"`
	Weak    bool           `json:"weak" yaml:"weak"`
}

// DetectWeakSegments computes how often each segment's winner appeared in
// the top K predicted horses. A segment is weak when its rate falls below
// ratio times the rate over all races.
func DetectWeakSegments(races []Race, topK int, ratio float64) []SegmentCoverage {
	bySegment := make(map[models.Segment]*SegmentCoverage)
	var total, covered int
	for _, race := range races {
		if race.Record == nil {
			continue
		}
		seg := race.Record.Segment
		c, ok := bySegment[seg]
		if !ok {
			c = &SegmentCoverage{Segment: seg}
			bySegment[seg] = c
		}
		c.Races++
		total++
		rank := race.Record.PredictedRank(race.Outcome.Winner())
		if rank > 0 && rank <= topK {
			c.Covered++
			covered++
		}
	}
	if total == 0 {
		return nil
	}

	overall := float64(covered) / float64(total)
	out := make([]SegmentCoverage, 0, len(bySegment))
	for _, c := range bySegment {
		c.Rate = float64(c.Covered) / float64(c.Races)
		c.Weak = c.Rate < ratio*overall
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Segment < out[j].Segment })
	return out
}

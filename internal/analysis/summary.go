package analysis

import (
	"sort"
	"time"

	"github.com/yourusername/furlong/internal/models"
)

// DaySummary counts failure categories for one race day (UTC)
type DaySummary struct {
	Date   time.Time                      `json:"date" yaml:"date"`
	Races  int                            `json:"races" yaml:"races"`
	Counts map[models.FailureCategory]int `json:"counts" yaml:"counts"`
	// MRR is the mean reciprocal predicted rank of the winners
	MRR float64 `json:"mrr" yaml:"mrr"`
}

// HitRate returns the share of races classified as hits
func (d DaySummary) HitRate() float64 {
	if d.Races == 0 {
		return 0
	}
	return float64(d.Counts[models.FailureHit]) / float64(d.Races)
}

// SummarizeFailures groups reports by UTC race day, oldest first
func SummarizeFailures(reports []FailureReport) []DaySummary {
	byDay := make(map[time.Time]*DaySummary)
	rr := make(map[time.Time]float64)
	for _, r := range reports {
		day := r.StartTime.UTC().Truncate(24 * time.Hour)
		s, ok := byDay[day]
		if !ok {
			s = &DaySummary{Date: day, Counts: make(map[models.FailureCategory]int)}
			byDay[day] = s
		}
		s.Races++
		s.Counts[r.Category]++
		if r.PredictedRank > 0 {
			rr[day] += 1 / float64(r.PredictedRank)
		}
	}

	out := make([]DaySummary, 0, len(byDay))
	for day, s := range byDay {
		s.MRR = rr[day] / float64(s.Races)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/furlong/internal/models"
)

// Report is the serializable summary of one backtest
type Report struct {
	Segment      string             `yaml:"segment"`
	CandidateID  string             `yaml:"candidate_id"`
	CurrentID    string             `yaml:"current_id,omitempty"`
	HoldoutStart time.Time          `yaml:"holdout_start"`
	HoldoutEnd   time.Time          `yaml:"holdout_end"`
	Races        int                `yaml:"races"`
	Candidate    map[string]float64 `yaml:"candidate"`
	Current      map[string]float64 `yaml:"current,omitempty"`
	Promote      bool               `yaml:"promote"`
	Outcome      string             `yaml:"outcome"`
	Reason       string             `yaml:"reason,omitempty"`
	MaxDrawdown  string             `yaml:"max_drawdown,omitempty"`
	FinalReturn  string             `yaml:"final_return,omitempty"`
	MonteCarlo   *MonteCarloResult  `yaml:"monte_carlo,omitempty"`
}

// NewReport builds a report from a result and, optionally, the candidate's
// replayed races
func NewReport(result models.BacktestResult, replays []RaceReplay, mc *MonteCarloResult) Report {
	r := Report{
		Segment:      string(result.Segment),
		CandidateID:  result.CandidateID.String(),
		HoldoutStart: result.HoldoutStart,
		HoldoutEnd:   result.HoldoutEnd,
		Races:        result.Candidate.Races,
		Candidate:    MetricMap(result.Candidate),
		Promote:      result.Promote,
		Outcome:      string(result.Outcome),
		Reason:       result.Reason,
		MonteCarlo:   mc,
	}
	if result.Current != nil {
		r.CurrentID = result.CurrentID.String()
		r.Current = MetricMap(*result.Current)
	}
	if len(replays) > 0 {
		curve := BuildEquityCurve(replays)
		r.MaxDrawdown = curve.MaxDrawdown().String()
		r.FinalReturn = curve.Final().String()
	}
	return r
}

// GenerateConsoleReport formats a report for terminal output
func GenerateConsoleReport(r Report) string {
	var builder strings.Builder
	builder.WriteString("Backtest Report\n")
	builder.WriteString("================\n")
	builder.WriteString(fmt.Sprintf("Segment: %s\n", r.Segment))
	builder.WriteString(fmt.Sprintf("Holdout: %s to %s (%d races)\n",
		r.HoldoutStart.Format("2006-01-02"), r.HoldoutEnd.Format("2006-01-02"), r.Races))
	builder.WriteString(fmt.Sprintf("Outcome: %s (promote=%t)\n", r.Outcome, r.Promote))
	if r.Reason != "" {
		builder.WriteString(fmt.Sprintf("Reason: %s\n", r.Reason))
	}

	names := make([]string, 0, len(r.Candidate))
	for name := range r.Candidate {
		names = append(names, name)
	}
	sort.Strings(names)
	builder.WriteString(fmt.Sprintf("%-20s %10s %10s\n", "metric", "candidate", "current"))
	for _, name := range names {
		current := "-"
		if v, ok := r.Current[name]; ok {
			current = fmt.Sprintf("%.4f", v)
		}
		builder.WriteString(fmt.Sprintf("%-20s %10.4f %10s\n", name, r.Candidate[name], current))
	}
	if r.MaxDrawdown != "" {
		builder.WriteString(fmt.Sprintf("Final Return: %s units\n", r.FinalReturn))
		builder.WriteString(fmt.Sprintf("Max Drawdown: %s units\n", r.MaxDrawdown))
	}
	if r.MonteCarlo != nil {
		builder.WriteString(fmt.Sprintf("Probability of Profit: %.2f%%\n", r.MonteCarlo.ProbabilityOfProfit*100))
	}
	return builder.String()
}

// WriteYAMLReport writes a report to outputPath
func WriteYAMLReport(r Report, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return os.WriteFile(outputPath, data, 0o644)
}

// GenerateCSVExport exports candidate and current metrics for spreadsheets
func GenerateCSVExport(r Report, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	names := make([]string, 0, len(r.Candidate))
	for name := range r.Candidate {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("metric,candidate,current\n")
	for _, name := range names {
		current := ""
		if v, ok := r.Current[name]; ok {
			current = fmt.Sprintf("%.4f", v)
		}
		b.WriteString(fmt.Sprintf("%s,%.4f,%s\n", name, r.Candidate[name], current))
	}
	return os.WriteFile(outputPath, []byte(b.String()), 0o644)
}

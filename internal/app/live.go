package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/furlong/internal/analysis"
	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/datasource"
	"github.com/yourusername/furlong/internal/marketdata"
	"github.com/yourusername/furlong/internal/metrics"
	"github.com/yourusername/furlong/internal/models"
)

// settledRetention is how far back Summary looks at settled races
const settledRetention = 7 * 24 * time.Hour

// RaceFeed lists upcoming races and reports results
type RaceFeed interface {
	Upcoming(ctx context.Context, segment models.Segment, within time.Duration) ([]datasource.RaceCard, error)
	Outcome(ctx context.Context, raceID string) (*models.RaceOutcome, error)
}

// Predictor scores one race against the segment's champion
type Predictor interface {
	Predict(ctx context.Context, raceID string, segment models.Segment, vectors []models.FeatureVector, prices models.MarketPrices) (*models.PredictionRecord, error)
}

// PredictionNotifier delivers prediction records
type PredictionNotifier interface {
	NotifyPrediction(ctx context.Context, rec *models.PredictionRecord) error
}

type pendingRace struct {
	record    *models.PredictionRecord
	startTime time.Time
}

// Live predicts upcoming races and classifies them once results are in.
// Each race is announced once per champion version.
type Live struct {
	feed      RaceFeed
	prices    marketdata.PriceSource
	predictor Predictor
	notifier  PredictionNotifier
	engine    *config.Holder
	logger    *logrus.Entry
	now       func() time.Time
	retention time.Duration

	mu      sync.Mutex
	pending map[string]pendingRace
	reports []analysis.FailureReport
	races   []analysis.Race
}

// NewLive creates the live loop
func NewLive(feed RaceFeed, prices marketdata.PriceSource, predictor Predictor, notifier PredictionNotifier, engine *config.Holder, logger *logrus.Logger) *Live {
	return &Live{
		feed:      feed,
		prices:    prices,
		predictor: predictor,
		notifier:  notifier,
		engine:    engine,
		logger:    logger.WithField("component", "live"),
		now:       time.Now,
		retention: settledRetention,
		pending:   make(map[string]pendingRace),
	}
}

// PredictUpcoming predicts every race of every segment starting within the
// window. A segment without a champion is skipped.
func (l *Live) PredictUpcoming(ctx context.Context, within time.Duration) (int, error) {
	predicted := 0
	var errs []error
	for _, segment := range l.engine.Load().SegmentList() {
		cards, err := l.feed.Upcoming(ctx, segment, within)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, card := range cards {
			if ctx.Err() != nil {
				return predicted, ctx.Err()
			}
			rec, err := l.PredictCard(ctx, card)
			if errors.Is(err, models.ErrModelUnavailable) {
				break
			}
			if err != nil {
				l.logger.WithError(err).WithField("race_id", card.RaceID).Warn("Prediction failed")
				continue
			}
			if rec != nil {
				predicted++
			}
		}
	}
	return predicted, errors.Join(errs...)
}

// PredictCard predicts one race. It returns nil without error when the race
// was already announced with the current champion.
func (l *Live) PredictCard(ctx context.Context, card datasource.RaceCard) (*models.PredictionRecord, error) {
	prices, err := l.prices.Prices(ctx, card.RaceID)
	if err != nil {
		l.logger.WithError(err).WithField("race_id", card.RaceID).Debug("No market prices, predicting without EV")
		prices = models.MarketPrices{}
	}
	rec, err := l.predictor.Predict(ctx, card.RaceID, card.Segment, card.Vectors, prices)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	prev, seen := l.pending[card.RaceID]
	fresh := !seen || prev.record.ArtifactVersion != rec.ArtifactVersion
	l.pending[card.RaceID] = pendingRace{record: rec, startTime: card.StartTime}
	l.mu.Unlock()
	if !fresh {
		return nil, nil
	}

	if l.notifier != nil {
		if err := l.notifier.NotifyPrediction(ctx, rec); err != nil {
			l.logger.WithError(err).WithField("race_id", rec.RaceID).Warn("Prediction notification failed")
		}
	}
	return rec, nil
}

// Settle fetches results of started races and classifies them. Races whose
// result is not yet official stay pending.
func (l *Live) Settle(ctx context.Context) ([]analysis.FailureReport, error) {
	now := l.now()
	l.mu.Lock()
	due := make([]pendingRace, 0, len(l.pending))
	for _, p := range l.pending {
		if !p.startTime.After(now) {
			due = append(due, p)
		}
	}
	l.mu.Unlock()

	cfg := l.engine.Load().Failure
	var out []analysis.FailureReport
	var errs []error
	for _, p := range due {
		outcome, err := l.feed.Outcome(ctx, p.record.RaceID)
		if errors.Is(err, datasource.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if outcome.StartTime.IsZero() {
			outcome.StartTime = p.startTime
		}
		report, err := analysis.ClassifyFailure(p.record, *outcome, cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		metrics.RecordRaceResult(string(report.Segment), string(report.Category))
		l.logger.WithFields(logrus.Fields{
			"race_id":        report.RaceID,
			"segment":        report.Segment,
			"category":       report.Category,
			"predicted_rank": report.PredictedRank,
		}).Info("Race settled")

		l.mu.Lock()
		delete(l.pending, p.record.RaceID)
		l.reports = append(l.reports, report)
		l.races = append(l.races, analysis.Race{Record: p.record, Outcome: *outcome})
		l.mu.Unlock()
		out = append(out, report)
	}

	l.mu.Lock()
	l.trimSettled(now.Add(-l.retention))
	l.mu.Unlock()
	return out, errors.Join(errs...)
}

// trimSettled drops settled races that started before cutoff. Callers hold mu.
func (l *Live) trimSettled(cutoff time.Time) {
	reports := l.reports[:0]
	for _, r := range l.reports {
		if !r.StartTime.Before(cutoff) {
			reports = append(reports, r)
		}
	}
	clear(l.reports[len(reports):])
	l.reports = reports

	races := l.races[:0]
	for _, r := range l.races {
		if !r.Outcome.StartTime.Before(cutoff) {
			races = append(races, r)
		}
	}
	clear(l.races[len(races):])
	l.races = races
}

// Pending returns the number of predicted races awaiting a result
func (l *Live) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Summary returns per-day failure counts and the weak segments of the races
// settled within the retention window
func (l *Live) Summary() ([]analysis.DaySummary, []analysis.SegmentCoverage) {
	l.mu.Lock()
	reports := append([]analysis.FailureReport(nil), l.reports...)
	races := append([]analysis.Race(nil), l.races...)
	l.mu.Unlock()

	cfg := l.engine.Load()
	return analysis.SummarizeFailures(reports), analysis.DetectWeakSegments(races, cfg.TopK, cfg.WeaknessRatio)
}

// Package notify delivers prediction records and backtest results to the
// configured outbound transports.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/metrics"
	"github.com/yourusername/furlong/internal/models"
)

// Notifier is one outbound transport
type Notifier interface {
	Name() string
	NotifyPrediction(ctx context.Context, rec *models.PredictionRecord) error
	NotifyBacktest(ctx context.Context, result models.BacktestResult) error
	Close() error
}

// Multi fans every notification out to all transports. A failing transport
// does not stop delivery to the others.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a fan-out notifier
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Name returns "multi"
func (m *Multi) Name() string { return "multi" }

// NotifyPrediction delivers rec to every transport
func (m *Multi) NotifyPrediction(ctx context.Context, rec *models.PredictionRecord) error {
	var errs []error
	for _, n := range m.notifiers {
		err := n.NotifyPrediction(ctx, rec)
		metrics.RecordNotification(n.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// NotifyBacktest delivers result to every transport
func (m *Multi) NotifyBacktest(ctx context.Context, result models.BacktestResult) error {
	var errs []error
	for _, n := range m.notifiers {
		err := n.NotifyBacktest(ctx, result)
		metrics.RecordNotification(n.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport
func (m *Multi) Close() error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the transports named in cfg
func New(cfg config.NotifierConfig, logger *logrus.Logger) (*Multi, error) {
	var notifiers []Notifier
	for _, name := range cfg.Transports {
		var (
			n   Notifier
			err error
		)
		switch name {
		case "log":
			n = NewLogNotifier(logger)
		case "nats":
			n, err = NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		case "kafka":
			n = NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.PredictionsTopic, cfg.Kafka.BacktestsTopic)
		case "telegram":
			n, err = NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries)
		default:
			err = fmt.Errorf("unknown transport %q", name)
		}
		if err != nil {
			_ = NewMulti(notifiers...).Close()
			return nil, fmt.Errorf("failed to create %s notifier: %w", name, err)
		}
		notifiers = append(notifiers, n)
	}
	return NewMulti(notifiers...), nil
}

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	logger *logrus.Entry
}

// NewLogNotifier creates a log notifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithField("component", "notify")}
}

// Name returns "log"
func (l *LogNotifier) Name() string { return "log" }

// NotifyPrediction logs the headline of a prediction record
func (l *LogNotifier) NotifyPrediction(_ context.Context, rec *models.PredictionRecord) error {
	l.logger.WithFields(logrus.Fields{
		"race_id":          rec.RaceID,
		"segment":          rec.Segment,
		"artifact_version": rec.ArtifactVersion,
		"anchor":           rec.AnchorHorseID,
		"top_pick":         rec.TopPick,
		"win_bets":         rec.Recommendations[models.MarketWin],
		"place_bets":       rec.Recommendations[models.MarketPlace],
		"race_confidence":  rec.RaceConfidence,
	}).Info("Prediction published")
	return nil
}

// NotifyBacktest logs a retrain cycle outcome
func (l *LogNotifier) NotifyBacktest(_ context.Context, result models.BacktestResult) error {
	entry := l.logger.WithFields(logrus.Fields{
		"segment":      result.Segment,
		"candidate_id": result.CandidateID,
		"current_id":   result.CurrentID,
		"outcome":      result.Outcome,
		"promote":      result.Promote,
		"reason":       result.Reason,
		"win_auc":      result.Candidate.WinAUC,
	})
	if result.Outcome == models.OutcomeAborted || result.Outcome == models.OutcomeRejected {
		entry.Warn("Retrain cycle did not complete")
		return nil
	}
	entry.Info("Retrain cycle finished")
	return nil
}

// Close is a no-op
func (l *LogNotifier) Close() error { return nil }

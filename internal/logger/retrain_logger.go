package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// RetrainLogger provides the audit trail of the champion/challenger loop.
type RetrainLogger struct {
	*logrus.Entry
}

// NewRetrainLogger creates a new retrain logger.
func NewRetrainLogger(baseLogger *logrus.Logger) *RetrainLogger {
	return &RetrainLogger{
		Entry: baseLogger.WithField("component", "retrain"),
	}
}

// LogTransition logs a state machine transition.
func (rl *RetrainLogger) LogTransition(runID, segment, from, to string) {
	rl.WithFields(logrus.Fields{
		"run_id":  runID,
		"segment": segment,
		"from":    from,
		"to":      to,
	}).Info("Retrain state transition")
}

// LogSearchTrial logs one hyperparameter search trial.
func (rl *RetrainLogger) LogSearchTrial(runID, segment string, trial int, params map[string]float64, objective float64) {
	rl.WithFields(logrus.Fields{
		"run_id":    runID,
		"segment":   segment,
		"trial":     trial,
		"params":    params,
		"objective": objective,
	}).Debug("Search trial evaluated")
}

// LogDecision logs the promote/keep decision with the compared metrics.
func (rl *RetrainLogger) LogDecision(runID, segment string, promote bool, reason string, candidate, current map[string]float64) {
	rl.WithFields(logrus.Fields{
		"run_id":    runID,
		"segment":   segment,
		"promote":   promote,
		"reason":    reason,
		"candidate": candidate,
		"current":   current,
	}).Info("Promotion decision made")
}

// LogSwap logs an active artifact swap.
func (rl *RetrainLogger) LogSwap(segment, previousID, newID string, version int64, at time.Time) {
	rl.WithFields(logrus.Fields{
		"segment":     segment,
		"previous_id": previousID,
		"new_id":      newID,
		"version":     version,
		"swapped_at":  at.Unix(),
	}).Info("Active artifact swapped")
}

// LogAbort logs a cycle that ended without evaluation.
func (rl *RetrainLogger) LogAbort(runID, segment, state string, err error) {
	rl.WithFields(logrus.Fields{
		"run_id":  runID,
		"segment": segment,
		"state":   state,
	}).WithError(err).Warn("Retrain cycle aborted")
}

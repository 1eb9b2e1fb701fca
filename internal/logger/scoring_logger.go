package logger

import (
	"github.com/sirupsen/logrus"
)

// ScoringLogger provides dedicated logging for the live scoring path.
type ScoringLogger struct {
	*logrus.Entry
}

// NewScoringLogger creates a new scoring logger.
func NewScoringLogger(baseLogger *logrus.Logger) *ScoringLogger {
	return &ScoringLogger{
		Entry: baseLogger.WithField("component", "scoring"),
	}
}

// LogPrediction logs a completed race prediction.
func (sl *ScoringLogger) LogPrediction(raceID, segment string, artifactVersion int64, horses int, anchor string, winRecommendations int, cacheHit bool, latencyMs float64) {
	sl.WithFields(logrus.Fields{
		"race_id":             raceID,
		"segment":             segment,
		"artifact_version":    artifactVersion,
		"horses":              horses,
		"anchor_horse_id":     anchor,
		"win_recommendations": winRecommendations,
		"cache_hit":           cacheHit,
		"latency_ms":          latencyMs,
	}).Info("Race prediction produced")
}

// LogImputedFeatures logs features replaced by schema defaults.
func (sl *ScoringLogger) LogImputedFeatures(raceID, horseID string, features []string) {
	sl.WithFields(logrus.Fields{
		"race_id":  raceID,
		"horse_id": horseID,
		"features": features,
	}).Debug("Imputed missing features")
}

// LogModelUnavailable logs a scoring call rejected for lack of an active artifact.
func (sl *ScoringLogger) LogModelUnavailable(raceID, segment string) {
	sl.WithFields(logrus.Fields{
		"race_id": raceID,
		"segment": segment,
	}).Warn("No active model artifact for segment")
}

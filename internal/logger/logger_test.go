package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() (*logrus.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := New(buf, "debug", true)
	return log, buf
}

func parseLogOutput(buf *bytes.Buffer) map[string]interface{} {
	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		return nil
	}
	return logEntry
}

func TestNewFallsBackToInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(buf, "chatty", true)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestScoringLoggerPrediction(t *testing.T) {
	log, buf := setupTestLogger()
	sl := NewScoringLogger(log)

	sl.LogPrediction("race_1", "turf", 4, 12, "h7", 2, false, 3.2)

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "scoring", logEntry["component"])
	assert.Equal(t, "race_1", logEntry["race_id"])
	assert.Equal(t, "h7", logEntry["anchor_horse_id"])
	assert.Equal(t, float64(4), logEntry["artifact_version"])
}

func TestScoringLoggerModelUnavailable(t *testing.T) {
	log, buf := setupTestLogger()
	NewScoringLogger(log).LogModelUnavailable("race_1", "dirt")

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "warning", logEntry["level"])
	assert.Equal(t, "dirt", logEntry["segment"])
}

func TestRetrainLoggerDecision(t *testing.T) {
	log, buf := setupTestLogger()
	rl := NewRetrainLogger(log)

	rl.LogDecision("run_1", "turf", true, "calibration improved",
		map[string]float64{"win_auc": 0.71}, map[string]float64{"win_auc": 0.70})

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "retrain", logEntry["component"])
	assert.Equal(t, true, logEntry["promote"])
	assert.Equal(t, "calibration improved", logEntry["reason"])
}

func TestRetrainLoggerSwap(t *testing.T) {
	log, buf := setupTestLogger()
	rl := NewRetrainLogger(log)

	at := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	rl.LogSwap("turf", "old", "new", 7, at)

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "new", logEntry["new_id"])
	assert.Equal(t, float64(at.Unix()), logEntry["swapped_at"])
}

func TestRetrainLoggerAbort(t *testing.T) {
	log, buf := setupTestLogger()
	NewRetrainLogger(log).LogAbort("run_2", "dirt", "collect", errors.New("not enough races"))

	logEntry := parseLogOutput(buf)
	require.NotNil(t, logEntry)
	assert.Equal(t, "collect", logEntry["state"])
	assert.Equal(t, "not enough races", logEntry["error"])
}

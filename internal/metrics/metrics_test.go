package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistry(t *testing.T) {
	registry := InitRegistry()
	assert.NotNil(t, registry)
	assert.Same(t, registry, GetRegistry())
}

func TestRecordSwapSetsVersion(t *testing.T) {
	InitRegistry()

	RecordSwap("turf", 5)
	assert.Equal(t, float64(5), testutil.ToFloat64(ActiveArtifactVersion.WithLabelValues("turf")))

	before := testutil.ToFloat64(ArtifactSwapsTotal.WithLabelValues("turf"))
	RecordSwap("turf", 6)
	assert.Equal(t, before+1, testutil.ToFloat64(ArtifactSwapsTotal.WithLabelValues("turf")))
}

func TestRecordPredictionLabelsCache(t *testing.T) {
	InitRegistry()

	hits := testutil.ToFloat64(PredictionsTotal.WithLabelValues("dirt", "hit"))
	RecordPrediction("dirt", true, 0.002)
	assert.Equal(t, hits+1, testutil.ToFloat64(PredictionsTotal.WithLabelValues("dirt", "hit")))
}

func TestRecordNotificationStatus(t *testing.T) {
	InitRegistry()

	failures := testutil.ToFloat64(NotificationsTotal.WithLabelValues("nats", "failure"))
	RecordNotification("nats", errors.New("no servers"))
	assert.Equal(t, failures+1, testutil.ToFloat64(NotificationsTotal.WithLabelValues("nats", "failure")))
}

func TestRecordHelpersDoNotPanic(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordModelUnavailable("turf")
		RecordMissingPrice("place")
		RecordImputedFeatures("turf", 3)
		RecordRecommendations("win", 2)
		RecordRetrainCycle("turf", "kept", 12.5)
		RecordBacktestMetrics("turf", "candidate", map[string]float64{"win_auc": 0.7})
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	InitRegistry()
	RecordSwap("dirt", 1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "furlong_active_artifact_version")
}

// Package metrics provides the Prometheus registry for the scoring and retrain engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "furlong"

var (
	registry *prometheus.Registry
	once     sync.Once
)

// Scoring path metrics
var (
	PredictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "predictions_total",
		Help:      "Total number of race predictions by segment and cache result",
	}, []string{"segment", "cache"})
	ModelUnavailableTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_unavailable_total",
		Help:      "Scoring calls rejected because the segment had no active artifact",
	}, []string{"segment"})
	MissingPricesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "missing_market_prices_total",
		Help:      "Horses excluded from a market's recommendations for lack of a price",
	}, []string{"market"})
	ImputedFeaturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "imputed_features_total",
		Help:      "Feature values replaced by schema defaults",
	}, []string{"segment"})
	RecommendationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recommendations_total",
		Help:      "EV-gated recommendations emitted by market",
	}, []string{"market"})
	PredictionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "prediction_latency_seconds",
		Help:      "Latency of race predictions in seconds",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
)

// Registry and retrain metrics
var (
	ActiveArtifactVersion = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_artifact_version",
		Help:      "Version counter of the active artifact per segment",
	}, []string{"segment"})
	ArtifactSwapsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifact_swaps_total",
		Help:      "Active artifact swaps per segment",
	}, []string{"segment"})
	RetrainCyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrain_cycles_total",
		Help:      "Retrain cycles by segment and outcome",
	}, []string{"segment", "outcome"})
	RetrainDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrain_duration_seconds",
		Help:      "Duration of retrain cycles in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
	}, []string{"segment"})
	BacktestMetric = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backtest_metric",
		Help:      "Latest holdout metrics per segment and role (candidate or current)",
	}, []string{"segment", "role", "metric"})
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notifications sent by transport and status",
	}, []string{"transport", "status"})
	PredictionCacheHitRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "prediction_cache_hit_rate",
		Help:      "Hit rate of the prediction cache",
	})
	RaceResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "race_results_total",
		Help:      "Classified race results by segment and failure category",
	}, []string{"segment", "category"})
	FeedRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_requests_total",
		Help:      "Feature feed requests by endpoint and status",
	}, []string{"endpoint", "status"})
	FeedRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_rejected_races_total",
		Help:      "Races dropped from feed responses by reason",
	}, []string{"reason"})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			PredictionsTotal,
			ModelUnavailableTotal,
			MissingPricesTotal,
			ImputedFeaturesTotal,
			RecommendationsTotal,
			PredictionLatency,
			ActiveArtifactVersion,
			ArtifactSwapsTotal,
			RetrainCyclesTotal,
			RetrainDuration,
			BacktestMetric,
			NotificationsTotal,
			PredictionCacheHitRate,
			RaceResultsTotal,
			FeedRequestsTotal,
			FeedRejectedTotal,
		)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return InitRegistry()
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordPrediction records a produced race prediction.
func RecordPrediction(segment string, cacheHit bool, durationSeconds float64) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	PredictionsTotal.WithLabelValues(segment, cache).Inc()
	PredictionLatency.Observe(durationSeconds)
}

// RecordModelUnavailable records a scoring call with no active artifact.
func RecordModelUnavailable(segment string) {
	ModelUnavailableTotal.WithLabelValues(segment).Inc()
}

// RecordMissingPrice records a horse skipped in a market for lack of a price.
func RecordMissingPrice(market string) {
	MissingPricesTotal.WithLabelValues(market).Inc()
}

// RecordImputedFeatures records imputed feature values.
func RecordImputedFeatures(segment string, count int) {
	ImputedFeaturesTotal.WithLabelValues(segment).Add(float64(count))
}

// RecordRecommendations records emitted recommendations for a market.
func RecordRecommendations(market string, count int) {
	RecommendationsTotal.WithLabelValues(market).Add(float64(count))
}

// RecordSwap records an active artifact swap.
func RecordSwap(segment string, version int64) {
	ArtifactSwapsTotal.WithLabelValues(segment).Inc()
	ActiveArtifactVersion.WithLabelValues(segment).Set(float64(version))
}

// RecordRetrainCycle records a finished retrain cycle.
func RecordRetrainCycle(segment, outcome string, durationSeconds float64) {
	RetrainCyclesTotal.WithLabelValues(segment, outcome).Inc()
	RetrainDuration.WithLabelValues(segment).Observe(durationSeconds)
}

// RecordBacktestMetrics publishes a holdout metric map.
func RecordBacktestMetrics(segment, role string, values map[string]float64) {
	for name, v := range values {
		BacktestMetric.WithLabelValues(segment, role, name).Set(v)
	}
}

// RecordNotification records a notification attempt.
func RecordNotification(transport string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	NotificationsTotal.WithLabelValues(transport, status).Inc()
}

// RecordRaceResult records the failure category of a concluded race.
func RecordRaceResult(segment, category string) {
	RaceResultsTotal.WithLabelValues(segment, category).Inc()
}

// RecordFeedRequest records a feature feed request.
func RecordFeedRequest(endpoint string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	FeedRequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordFeedRejected records a race dropped from a feed response.
func RecordFeedRejected(reason string) {
	FeedRejectedTotal.WithLabelValues(reason).Inc()
}

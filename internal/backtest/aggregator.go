package backtest

import (
	"math"

	"github.com/yourusername/furlong/internal/models"
)

// CompositeWeights weight the metric components of the composite score
type CompositeWeights struct {
	WinAUC      float64 `json:"win_auc"`
	PlaceAUC    float64 `json:"place_auc"`
	Quinella    float64 `json:"quinella"`
	TopK        float64 `json:"top_k"`
	WinReturn   float64 `json:"win_return"`
	PlaceReturn float64 `json:"place_return"`
}

// DefaultCompositeWeights are the weights used for search and reporting
var DefaultCompositeWeights = CompositeWeights{
	WinAUC:      0.25,
	PlaceAUC:    0.15,
	Quinella:    0.15,
	TopK:        0.20,
	WinReturn:   0.15,
	PlaceReturn: 0.10,
}

// CompositeScore folds a metric set into one number in [0,1]. AUCs are
// rescaled so that 0.5 (chance) scores zero; returns are clamped from -50%
// to +100%.
func CompositeScore(m models.MetricSet) float64 {
	return CompositeScoreWith(m, DefaultCompositeWeights)
}

// CompositeScoreWith computes the composite score with explicit weights
func CompositeScoreWith(m models.MetricSet, w CompositeWeights) float64 {
	winRet, _ := m.WinReturn.Float64()
	placeRet, _ := m.PlaceReturn.Float64()

	weighted := 0.0
	weighted += normalize((m.WinAUC-0.5)*2, 0, 1) * w.WinAUC
	weighted += normalize((m.PlaceAUC-0.5)*2, 0, 1) * w.PlaceAUC
	weighted += normalize(m.QuinellaHitRate, 0, 1) * w.Quinella
	weighted += normalize(m.TopKCoverage, 0, 1) * w.TopK
	weighted += normalize(winRet, -0.5, 1.0) * w.WinReturn
	weighted += normalize(placeRet, -0.5, 1.0) * w.PlaceReturn
	return round4(weighted)
}

// MetricMap flattens a metric set for logs, gauges and notifications
func MetricMap(m models.MetricSet) map[string]float64 {
	winRet, _ := m.WinReturn.Float64()
	placeRet, _ := m.PlaceReturn.Float64()
	realized, _ := m.RealizedReturn.Float64()
	anchorROI, _ := m.AnchorPlaceROI.Float64()
	return map[string]float64{
		"win_auc":           m.WinAUC,
		"place_auc":         m.PlaceAUC,
		"brier_score":       m.BrierScore,
		"calibration_error": m.CalibrationError,
		"top_k_coverage":    m.TopKCoverage,
		"quinella_hit_rate": m.QuinellaHitRate,
		"anchor_place_rate": m.AnchorPlaceRate,
		"anchor_place_roi":  anchorROI,
		"win_return":        winRet,
		"place_return":      placeRet,
		"realized_return":   realized,
		"composite_score":   m.CompositeScore,
	}
}

func normalize(value, min, max float64) float64 {
	if max-min == 0 {
		return 0
	}
	v := (value - min) / (max - min)
	return math.Max(0, math.Min(1, v))
}

package repository

import (
	"context"
	"sync"

	"github.com/yourusername/furlong/internal/models"
)

// MemoryBacktestHistory keeps the most recent results in process. It is
// used when no ClickHouse instance is configured.
type MemoryBacktestHistory struct {
	mu      sync.RWMutex
	results []models.BacktestResult
	max     int
}

// NewMemoryBacktestHistory keeps at most max results; max <= 0 keeps all
func NewMemoryBacktestHistory(max int) *MemoryBacktestHistory {
	return &MemoryBacktestHistory{max: max}
}

// Append adds a result, evicting the oldest when full
func (h *MemoryBacktestHistory) Append(_ context.Context, result models.BacktestResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, result)
	if h.max > 0 && len(h.results) > h.max {
		h.results = h.results[len(h.results)-h.max:]
	}
	return nil
}

// Recent returns the newest results of a segment, newest first
func (h *MemoryBacktestHistory) Recent(_ context.Context, segment models.Segment, limit int) ([]models.BacktestResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []models.BacktestResult
	for i := len(h.results) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if h.results[i].Segment == segment {
			out = append(out, h.results[i])
		}
	}
	return out, nil
}

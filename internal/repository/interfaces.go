// Package repository persists artifact metadata in PostgreSQL and the
// append-only backtest history in ClickHouse.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/furlong/internal/models"
)

// ArtifactRepository defines the interface for artifact data access
type ArtifactRepository interface {
	Activate(ctx context.Context, artifact *models.ModelArtifact, expected int64) error
	GetActive(ctx context.Context, segment models.Segment) (*models.ModelArtifact, error)
	List(ctx context.Context, segment models.Segment, limit int) ([]ArtifactSummary, error)
}

// BacktestHistory defines the interface for the backtest result log
type BacktestHistory interface {
	Append(ctx context.Context, result models.BacktestResult) error
	Recent(ctx context.Context, segment models.Segment, limit int) ([]models.BacktestResult, error)
}

// ArtifactSummary is the metadata row of a stored artifact
type ArtifactSummary struct {
	ID          uuid.UUID      `json:"id" yaml:"id"`
	Segment     models.Segment `json:"segment" yaml:"segment"`
	Version     int64          `json:"version" yaml:"version"`
	TrainedFrom time.Time      `json:"trained_from" yaml:"trained_from"`
	TrainedTo   time.Time      `json:"trained_to" yaml:"trained_to"`
	SampleCount int            `json:"sample_count" yaml:"sample_count"`
	Active      bool           `json:"active" yaml:"active"`
	ActivatedAt *time.Time     `json:"activated_at,omitempty" yaml:"activated_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
}

var (
	_ ArtifactRepository = (*PostgresArtifactRepository)(nil)
	_ BacktestHistory    = (*ClickHouseBacktestHistory)(nil)
	_ BacktestHistory    = (*MemoryBacktestHistory)(nil)
)

package database

import (
	"context"
	"fmt"

	"github.com/yourusername/furlong/internal/config"
)

// schema creates the artifact tables. The partial unique index keeps at
// most one active artifact per segment.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS model_artifacts (
		id UUID PRIMARY KEY,
		segment TEXT NOT NULL,
		version BIGINT NOT NULL,
		trained_from TIMESTAMPTZ NOT NULL,
		trained_to TIMESTAMPTZ NOT NULL,
		sample_count INTEGER NOT NULL,
		hyperparameters JSONB NOT NULL DEFAULT '{}'::jsonb,
		payload JSONB NOT NULL,
		active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (segment, version)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS model_artifacts_one_active
		ON model_artifacts (segment) WHERE active`,
}

// EnsureSchema creates missing tables and indexes
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Initialize connects using the application config and applies the schema
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

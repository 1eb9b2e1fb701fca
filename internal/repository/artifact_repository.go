package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/furlong/internal/database"
	"github.com/yourusername/furlong/internal/models"
)

// PostgresArtifactRepository implements ArtifactRepository for PostgreSQL.
// The full artifact is stored as a JSONB payload next to its metadata columns.
type PostgresArtifactRepository struct {
	db *database.DB
}

// NewPostgresArtifactRepository creates a new artifact repository
func NewPostgresArtifactRepository(db *database.DB) *PostgresArtifactRepository {
	return &PostgresArtifactRepository{db: db}
}

// Activate stores artifact and makes it the segment's active one in a
// single transaction. Writers of a segment are serialized by an advisory
// lock; the active version must still equal expected (0 for none) or
// models.ErrVersionConflict is returned. The stored version is the
// segment's highest plus one and is written back to artifact.Version.
func (r *PostgresArtifactRepository) Activate(ctx context.Context, artifact *models.ModelArtifact, expected int64) error {
	if artifact == nil {
		return errors.New("nil artifact")
	}
	segment := string(artifact.Segment)
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext('model_artifacts:' || $1))", segment); err != nil {
			return fmt.Errorf("failed to lock segment: %w", err)
		}

		var active int64
		err := tx.QueryRow(ctx,
			"SELECT version FROM model_artifacts WHERE segment = $1 AND active",
			segment,
		).Scan(&active)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to read active version: %w", err)
		}
		if active != expected {
			return fmt.Errorf("segment %s active version %d, expected %d: %w", segment, active, expected, models.ErrVersionConflict)
		}

		var next int64
		if err := tx.QueryRow(ctx,
			"SELECT COALESCE(MAX(version), 0) + 1 FROM model_artifacts WHERE segment = $1",
			segment,
		).Scan(&next); err != nil {
			return fmt.Errorf("failed to allocate version: %w", err)
		}
		artifact.Version = next

		payload, err := encodePayload(artifact)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			"UPDATE model_artifacts SET active = FALSE WHERE segment = $1 AND active",
			segment,
		); err != nil {
			return fmt.Errorf("failed to deactivate artifacts: %w", err)
		}
		query := `
			INSERT INTO model_artifacts (id, segment, version, trained_from, trained_to, sample_count, hyperparameters, payload, active, activated_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, NOW(), $9)
		`
		if _, err := tx.Exec(ctx, query,
			artifact.ID, segment, next, artifact.TrainedFrom, artifact.TrainedTo,
			artifact.SampleCount, artifact.Hyperparameters, payload, artifact.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to save artifact: %w", err)
		}
		return nil
	})
}

// GetActive returns the active artifact of a segment or models.ErrNotFound
func (r *PostgresArtifactRepository) GetActive(ctx context.Context, segment models.Segment) (*models.ModelArtifact, error) {
	var payload []byte
	err := r.db.Pool().QueryRow(ctx,
		"SELECT payload FROM model_artifacts WHERE segment = $1 AND active",
		string(segment),
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active artifact: %w", err)
	}
	return decodePayload(payload)
}

// List returns the newest artifacts of a segment, newest first
func (r *PostgresArtifactRepository) List(ctx context.Context, segment models.Segment, limit int) ([]ArtifactSummary, error) {
	query := `
		SELECT id, segment, version, trained_from, trained_to, sample_count, active, activated_at, created_at
		FROM model_artifacts
		WHERE segment = $1
		ORDER BY version DESC
		LIMIT $2
	`
	rows, err := r.db.Pool().Query(ctx, query, string(segment), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var out []ArtifactSummary
	for rows.Next() {
		var s ArtifactSummary
		var seg string
		if err := rows.Scan(&s.ID, &seg, &s.Version, &s.TrainedFrom, &s.TrainedTo, &s.SampleCount, &s.Active, &s.ActivatedAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		s.Segment = models.Segment(seg)
		out = append(out, s)
	}
	return out, rows.Err()
}

func encodePayload(artifact *models.ModelArtifact) ([]byte, error) {
	if artifact == nil {
		return nil, errors.New("nil artifact")
	}
	payload, err := json.Marshal(artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	return payload, nil
}

func decodePayload(payload []byte) (*models.ModelArtifact, error) {
	var artifact models.ModelArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	return &artifact, nil
}

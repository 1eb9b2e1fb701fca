package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/prediction"
	"github.com/yourusername/furlong/internal/registry"
	"github.com/yourusername/furlong/internal/scoring"
	"github.com/yourusername/furlong/internal/testutil"
)

// sharedStore stands in for the artifact table both processes read
type sharedStore struct {
	mu     sync.Mutex
	active map[models.Segment]*models.ModelArtifact
}

func (s *sharedStore) Activate(_ context.Context, a *models.ModelArtifact, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	if cur, ok := s.active[a.Segment]; ok {
		current = cur.Version
	}
	if current != expected {
		return models.ErrVersionConflict
	}
	a.Version = current + 1
	stored := *a
	s.active[a.Segment] = &stored
	return nil
}

func (s *sharedStore) GetActive(_ context.Context, segment models.Segment) (*models.ModelArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.active[segment]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *a
	return &out, nil
}

func TestRefreshChampionsAdoptsExternalPromotion(t *testing.T) {
	ctx := context.Background()
	store := &sharedStore{active: map[models.Segment]*models.ModelArtifact{}}
	retrainer := registry.New(store, nil, logger.Discard())
	v1, err := retrainer.Publish(ctx, testutil.Artifact("turf"))
	require.NoError(t, err)

	log := logger.Discard()
	reg := registry.New(store, nil, log)
	require.NoError(t, reg.Load(ctx, []models.Segment{"turf"}))
	a := &App{
		Engine:   config.NewHolder(config.DefaultEngineConfig()),
		Logger:   log,
		Registry: reg,
		Scorer:   scoring.NewScorer(reg, logger.NewScoringLogger(log)),
		Cache:    prediction.NewCache(time.Minute, 10),
	}
	a.Cache.Set(prediction.CacheKey{Segment: "turf", RaceID: "r1", Version: 1}, &models.PredictionRecord{RaceID: "r1"})

	n, err := a.RefreshChampions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "already serving the stored champion")

	v2, err := retrainer.Publish(ctx, testutil.Artifact("turf"))
	require.NoError(t, err)

	n, err = a.RefreshChampions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := reg.Active("turf")
	require.NoError(t, err)
	assert.Equal(t, v2.Artifact.ID, active.Artifact.ID)
	assert.NotEqual(t, v1.Artifact.ID, active.Artifact.ID)
	assert.Zero(t, a.Cache.ItemCount(), "swap hooks drop the segment's cached predictions")
}

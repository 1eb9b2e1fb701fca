// Package registry holds the active (champion) model artifact of every
// segment. Readers dereference a single atomic pointer; Publish and Refresh
// are the only writers. Publish replaces the pointer after the new artifact
// is persisted, Refresh adopts champions promoted by other processes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/furlong/internal/metrics"
	"github.com/yourusername/furlong/internal/models"
)

// ErrConcurrentPublish is returned when the champion changed under a publish
var ErrConcurrentPublish = errors.New("active artifact changed during publish")

// Champion is an immutable snapshot of the active artifact of a segment
type Champion struct {
	Artifact   *models.ModelArtifact
	Version    int64
	PromotedAt time.Time
}

// Store persists artifacts and the active pointer. Activate assigns
// artifact.Version and fails with models.ErrVersionConflict when the stored
// active version is not expected.
type Store interface {
	Activate(ctx context.Context, artifact *models.ModelArtifact, expected int64) error
	GetActive(ctx context.Context, segment models.Segment) (*models.ModelArtifact, error)
}

// Swap is a champion change adopted by Refresh
type Swap struct {
	Previous *Champion
	Current  *Champion
}

// Archive keeps every artifact that was ever active
type Archive interface {
	Put(ctx context.Context, artifact *models.ModelArtifact) error
}

type slot struct {
	mu      sync.Mutex // serializes writers only
	current atomic.Pointer[Champion]
	version atomic.Int64
}

// Registry maps segments to their champion
type Registry struct {
	slots   sync.Map // models.Segment -> *slot
	store   Store
	archive Archive
	logger  *logrus.Entry
	now     func() time.Time
}

// New creates a registry. store and archive may be nil for in-memory use.
func New(store Store, archive Archive, logger *logrus.Logger) *Registry {
	return &Registry{
		store:   store,
		archive: archive,
		logger:  logger.WithField("component", "registry"),
		now:     time.Now,
	}
}

func (r *Registry) slotFor(segment models.Segment) *slot {
	s, _ := r.slots.LoadOrStore(segment, &slot{})
	return s.(*slot)
}

// Active returns the champion of a segment or models.ErrModelUnavailable
func (r *Registry) Active(segment models.Segment) (*Champion, error) {
	s, ok := r.slots.Load(segment)
	if !ok {
		return nil, fmt.Errorf("segment %s: %w", segment, models.ErrModelUnavailable)
	}
	c := s.(*slot).current.Load()
	if c == nil {
		return nil, fmt.Errorf("segment %s: %w", segment, models.ErrModelUnavailable)
	}
	return c, nil
}

// Version returns the current version counter of a segment
func (r *Registry) Version(segment models.Segment) int64 {
	s, ok := r.slots.Load(segment)
	if !ok {
		return 0
	}
	return s.(*slot).version.Load()
}

// Publish makes artifact the champion of its segment, expecting the
// version this registry last saw
func (r *Registry) Publish(ctx context.Context, artifact *models.ModelArtifact) (*Champion, error) {
	if artifact == nil {
		return nil, fmt.Errorf("publish: nil artifact")
	}
	return r.PublishFrom(ctx, artifact, r.Version(artifact.Segment))
}

// PublishFrom makes artifact the champion of its segment provided the active
// version is still expected, both here and in the store. The outgoing
// champion is archived and the new one persisted before the pointer moves;
// if either step fails the previous champion stays active.
func (r *Registry) PublishFrom(ctx context.Context, artifact *models.ModelArtifact, expected int64) (*Champion, error) {
	if artifact == nil {
		return nil, fmt.Errorf("publish: nil artifact")
	}
	s := r.slotFor(artifact.Segment)
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	if v := s.version.Load(); v != expected {
		return nil, fmt.Errorf("segment %s at version %d, expected %d: %w", artifact.Segment, v, expected, ErrConcurrentPublish)
	}

	next := *artifact
	next.Version = expected + 1

	if prev != nil && r.archive != nil {
		if err := r.archive.Put(ctx, prev.Artifact); err != nil {
			return nil, fmt.Errorf("failed to archive artifact %s: %w", prev.Artifact.ID, err)
		}
	}
	if r.store != nil {
		err := r.store.Activate(ctx, &next, expected)
		if errors.Is(err, models.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: %v", ErrConcurrentPublish, err)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to activate artifact: %w", err)
		}
	}
	version := next.Version

	champion := &Champion{Artifact: &next, Version: version, PromotedAt: r.now()}
	if !s.current.CompareAndSwap(prev, champion) {
		return nil, ErrConcurrentPublish
	}
	s.version.Store(version)

	metrics.RecordSwap(string(next.Segment), version)
	fields := logrus.Fields{
		"segment": next.Segment,
		"new_id":  next.ID,
		"version": version,
	}
	if prev != nil {
		fields["previous_id"] = prev.Artifact.ID
	}
	r.logger.WithFields(fields).Info("Champion published")
	return champion, nil
}

// Load restores the champion of each segment from the store
func (r *Registry) Load(ctx context.Context, segments []models.Segment) error {
	_, err := r.refresh(ctx, segments, true)
	return err
}

// Refresh adopts the stored champion of each segment when it differs from
// the one held here, returning the swaps it made
func (r *Registry) Refresh(ctx context.Context, segments []models.Segment) ([]Swap, error) {
	return r.refresh(ctx, segments, false)
}

func (r *Registry) refresh(ctx context.Context, segments []models.Segment, warnMissing bool) ([]Swap, error) {
	if r.store == nil {
		return nil, nil
	}
	var swaps []Swap
	for _, segment := range segments {
		artifact, err := r.store.GetActive(ctx, segment)
		if errors.Is(err, models.ErrNotFound) {
			if warnMissing {
				r.logger.WithField("segment", segment).Warn("No stored champion for segment")
			}
			continue
		}
		if err != nil {
			return swaps, fmt.Errorf("failed to load champion for %s: %w", segment, err)
		}
		if swap, ok := r.adopt(segment, artifact); ok {
			swaps = append(swaps, swap)
		}
	}
	return swaps, nil
}

func (r *Registry) adopt(segment models.Segment, artifact *models.ModelArtifact) (Swap, bool) {
	s := r.slotFor(segment)
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	if prev != nil && prev.Artifact.ID == artifact.ID {
		return Swap{}, false
	}
	champion := &Champion{Artifact: artifact, Version: artifact.Version, PromotedAt: artifact.CreatedAt}
	s.current.Store(champion)
	s.version.Store(artifact.Version)
	metrics.ActiveArtifactVersion.WithLabelValues(string(segment)).Set(float64(artifact.Version))

	if prev != nil {
		r.logger.WithFields(logrus.Fields{
			"segment":     segment,
			"previous_id": prev.Artifact.ID,
			"new_id":      artifact.ID,
			"version":     artifact.Version,
		}).Info("Champion reloaded from store")
	}
	return Swap{Previous: prev, Current: champion}, true
}

// Segments returns the segments that currently have a champion
func (r *Registry) Segments() []models.Segment {
	var out []models.Segment
	r.slots.Range(func(k, v any) bool {
		if v.(*slot).current.Load() != nil {
			out = append(out, k.(models.Segment))
		}
		return true
	})
	return out
}

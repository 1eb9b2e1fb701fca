package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/retrain"
)

type countingRunner struct {
	calls    atomic.Int32
	segments chan models.Segment
	err      error
}

func (r *countingRunner) Run(ctx context.Context, segment models.Segment) (*models.BacktestResult, error) {
	r.calls.Add(1)
	select {
	case r.segments <- segment:
	default:
	}
	if r.err != nil {
		return nil, r.err
	}
	_, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return nil, context.DeadlineExceeded
	}
	return &models.BacktestResult{Segment: segment, Outcome: models.OutcomeKept}, nil
}

func TestScheduleRetrainRunsSegment(t *testing.T) {
	s := NewScheduler(logger.Discard())
	runner := &countingRunner{segments: make(chan models.Segment, 1)}
	require.NoError(t, s.ScheduleRetrain("@every 1s", "turf", runner, time.Second))
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	assert.True(t, s.IsRunning())
	assert.False(t, s.GetNextRun().IsZero())

	select {
	case seg := <-runner.segments:
		assert.Equal(t, models.Segment("turf"), seg)
	case <-time.After(3 * time.Second):
		t.Fatal("retrain job did not run")
	}
}

func TestRunningCycleIsNotAnError(t *testing.T) {
	s := NewScheduler(logger.Discard())
	runner := &countingRunner{segments: make(chan models.Segment, 1), err: retrain.ErrCycleRunning}
	require.NoError(t, s.ScheduleRetrain("@every 1s", "dirt", runner, time.Second))
	require.NoError(t, s.Start())

	select {
	case <-runner.segments:
	case <-time.After(3 * time.Second):
		t.Fatal("retrain job did not run")
	}
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestScheduleValidation(t *testing.T) {
	s := NewScheduler(logger.Discard())
	assert.Error(t, s.Start(), "no jobs")
	assert.Error(t, s.ScheduleRetrain("not a cron", "turf", &countingRunner{}, time.Minute))

	require.NoError(t, s.ScheduleEvery("poll", time.Second, func(context.Context) error { return nil }))
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	assert.Error(t, s.ScheduleEvery("late", time.Minute, func(context.Context) error { return nil }))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

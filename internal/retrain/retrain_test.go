package retrain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/registry"
	"github.com/yourusername/furlong/internal/testutil"
)

var now = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	races []models.LabeledRace
	block chan struct{}
	from  time.Time
	to    time.Time
}

func (f *fakeSource) LabeledRaces(ctx context.Context, _ models.Segment, from, to time.Time) ([]models.LabeledRace, error) {
	f.from, f.to = from, to
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.races, nil
}

type memHistory struct {
	mu      sync.Mutex
	results []models.BacktestResult
}

func (h *memHistory) Append(_ context.Context, r models.BacktestResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
	return nil
}

type failingPublisher struct{}

func (failingPublisher) PublishFrom(context.Context, *models.ModelArtifact, int64) (*registry.Champion, error) {
	return nil, errors.New("store offline")
}

func engine() *config.Holder {
	cfg := config.DefaultEngineConfig()
	cfg.Retrain.SearchTrials = 3
	cfg.Retrain.SearchStartupTrials = 2
	return config.NewHolder(cfg)
}

type harness struct {
	orch     *Orchestrator
	reg      *registry.Registry
	source   *fakeSource
	history  *memHistory
	swaps    []int64
	cancel   context.CancelFunc
	promoter *Promoter
}

func newHarness(t *testing.T, races []models.LabeledRace, publisher Publisher) *harness {
	t.Helper()
	h := &harness{
		reg:     registry.New(nil, nil, logger.Discard()),
		source:  &fakeSource{races: races},
		history: &memHistory{},
	}
	if publisher == nil {
		publisher = h.reg
	}
	h.promoter = NewPromoter(publisher, func(_, current *registry.Champion) {
		h.swaps = append(h.swaps, current.Version)
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.promoter.Run(ctx)
	t.Cleanup(cancel)

	h.orch = NewOrchestrator(engine(), h.source, h.reg, h.promoter, h.history, nil, logger.NewRetrainLogger(logger.Discard()))
	h.orch.now = func() time.Time { return now }
	return h
}

func TestRunBootstrapPromotes(t *testing.T) {
	races := testutil.Races(21, "turf", 200, now.AddDate(-1, 0, 0))
	h := newHarness(t, races, nil)

	result, err := h.orch.Run(context.Background(), "turf")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePromoted, result.Outcome)
	assert.True(t, result.Promote)
	assert.Nil(t, result.Current)
	assert.Contains(t, result.Reason, "bootstrap")
	assert.Greater(t, result.Candidate.WinAUC, 0.5)
	assert.Equal(t, int64(1), result.ActiveVersion)
	assert.Equal(t, []int64{1}, h.swaps)

	champ, err := h.reg.Active("turf")
	require.NoError(t, err)
	assert.Equal(t, result.CandidateID, champ.Artifact.ID)

	assert.Equal(t, now.AddDate(-3, 0, 0), h.source.from)
	assert.Equal(t, now, h.source.to)
	assert.False(t, result.HoldoutStart.IsZero())
	assert.Equal(t, races[len(races)-1].StartTime, result.HoldoutEnd)
	require.Len(t, h.history.results, 1)
	assert.Equal(t, models.OutcomePromoted, h.history.results[0].Outcome)
}

func TestRunIsDeterministicAndKeepsEqualCandidate(t *testing.T) {
	races := testutil.Races(22, "turf", 200, now.AddDate(-1, 0, 0))
	h := newHarness(t, races, nil)

	first, err := h.orch.Run(context.Background(), "turf")
	require.NoError(t, err)
	require.Equal(t, models.OutcomePromoted, first.Outcome)

	second, err := h.orch.Run(context.Background(), "turf")
	require.NoError(t, err)
	require.NotNil(t, second.Current)
	assert.Equal(t, first.Candidate, second.Candidate, "same data and seed give the same metrics")
	assert.Equal(t, second.Candidate, *second.Current)
	assert.Equal(t, models.OutcomeKept, second.Outcome)
	assert.Equal(t, first.CandidateID, second.CurrentID)
	assert.Equal(t, int64(1), h.reg.Version("turf"), "kept cycles never swap")
}

func TestRunAbortsOnInsufficientData(t *testing.T) {
	h := newHarness(t, testutil.Races(23, "dirt", 3, now.AddDate(0, -1, 0)), nil)

	result, err := h.orch.Run(context.Background(), "dirt")
	var ide *models.InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, models.Segment("dirt"), ide.Segment)
	assert.Equal(t, models.OutcomeAborted, result.Outcome)
	assert.False(t, result.Promote)

	_, err = h.reg.Active("dirt")
	assert.ErrorIs(t, err, models.ErrModelUnavailable)
	require.Len(t, h.history.results, 1, "aborted cycles are still reported")
	assert.Equal(t, models.OutcomeAborted, h.history.results[0].Outcome)
}

func TestRunSwapFailureKeepsChampion(t *testing.T) {
	h := newHarness(t, testutil.Races(24, "turf", 200, now.AddDate(-1, 0, 0)), failingPublisher{})

	result, err := h.orch.Run(context.Background(), "turf")
	require.Error(t, err)
	assert.Equal(t, models.OutcomeRejected, result.Outcome)
	assert.Contains(t, result.Reason, "store offline")
	assert.Empty(t, h.swaps)
	_, err = h.reg.Active("turf")
	assert.ErrorIs(t, err, models.ErrModelUnavailable)
}

func TestRunRefusesConcurrentCycle(t *testing.T) {
	h := newHarness(t, testutil.Races(25, "turf", 3, now), nil)
	h.source.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.orch.Run(context.Background(), "turf")
	}()

	require.Eventually(t, func() bool {
		_, busy := h.orch.running.Load(models.Segment("turf"))
		return busy
	}, time.Second, time.Millisecond)

	_, err := h.orch.Run(context.Background(), "turf")
	assert.ErrorIs(t, err, ErrCycleRunning)

	close(h.source.block)
	<-done
}

func TestSubmitAfterStop(t *testing.T) {
	p := NewPromoter(registry.New(nil, nil, logger.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	_, err := p.Submit(context.Background(), Decision{Result: models.BacktestResult{Promote: true}})
	assert.ErrorIs(t, err, ErrPromoterStopped)
}

func TestPromoterRejectsStaleDecision(t *testing.T) {
	reg := registry.New(nil, nil, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stale, err := reg.Publish(ctx, testutil.Artifact("turf"))
	require.NoError(t, err)
	_, err = reg.Publish(ctx, testutil.Artifact("turf"))
	require.NoError(t, err)

	swapped := false
	p := NewPromoter(reg, func(_, _ *registry.Champion) { swapped = true })
	go p.Run(ctx)

	res, err := p.Submit(ctx, Decision{
		Result:    models.BacktestResult{Promote: true},
		Candidate: testutil.Artifact("turf"),
		Previous:  stale,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, registry.ErrConcurrentPublish)
	assert.Same(t, stale, res.Champion)
	assert.False(t, swapped)
	assert.Equal(t, int64(2), reg.Version("turf"))
}

func TestDecide(t *testing.T) {
	cfg := config.DefaultEngineConfig().Retrain
	current := models.MetricSet{WinAUC: 0.70, CalibrationError: 0.05, RealizedReturn: decimal.NewFromFloat(-0.05)}

	tests := []struct {
		name      string
		candidate models.MetricSet
		current   *models.MetricSet
		promote   bool
	}{
		{"bootstrap above floor", models.MetricSet{WinAUC: 0.55}, nil, true},
		{"bootstrap at floor", models.MetricSet{WinAUC: 0.5}, nil, false},
		{"better calibration", models.MetricSet{WinAUC: 0.70, CalibrationError: 0.04, RealizedReturn: decimal.NewFromFloat(-0.05)}, &current, true},
		{"better return", models.MetricSet{WinAUC: 0.70, CalibrationError: 0.05, RealizedReturn: decimal.NewFromFloat(0.02)}, &current, true},
		{"within tolerance", models.MetricSet{WinAUC: 0.696, CalibrationError: 0.04, RealizedReturn: decimal.NewFromFloat(-0.05)}, &current, true},
		{"discrimination regressed", models.MetricSet{WinAUC: 0.69, CalibrationError: 0.01, RealizedReturn: decimal.NewFromFloat(0.5)}, &current, false},
		{"no improvement", models.MetricSet{WinAUC: 0.75, CalibrationError: 0.05, RealizedReturn: decimal.NewFromFloat(-0.05)}, &current, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Decide(tt.candidate, tt.current, cfg)
			assert.Equal(t, tt.promote, v.Promote, v.Reason)
			assert.NotEmpty(t, v.Reason)
			assert.Equal(t, v, Decide(tt.candidate, tt.current, cfg))
		})
	}
}

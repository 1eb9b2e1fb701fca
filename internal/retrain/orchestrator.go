// Package retrain runs the champion/challenger cycle of a segment: collect,
// search, train, evaluate, decide, swap, report.
package retrain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/furlong/internal/backtest"
	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/metrics"
	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/registry"
	"github.com/yourusername/furlong/internal/training"
)

// ErrCycleRunning is returned when a segment already has a cycle in flight
var ErrCycleRunning = errors.New("retrain cycle already running for segment")

// State names a step of the cycle
type State string

// Cycle states
const (
	StateCollect  State = "collect"
	StateSearch   State = "search"
	StateTrain    State = "train"
	StateEvaluate State = "evaluate"
	StateDecide   State = "decide"
	StateSwap     State = "swap"
	StateReport   State = "report"
	StateAborted  State = "aborted"
	StateDone     State = "done"
)

// RaceSource supplies labeled races of a segment started within [from, to]
type RaceSource interface {
	LabeledRaces(ctx context.Context, segment models.Segment, from, to time.Time) ([]models.LabeledRace, error)
}

// ChampionSource returns the active champion of a segment
type ChampionSource interface {
	Active(segment models.Segment) (*registry.Champion, error)
}

// History appends backtest results
type History interface {
	Append(ctx context.Context, result models.BacktestResult) error
}

// Reporter delivers backtest results to operators
type Reporter interface {
	NotifyBacktest(ctx context.Context, result models.BacktestResult) error
}

// Orchestrator runs retrain cycles. Cycles of different segments may run
// concurrently; a second cycle of the same segment is refused.
type Orchestrator struct {
	engine    *config.Holder
	races     RaceSource
	champions ChampionSource
	promoter  *Promoter
	history   History
	reporter  Reporter
	log       *logger.RetrainLogger
	now       func() time.Time
	running   sync.Map
}

// NewOrchestrator creates an orchestrator. history and reporter may be nil.
func NewOrchestrator(engine *config.Holder, races RaceSource, champions ChampionSource, promoter *Promoter, history History, reporter Reporter, log *logger.RetrainLogger) *Orchestrator {
	return &Orchestrator{
		engine:    engine,
		races:     races,
		champions: champions,
		promoter:  promoter,
		history:   history,
		reporter:  reporter,
		log:       log,
		now:       time.Now,
	}
}

type cycle struct {
	runID   string
	segment models.Segment
	state   State
	cfg     config.EngineConfig
	result  models.BacktestResult
	started time.Time
}

func (o *Orchestrator) enter(c *cycle, next State) {
	o.log.LogTransition(c.runID, string(c.segment), string(c.state), string(next))
	c.state = next
}

// abort ends the cycle without touching the champion
func (o *Orchestrator) abort(c *cycle, outcome models.CycleOutcome, err error) error {
	o.log.LogAbort(c.runID, string(c.segment), string(c.state), err)
	c.result.Outcome = outcome
	c.result.Promote = false
	c.result.Reason = err.Error()
	o.enter(c, StateAborted)
	return err
}

// Run executes one cycle for segment. It always returns a BacktestResult
// carrying the outcome, and reports it even when the cycle was aborted. The
// error is non-nil for aborted and rejected cycles.
func (o *Orchestrator) Run(ctx context.Context, segment models.Segment) (*models.BacktestResult, error) {
	if _, busy := o.running.LoadOrStore(segment, struct{}{}); busy {
		return nil, fmt.Errorf("%s: %w", segment, ErrCycleRunning)
	}
	defer o.running.Delete(segment)

	c := &cycle{
		runID:   uuid.NewString(),
		segment: segment,
		state:   StateCollect,
		cfg:     o.engine.Load(),
		started: o.now(),
	}
	c.result = models.BacktestResult{ID: uuid.New(), Segment: segment}

	var previous *registry.Champion
	if champ, err := o.champions.Active(segment); err == nil {
		previous = champ
		c.result.CurrentID = champ.Artifact.ID
		c.result.ActiveVersion = champ.Version
	}

	runErr := o.execute(ctx, c, previous)

	o.enter(c, StateReport)
	o.report(ctx, c)
	if runErr == nil {
		o.enter(c, StateDone)
	}
	return &c.result, runErr
}

func (o *Orchestrator) execute(ctx context.Context, c *cycle, previous *registry.Champion) error {
	rc := c.cfg.Retrain

	from, to := c.cfg.Window(o.now())
	races, err := o.races.LabeledRaces(ctx, c.segment, from, to)
	if err != nil {
		return o.abort(c, models.OutcomeAborted, fmt.Errorf("collect: %w", err))
	}
	if n := models.SampleCount(races); n < rc.MinSamples {
		return o.abort(c, models.OutcomeAborted, &models.InsufficientDataError{Segment: c.segment, Have: n, Need: rc.MinSamples})
	}
	split, err := backtest.SplitByTime(races, backtest.SplitConfig{
		TrainFraction:      rc.TrainFraction,
		ValidationFraction: rc.ValidationFraction,
		HoldoutFraction:    rc.HoldoutFraction,
	})
	if err != nil {
		return o.abort(c, models.OutcomeAborted, err)
	}
	c.result.HoldoutStart, c.result.HoldoutEnd = backtest.Window(split.Holdout)

	o.enter(c, StateSearch)
	trainer := training.NewTrainer(c.cfg)
	evaluator := backtest.NewEvaluator(c.cfg)
	objective := func(ctx context.Context, p training.Params) (float64, error) {
		a, err := trainer.Train(ctx, c.segment, split.Train, p)
		if err != nil {
			return 0, err
		}
		ev, err := evaluator.Evaluate(ctx, a, split.Validation)
		if err != nil {
			return 0, err
		}
		return ev.Metrics.CompositeScore, nil
	}
	search, err := training.Search(ctx, training.DefaultSpace(), objective, training.SearchConfig{
		Trials:        rc.SearchTrials,
		StartupTrials: rc.SearchStartupTrials,
		Seed:          rc.SearchSeed,
	})
	if err != nil {
		return o.abort(c, models.OutcomeAborted, fmt.Errorf("search: %w", err))
	}
	for _, t := range search.Trials {
		if t.Err != nil {
			o.log.WithFields(logrus.Fields{"run_id": c.runID, "segment": c.segment, "trial": t.Index}).WithError(t.Err).Debug("Search trial failed")
			continue
		}
		o.log.LogSearchTrial(c.runID, string(c.segment), t.Index, t.Params, t.Score)
	}

	o.enter(c, StateTrain)
	fit := make([]models.LabeledRace, 0, len(split.Train)+len(split.Validation))
	fit = append(append(fit, split.Train...), split.Validation...)
	candidate, err := trainer.Train(ctx, c.segment, fit, search.Best)
	if err != nil {
		return o.abort(c, models.OutcomeAborted, fmt.Errorf("train: %w", err))
	}
	c.result.CandidateID = candidate.ID

	o.enter(c, StateEvaluate)
	candEval, err := evaluator.Evaluate(ctx, candidate, split.Holdout)
	if err != nil {
		return o.abort(c, models.OutcomeRejected, err)
	}
	c.result.Candidate = candEval.Metrics
	if previous != nil {
		curEval, err := evaluator.Evaluate(ctx, previous.Artifact, split.Holdout)
		if err != nil {
			return o.abort(c, models.OutcomeRejected, err)
		}
		current := curEval.Metrics
		c.result.Current = &current
	}

	o.enter(c, StateDecide)
	verdict := Decide(c.result.Candidate, c.result.Current, rc)
	c.result.Promote = verdict.Promote
	c.result.Reason = verdict.Reason
	var currentMap map[string]float64
	if c.result.Current != nil {
		currentMap = backtest.MetricMap(*c.result.Current)
	}
	o.log.LogDecision(c.runID, string(c.segment), verdict.Promote, verdict.Reason, backtest.MetricMap(c.result.Candidate), currentMap)

	if !verdict.Promote {
		c.result.Outcome = models.OutcomeKept
		return nil
	}

	o.enter(c, StateSwap)
	swap, err := o.promoter.Submit(ctx, Decision{Result: c.result, Candidate: candidate, Previous: previous})
	if err == nil {
		err = swap.Err
	}
	if err != nil {
		return o.abort(c, models.OutcomeRejected, err)
	}
	prevID := ""
	if previous != nil {
		prevID = previous.Artifact.ID.String()
	}
	o.log.LogSwap(string(c.segment), prevID, swap.Champion.Artifact.ID.String(), swap.Champion.Version, swap.Champion.PromotedAt)
	c.result.Outcome = models.OutcomePromoted
	c.result.ActiveVersion = swap.Champion.Version
	return nil
}

// report records metrics and delivers the result. Delivery failures are
// logged and never change the outcome.
func (o *Orchestrator) report(ctx context.Context, c *cycle) {
	c.result.CreatedAt = o.now().UTC()
	seg := string(c.segment)
	metrics.RecordRetrainCycle(seg, string(c.result.Outcome), o.now().Sub(c.started).Seconds())
	if c.result.Candidate.Races > 0 {
		metrics.RecordBacktestMetrics(seg, "candidate", backtest.MetricMap(c.result.Candidate))
	}
	if c.result.Current != nil {
		metrics.RecordBacktestMetrics(seg, "current", backtest.MetricMap(*c.result.Current))
	}

	// delivery ignores cancellation of the cycle
	deliver := context.WithoutCancel(ctx)
	fields := logrus.Fields{"run_id": c.runID, "segment": seg}
	if o.history != nil {
		if err := o.history.Append(deliver, c.result); err != nil {
			o.log.WithFields(fields).WithError(err).Error("Failed to append backtest result")
		}
	}
	if o.reporter != nil {
		if err := o.reporter.NotifyBacktest(deliver, c.result); err != nil {
			o.log.WithFields(fields).WithError(err).Error("Failed to notify backtest result")
		}
	}
}

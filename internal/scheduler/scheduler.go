// Package scheduler runs retrain cycles and polling jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/retrain"
)

// RetrainRunner runs one retrain cycle for a segment
type RetrainRunner interface {
	Run(ctx context.Context, segment models.Segment) (*models.BacktestResult, error)
}

// Scheduler manages scheduled jobs. A job still running when its next
// tick fires is skipped.
type Scheduler struct {
	cron            *cron.Cron
	logger          *logrus.Entry
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          []cron.EntryID
	ctx             context.Context
	cancel          context.CancelFunc
	gracefulTimeout time.Duration
}

// NewScheduler creates a new scheduler
func NewScheduler(logger *logrus.Logger) *Scheduler {
	entry := logger.WithField("component", "scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.PrintfLogger(entry)), cron.SkipIfStillRunning(cron.PrintfLogger(entry))),
		),
		logger:          entry,
		jobIDs:          make([]cron.EntryID, 0),
		ctx:             ctx,
		cancel:          cancel,
		gracefulTimeout: 30 * time.Second,
	}
}

// ScheduleRetrain schedules retrain cycles of segment. Each cycle gets at
// most timeout to finish.
func (s *Scheduler) ScheduleRetrain(cronExpression string, segment models.Segment, runner RetrainRunner, timeout time.Duration) error {
	log := s.logger.WithFields(logrus.Fields{"job": "retrain", "segment": segment})
	job := func(ctx context.Context) error {
		result, err := runner.Run(ctx, segment)
		if errors.Is(err, retrain.ErrCycleRunning) {
			log.Info("Retrain cycle already running, skipping tick")
			return nil
		}
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"outcome":        result.Outcome,
			"active_version": result.ActiveVersion,
		}).Info("Scheduled retrain finished")
		return nil
	}
	return s.add(cronExpression, "retrain:"+string(segment), timeout, job)
}

// ScheduleEvery runs job at a fixed interval. The job's context expires
// shortly before the next tick.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, job func(ctx context.Context) error) error {
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	return s.add(fmt.Sprintf("@every %s", interval), name, interval-time.Second, job)
}

func (s *Scheduler) add(spec, name string, timeout time.Duration, job func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	log := s.logger.WithField("job", name)
	entryID, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()
		start := time.Now()
		if err := job(ctx); err != nil {
			log.WithError(err).WithField("duration", time.Since(start).String()).Error("Scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add job %s: %w", name, err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	log.WithField("schedule", spec).Info("Scheduled job")
	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")
	return nil
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(s.gracefulTimeout):
		s.logger.Warn("Scheduler stop timed out waiting for jobs")
	}
	s.isRunning = false
	s.logger.Info("Scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled job run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}
	nextRun := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() && (nextRun.IsZero() || entry.Next.Before(nextRun)) {
			nextRun = entry.Next
		}
	}
	return nextRun
}

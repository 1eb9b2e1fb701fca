// Package main runs the prediction service: it predicts upcoming races,
// settles finished ones and retrains every segment on schedule.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/furlong/internal/app"
	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/scheduler"
)

var (
	configFile string
	cfg        *config.Config
	appLog     *logrus.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
}

var rootCmd = &cobra.Command{
	Use:     "predictor",
	Short:   "Run the race prediction service",
	Long:    `Predicts upcoming races with each segment's champion model, classifies settled races and retrains segments on the configured schedule.`,
	Version: fmt.Sprintf("%s (%s)", app.Version, app.GitCommit),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = app.LoadConfig(cmd.Context(), configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		appLog = logger.NewLogger(cfg.App.LogLevel)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context) error {
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"version":     app.Version,
		"segments":    cfg.Engine.Segments,
	}).Info("Furlong predictor starting")

	a, err := app.New(ctx, cfg, configFile, appLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.WithError(err).Error("Failed to release resources")
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.Start(runCtx)
	if err := a.StartHealth(runCtx); err != nil {
		return err
	}

	sched, err := buildScheduler(a)
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}
	appLog.WithField("next_run", sched.GetNextRun()).Info("Predictor running")

	<-ctx.Done()
	appLog.Info("Shutdown signal received")
	a.Health.SetReady(false)
	if err := sched.Stop(); err != nil {
		appLog.WithError(err).Error("Error during scheduler shutdown")
	}
	cancel()

	days, coverage := a.Live.Summary()
	for _, day := range days {
		appLog.WithFields(logrus.Fields{
			"date":   day.Date.Format("2006-01-02"),
			"races":  day.Races,
			"counts": day.Counts,
			"mrr":    day.MRR,
		}).Info("Race day summary")
	}
	for _, c := range coverage {
		if c.Weak {
			appLog.WithFields(logrus.Fields{"segment": c.Segment, "rate": c.Rate, "races": c.Races}).Warn("Weak segment")
		}
	}
	appLog.WithField("pending", a.Live.Pending()).Info("Furlong predictor shut down")
	return nil
}

func buildScheduler(a *app.App) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler(appLog)
	predictEvery, settleEvery, lookahead := cfg.PollIntervals()

	err := sched.ScheduleEvery("predict", predictEvery, func(ctx context.Context) error {
		n, err := a.Live.PredictUpcoming(ctx, lookahead)
		if n > 0 {
			appLog.WithField("races", n).Info("Predictions announced")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	err = sched.ScheduleEvery("settle", settleEvery, func(ctx context.Context) error {
		_, err := a.Live.Settle(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	err = sched.ScheduleEvery("reload", cfg.ReloadInterval(), func(ctx context.Context) error {
		n, err := a.RefreshChampions(ctx)
		if n > 0 {
			appLog.WithField("segments", n).Info("Champions reloaded")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, segment := range a.Engine.Load().SegmentList() {
		if err := sched.ScheduleRetrain(cfg.Scheduler.RetrainCron, segment, a.Retrain, cfg.JobTimeout()); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// Package main provides the entry point for the backtesting CLI tool. It
// replays the latest holdout races of each segment through the champion
// model and writes a YAML report.
package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/furlong/internal/app"
	"github.com/yourusername/furlong/internal/backtest"
	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/models"
)

var (
	configFile string
	segments   []string
	outputDir  string
	iterations int
	seed       uint64
	csvExport  bool
	cfg        *config.Config
	appLog     *logrus.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.Flags().StringSliceVarP(&segments, "segment", "s", nil, "Segments to backtest (default: all configured)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "./output", "Directory for reports")
	rootCmd.Flags().IntVar(&iterations, "iterations", 1000, "Monte Carlo iterations")
	rootCmd.Flags().Uint64Var(&seed, "seed", 42, "Monte Carlo seed")
	rootCmd.Flags().BoolVar(&csvExport, "csv", false, "Also write the metrics as CSV")
}

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest champion models on recent holdout races",
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
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context) error {
	a, err := app.New(ctx, cfg, "", appLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.WithError(err).Error("Failed to release resources")
		}
	}()

	engine := a.Engine.Load()
	targets := engine.SegmentList()
	if len(segments) > 0 {
		targets = targets[:0]
		for _, s := range segments {
			targets = append(targets, models.Segment(s))
		}
	}
	for _, segment := range targets {
		if err := backtestSegment(ctx, a, engine, segment); err != nil {
			return fmt.Errorf("%s: %w", segment, err)
		}
	}
	return nil
}

func backtestSegment(ctx context.Context, a *app.App, engine config.EngineConfig, segment models.Segment) error {
	champion, err := a.Registry.Active(segment)
	if err != nil {
		return err
	}
	from, to := engine.Window(time.Now().UTC())
	races, err := a.Feed.LabeledRaces(ctx, segment, from, to)
	if err != nil {
		return err
	}
	split, err := backtest.SplitByTime(races, backtest.SplitConfig{
		TrainFraction:      engine.Retrain.TrainFraction,
		ValidationFraction: engine.Retrain.ValidationFraction,
		HoldoutFraction:    engine.Retrain.HoldoutFraction,
	})
	if err != nil {
		return err
	}

	eval, err := backtest.NewEvaluator(engine).Evaluate(ctx, champion.Artifact, split.Holdout)
	if err != nil {
		return err
	}
	start, end := backtest.Window(split.Holdout)
	result := models.BacktestResult{
		ID:            uuid.New(),
		Segment:       segment,
		CandidateID:   champion.Artifact.ID,
		HoldoutStart:  start,
		HoldoutEnd:    end,
		Candidate:     eval.Metrics,
		Outcome:       models.OutcomeKept,
		Reason:        "champion evaluation",
		ActiveVersion: champion.Version,
		CreatedAt:     time.Now().UTC(),
	}
	mc := backtest.RunMonteCarlo(eval.Replays, backtest.MonteCarloConfig{Iterations: iterations, Seed: seed})
	report := backtest.NewReport(result, eval.Replays, &mc)

	stamp := result.CreatedAt.Format("20060102T150405")
	path := filepath.Join(outputDir, fmt.Sprintf("backtest_%s_%s.yaml", segment, stamp))
	if err := backtest.WriteYAMLReport(report, path); err != nil {
		return err
	}
	if csvExport {
		csvPath := filepath.Join(outputDir, fmt.Sprintf("backtest_%s_%s.csv", segment, stamp))
		if err := backtest.GenerateCSVExport(report, csvPath); err != nil {
			return err
		}
	}
	fmt.Println(backtest.GenerateConsoleReport(report))

	appLog.WithFields(logrus.Fields{
		"segment":         segment,
		"version":         champion.Version,
		"races":           eval.Metrics.Races,
		"win_auc":         eval.Metrics.WinAUC,
		"composite_score": eval.Metrics.CompositeScore,
		"report":          path,
	}).Info("Backtest completed")
	return nil
}

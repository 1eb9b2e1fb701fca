// Package main runs one retrain cycle per segment and exits.
package main

import (
	"context"
	"errors"
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
	"github.com/yourusername/furlong/internal/models"
)

var (
	configFile string
	segments   []string
	cfg        *config.Config
	appLog     *logrus.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.Flags().StringSliceVarP(&segments, "segment", "s", nil, "Segments to retrain (default: all configured)")
}

var rootCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Retrain champion models",
	Long: `Runs a champion/challenger cycle for each segment: collect labeled races,
search hyperparameters, train, backtest on the holdout and promote the
candidate when it beats the current champion.`,
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
	a, err := app.New(ctx, cfg, "", appLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.WithError(err).Error("Failed to release resources")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, cfg.JobTimeout())
	defer cancel()
	go a.Promoter.Run(ctx)

	targets := a.Engine.Load().SegmentList()
	if len(segments) > 0 {
		targets = targets[:0]
		for _, s := range segments {
			targets = append(targets, models.Segment(s))
		}
	}

	var errs []error
	for _, segment := range targets {
		result, err := a.Retrain.Run(ctx, segment)
		fields := logrus.Fields{"segment": segment}
		if result != nil {
			fields["outcome"] = result.Outcome
			fields["active_version"] = result.ActiveVersion
			fields["composite_score"] = result.Candidate.CompositeScore
		}
		if err != nil {
			appLog.WithError(err).WithFields(fields).Error("Retrain cycle failed")
			errs = append(errs, fmt.Errorf("%s: %w", segment, err))
			continue
		}
		appLog.WithFields(fields).Info("Retrain cycle finished")
	}
	return errors.Join(errs...)
}

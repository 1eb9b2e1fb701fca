// Package main prints stored model artifacts and recent retrain cycles.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/furlong/internal/app"
	"github.com/yourusername/furlong/internal/backtest"
	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/database"
	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/registry"
	"github.com/yourusername/furlong/internal/repository"
)

// historyScan bounds the artifact rows searched for a fetched version
const historyScan = 1000

var (
	configFile string
	limit      int
	segment    string
	fetch      int64
	cfg        *config.Config
	appLog     *logrus.Logger
	db         *database.DB
	artifacts  repository.ArtifactRepository
	history    repository.BacktestHistory
	archive    *registry.S3Archive
	closeAll   []func() error
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.Flags().IntVarP(&limit, "limit", "n", 5, "Rows per segment")
	rootCmd.Flags().StringVarP(&segment, "segment", "s", "", "Segment of the artifact to fetch")
	rootCmd.Flags().Int64Var(&fetch, "fetch", 0, "Download an archived artifact version from S3 and print it")
}

var rootCmd = &cobra.Command{
	Use:   "model-status",
	Short: "Show model artifacts and retrain history",
	Long: `Displays the stored artifacts of every segment, which one is active, and the most recent retrain cycles with their metrics.
With --fetch and --segment it downloads a superseded artifact from the S3 archive instead.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = app.LoadConfig(cmd.Context(), configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := setupDependencies(cmd.Context()); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		defer func() {
			for i := len(closeAll) - 1; i >= 0; i-- {
				_ = closeAll[i]()
			}
		}()
		if fetch > 0 {
			return fetchArchived(cmd.Context(), models.Segment(segment), fetch)
		}
		return displayStatus(cmd.Context())
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func setupDependencies(ctx context.Context) error {
	appLog = logger.NewLogger(cfg.App.LogLevel)
	appLog.SetLevel(logrus.WarnLevel)

	var err error
	db, err = database.NewDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	closeAll = append(closeAll, func() error { db.Close(); return nil })
	artifacts = repository.NewPostgresArtifactRepository(db)

	if cfg.Archive.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Archive.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		archive = registry.NewS3Archive(s3.NewFromConfig(awsCfg), cfg.Archive.Bucket, cfg.Archive.Prefix)
	}

	if !cfg.ClickHouse.Enabled {
		return nil
	}
	ch, err := repository.OpenClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		return err
	}
	closeAll = append(closeAll, ch.Close)
	history = repository.NewClickHouseBacktestHistory(ch, cfg.ClickHouse.Table)
	return nil
}

type cycleRow struct {
	ID            string             `yaml:"id"`
	CreatedAt     time.Time          `yaml:"created_at"`
	Outcome       string             `yaml:"outcome"`
	Reason        string             `yaml:"reason,omitempty"`
	ActiveVersion int64              `yaml:"active_version"`
	Candidate     map[string]float64 `yaml:"candidate"`
	Current       map[string]float64 `yaml:"current,omitempty"`
}

type segmentStatus struct {
	Segment   models.Segment               `yaml:"segment"`
	Artifacts []repository.ArtifactSummary `yaml:"artifacts"`
	Cycles    []cycleRow                   `yaml:"cycles,omitempty"`
}

func displayStatus(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var out []segmentStatus
	for _, segment := range cfg.Engine.SegmentList() {
		rows, err := artifacts.List(ctx, segment, limit)
		if err != nil {
			return err
		}
		status := segmentStatus{Segment: segment, Artifacts: rows}
		if history != nil {
			results, err := history.Recent(ctx, segment, limit)
			if err != nil {
				return err
			}
			for _, r := range results {
				status.Cycles = append(status.Cycles, toCycleRow(r))
			}
		}
		out = append(out, status)
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(out)
}

type memberRow struct {
	Name   string            `yaml:"name"`
	Kind   models.ModelKind  `yaml:"kind"`
	Target models.MarketType `yaml:"target"`
}

type archivedArtifact struct {
	ID              string             `yaml:"id"`
	Segment         models.Segment     `yaml:"segment"`
	Version         int64              `yaml:"version"`
	TrainedFrom     time.Time          `yaml:"trained_from"`
	TrainedTo       time.Time          `yaml:"trained_to"`
	SampleCount     int                `yaml:"sample_count"`
	Features        []string           `yaml:"features"`
	Members         []memberRow        `yaml:"members"`
	Hyperparameters map[string]float64 `yaml:"hyperparameters,omitempty"`
	CreatedAt       time.Time          `yaml:"created_at"`
}

func fetchArchived(ctx context.Context, seg models.Segment, version int64) error {
	if seg == "" {
		return errors.New("--fetch needs --segment")
	}
	if archive == nil {
		return errors.New("artifact archive is disabled")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := artifacts.List(ctx, seg, historyScan)
	if err != nil {
		return err
	}
	var found *repository.ArtifactSummary
	for i := range rows {
		if rows[i].Version == version {
			found = &rows[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("segment %s version %d: %w", seg, version, models.ErrNotFound)
	}
	if found.Active {
		appLog.WithField("version", version).Warn("Version is the active champion and may not be archived yet")
	}

	a, err := archive.Get(ctx, seg, version, found.ID.String())
	if err != nil {
		return err
	}
	out := archivedArtifact{
		ID:              a.ID.String(),
		Segment:         a.Segment,
		Version:         a.Version,
		TrainedFrom:     a.TrainedFrom,
		TrainedTo:       a.TrainedTo,
		SampleCount:     a.SampleCount,
		Features:        a.Schema.Numeric,
		Hyperparameters: a.Hyperparameters,
		CreatedAt:       a.CreatedAt,
	}
	for _, m := range a.Members {
		out.Members = append(out.Members, memberRow{Name: m.Name, Kind: m.Kind, Target: m.Target})
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(out)
}

func toCycleRow(r models.BacktestResult) cycleRow {
	row := cycleRow{
		ID:            r.ID.String(),
		CreatedAt:     r.CreatedAt,
		Outcome:       string(r.Outcome),
		Reason:        r.Reason,
		ActiveVersion: r.ActiveVersion,
		Candidate:     backtest.MetricMap(r.Candidate),
	}
	if r.Current != nil {
		row.Current = backtest.MetricMap(*r.Current)
	}
	return row
}

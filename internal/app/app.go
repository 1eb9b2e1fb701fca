// Package app wires configuration, storage, the prediction pipeline and the
// retrain loop into one runtime shared by the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/database"
	"github.com/yourusername/furlong/internal/datasource"
	"github.com/yourusername/furlong/internal/health"
	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/marketdata"
	"github.com/yourusername/furlong/internal/metrics"
	"github.com/yourusername/furlong/internal/notify"
	"github.com/yourusername/furlong/internal/prediction"
	"github.com/yourusername/furlong/internal/registry"
	"github.com/yourusername/furlong/internal/repository"
	"github.com/yourusername/furlong/internal/retrain"
	"github.com/yourusername/furlong/internal/scoring"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

const historyInMemory = 500

// LoadConfig loads .env files, the YAML config and the secrets overlay, then
// validates the result
func LoadConfig(ctx context.Context, path string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.ApplySecrets(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply secrets: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// App holds every long-lived component
type App struct {
	Config    *config.Config
	Engine    *config.Holder
	Logger    *logrus.Logger
	DB        *database.DB
	Artifacts repository.ArtifactRepository
	History   repository.BacktestHistory
	Registry  *registry.Registry
	Scorer    *scoring.Scorer
	Cache     *prediction.Cache
	Pipeline  *prediction.Pipeline
	Feed      *datasource.HTTPFeed
	Prices    marketdata.Chain
	Stream    *marketdata.StreamSource
	Notifier  *notify.Multi
	Promoter  *retrain.Promoter
	Retrain   *retrain.Orchestrator
	Health    *health.Server
	Live      *Live

	configPath string
	closers    []func() error
}

// New builds the application. Champions of every configured segment are
// restored from the artifact store before New returns.
func New(ctx context.Context, cfg *config.Config, configPath string, log *logrus.Logger) (*App, error) {
	a := &App{
		Config:     cfg,
		Engine:     config.NewHolder(cfg.Engine),
		Logger:     log,
		configPath: configPath,
	}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	metrics.InitRegistry()
	cfg := a.Config
	engine := a.Engine.Load()

	db, err := database.Initialize(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() error { db.Close(); return nil })
	artifacts := repository.NewPostgresArtifactRepository(db)
	a.Artifacts = artifacts

	if err := a.buildHistory(ctx); err != nil {
		return err
	}

	var archive registry.Archive
	if cfg.Archive.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Archive.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		archive = registry.NewS3Archive(s3.NewFromConfig(awsCfg), cfg.Archive.Bucket, cfg.Archive.Prefix)
	}
	a.Registry = registry.New(artifacts, archive, a.Logger)
	if err := a.Registry.Load(ctx, engine.SegmentList()); err != nil {
		return err
	}

	a.Scorer = scoring.NewScorer(a.Registry, logger.NewScoringLogger(a.Logger))
	a.Cache = prediction.NewCache(engine.CacheTTL(), 10000)
	a.Pipeline = prediction.NewPipeline(a.Scorer, a.Engine, a.Cache, logger.NewScoringLogger(a.Logger))

	a.Feed = datasource.NewHTTPFeed(cfg.FeatureFeed, a.Logger)
	a.closers = append(a.closers, a.Feed.Close)

	if err := a.buildPrices(ctx); err != nil {
		return err
	}

	notifier, err := notify.New(cfg.Notifier, a.Logger)
	if err != nil {
		return err
	}
	a.Notifier = notifier
	a.closers = append(a.closers, notifier.Close)

	a.Health = health.NewServer(health.Config{
		ServiceName:    cfg.App.Name,
		Version:        Version,
		Port:           cfg.Health.Port,
		GRPCPort:       cfg.Health.GRPCPort,
		Segments:       engine.SegmentList(),
		Champions:      a.Registry,
		DB:             db,
		MetricsPath:    cfg.Metrics.Path,
		MetricsHandler: a.metricsOnHealth(),
		Logger:         a.Logger,
	})

	a.Promoter = retrain.NewPromoter(a.Registry, a.onSwap)
	a.Retrain = retrain.NewOrchestrator(a.Engine, a.Feed, a.Registry, a.Promoter, a.History, a.Notifier, logger.NewRetrainLogger(a.Logger))
	a.Live = NewLive(a.Feed, a.Prices, a.Pipeline, a.Notifier, a.Engine, a.Logger)
	return nil
}

func (a *App) buildHistory(ctx context.Context) error {
	if !a.Config.ClickHouse.Enabled {
		a.History = repository.NewMemoryBacktestHistory(historyInMemory)
		return nil
	}
	ch, err := repository.OpenClickHouse(ctx, a.Config.ClickHouse)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, ch.Close)
	history := repository.NewClickHouseBacktestHistory(ch, a.Config.ClickHouse.Table)
	if err := history.InitSchema(ctx); err != nil {
		return err
	}
	a.History = history
	return nil
}

func (a *App) buildPrices(ctx context.Context) error {
	if a.Config.PriceStream.Enabled {
		ttl := time.Duration(a.Config.PriceStream.TTLSeconds) * time.Second
		if ttl == 0 {
			ttl = 10 * time.Minute
		}
		a.Stream = marketdata.NewStreamSource(a.Config.PriceStream.URL, ttl, a.Logger)
		a.Prices = append(a.Prices, a.Stream)
	}
	if a.Config.Redis.Enabled {
		src, client, err := marketdata.NewRedisSource(ctx, a.Config.Redis)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		a.Prices = append(a.Prices, src)
	}
	return nil
}

// onSwap drops state tied to the outgoing champion
func (a *App) onSwap(previous, current *registry.Champion) {
	segment := current.Artifact.Segment
	dropped := a.Cache.Invalidate(segment)
	if previous != nil {
		a.Scorer.Forget(previous.Artifact.ID)
	}
	if a.Health != nil {
		a.Health.RefreshChampions()
	}
	a.Logger.WithFields(logrus.Fields{
		"segment":       segment,
		"version":       current.Version,
		"cache_dropped": dropped,
	}).Debug("Swap hooks applied")
}

// RefreshChampions adopts champions promoted by other processes, such as
// the retrain command, and applies the swap hooks for each change
func (a *App) RefreshChampions(ctx context.Context) (int, error) {
	swaps, err := a.Registry.Refresh(ctx, a.Engine.Load().SegmentList())
	for _, swap := range swaps {
		a.onSwap(swap.Previous, swap.Current)
	}
	return len(swaps), err
}

// Start launches the background goroutines: the promoter, the price stream
// and the config watcher. They stop when ctx is done.
func (a *App) Start(ctx context.Context) {
	go a.Promoter.Run(ctx)
	if a.Stream != nil {
		go func() {
			if err := a.Stream.Run(ctx); err != nil {
				a.Logger.WithError(err).Error("Price stream stopped")
			}
		}()
	}
	if a.configPath != "" {
		if err := config.WatchEngine(a.configPath, a.Engine, a.Logger); err != nil {
			a.Logger.WithError(err).Warn("Config hot reload disabled")
		}
	}
}

// metricsOnHealth returns the metrics handler when metrics share the
// health port
func (a *App) metricsOnHealth() http.Handler {
	m := a.Config.Metrics
	if !m.Enabled || m.Port != a.Config.Health.Port {
		return nil
	}
	return metrics.Handler()
}

// StartHealth starts the health endpoints, and the metrics endpoint when it
// has its own port, then marks the service ready
func (a *App) StartHealth(ctx context.Context) error {
	if err := a.Health.Start(ctx); err != nil {
		return err
	}
	m := a.Config.Metrics
	if m.Enabled && m.Port != a.Config.Health.Port {
		mux := http.NewServeMux()
		mux.Handle(m.Path, metrics.Handler())
		srv := &http.Server{Addr: fmt.Sprintf(":%d", m.Port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.WithError(err).Error("Metrics server error")
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	a.Health.SetReady(true)
	return nil
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Package app initializes and holds long-lived crawler services, acting as a
// dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/festival-crawler/internal/analyzer"
	"github.com/JakeFAU/festival-crawler/internal/api"
	"github.com/JakeFAU/festival-crawler/internal/checkpoint"
	"github.com/JakeFAU/festival-crawler/internal/clock"
	"github.com/JakeFAU/festival-crawler/internal/config"
	"github.com/JakeFAU/festival-crawler/internal/crawler"
	"github.com/JakeFAU/festival-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/festival-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/festival-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/festival-crawler/internal/fetcher/strategy"
	"github.com/JakeFAU/festival-crawler/internal/hash"
	"github.com/JakeFAU/festival-crawler/internal/id"
	"github.com/JakeFAU/festival-crawler/internal/metrics"
	gcppublisher "github.com/JakeFAU/festival-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/festival-crawler/internal/scheduler"
	"github.com/JakeFAU/festival-crawler/internal/seeds"
	"github.com/JakeFAU/festival-crawler/internal/sink"
	gcsstorage "github.com/JakeFAU/festival-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/festival-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/festival-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/festival-crawler/internal/storage/postgres"
	"github.com/JakeFAU/festival-crawler/internal/telemetry"
)

// App holds the shared services for one CLI invocation.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     crawler.Clock
	store     crawler.CheckpointStore
	records   *checkpoint.RecordLog
	sink      *sink.Fanout
	fetcher   *strategy.Strategy
	analyzer  *analyzer.Analyzer
	extractor *extract.Dispatcher
	archive   crawler.PageArchive
	scheduler *scheduler.Scheduler
	runner    *scheduler.Runner

	headless       *headlessfetcher.Fetcher
	redisStore     *checkpoint.RedisStore
	recordStore    *pgstore.RecordStore
	publisher      *gcppublisher.Publisher
	gcsArchive     *gcsstorage.BlobStore
	tracerProvider *sdktrace.TracerProvider
}

// Build creates the application's dependencies from cfg. On error every
// service opened so far is closed.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  clock.NewSystem(),
	}
	if err := a.build(ctx); err != nil {
		a.closeInfrastructure(context.WithoutCancel(ctx))
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("checkpoint", cfg.Checkpoint.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.Bool("headless_fallback", cfg.HeadlessFallback()),
		zap.Bool("postgres_mirror", a.recordStore != nil),
		zap.Bool("pubsub_mirror", a.publisher != nil),
	)
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerProvider = tp

	if err := a.setupCheckpoint(); err != nil {
		return err
	}
	if err := a.setupSink(ctx); err != nil {
		return err
	}
	if err := a.setupFetcher(); err != nil {
		return err
	}
	if err := a.setupArchive(ctx); err != nil {
		return err
	}

	a.analyzer = analyzer.New()
	a.extractor = extract.NewDispatcher(nil, a.clock, a.logger)

	a.scheduler, err = scheduler.New(scheduler.Config{
		MaxDepth:      a.cfg.Crawl.MaxDepth,
		BatchSize:     a.cfg.Crawl.BatchSize,
		ArchivePrefix: a.cfg.Archive.Prefix,
	}, scheduler.Deps{
		Fetcher:   a.fetcher,
		Extractor: a.extractor,
		Analyzer:  a.analyzer,
		Store:     a.store,
		Sink:      a.sink,
		Archive:   a.archive,
		Hasher:    hash.NewSHA256(),
		IDs:       id.NewUUIDv7(),
		Clock:     a.clock,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}

	seedsPath := a.cfg.Crawl.SeedsPath
	a.runner, err = scheduler.NewRunner(a.scheduler, func() ([]string, error) {
		return seeds.Load(seedsPath)
	}, a.logger)
	if err != nil {
		return fmt.Errorf("runner init failed: %w", err)
	}
	return nil
}

func (a *App) setupCheckpoint() error {
	switch a.cfg.Checkpoint.Backend {
	case config.BackendRedis:
		rc := a.cfg.Checkpoint.Redis
		store, err := checkpoint.NewRedisStore(checkpoint.RedisConfig{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			Key:      rc.Key,
		})
		if err != nil {
			return fmt.Errorf("redis checkpoint init failed: %w", err)
		}
		a.redisStore = store
		a.store = store
		a.logger.Info("using redis checkpoint", zap.String("addr", rc.Addr))
	default:
		store, err := checkpoint.NewFileStore(a.cfg.Crawl.StatePath)
		if err != nil {
			return fmt.Errorf("file checkpoint init failed: %w", err)
		}
		a.store = store
		a.logger.Info("using file checkpoint", zap.String("path", store.Path()))
	}
	return nil
}

func (a *App) setupSink(ctx context.Context) error {
	records, err := checkpoint.NewRecordLog(a.cfg.Crawl.OutputPath)
	if err != nil {
		return fmt.Errorf("record log init failed: %w", err)
	}
	a.records = records

	fanout := sink.Config{Primary: records, Logger: a.logger}
	if a.cfg.Postgres.DSN != "" {
		store, err := pgstore.NewRecordStore(ctx, pgstore.Config{
			DSN:   a.cfg.Postgres.DSN,
			Table: a.cfg.Postgres.Table,
		})
		if err != nil {
			return fmt.Errorf("postgres mirror init failed: %w", err)
		}
		a.recordStore = store
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres mirror schema: %w", err)
		}
		fanout.Store = store
	}
	if a.cfg.PubSub.Topic != "" {
		pub, err := gcppublisher.New(ctx, gcppublisher.Config{
			ProjectID: a.cfg.PubSub.ProjectID,
			Topic:     a.cfg.PubSub.Topic,
		})
		if err != nil {
			return fmt.Errorf("pubsub mirror init failed: %w", err)
		}
		a.publisher = pub
		fanout.Publisher = pub
		fanout.Topic = a.cfg.PubSub.Topic
	}

	a.sink, err = sink.New(fanout)
	if err != nil {
		return fmt.Errorf("record sink init failed: %w", err)
	}
	return nil
}

func (a *App) setupFetcher() error {
	primary := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Fetch.UserAgent,
		Timeout:   a.cfg.Fetch.Timeout,
	})

	var fallback crawler.Fetcher
	if a.cfg.HeadlessFallback() {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Fetch.UserAgent,
			NavigationTimeout: a.cfg.Headless.NavTimeout,
			QPS:               a.cfg.Headless.QPS,
		})
		if err != nil {
			return fmt.Errorf("headless fetcher init failed: %w", err)
		}
		a.headless = hf
		fallback = hf
	}

	s, err := strategy.New(primary, fallback, strategy.Config{
		Retries:         a.cfg.Fetch.Retries,
		Timeout:         a.cfg.Fetch.Timeout,
		BackoffFactor:   a.cfg.Fetch.BackoffFactor,
		FallbackEnabled: a.cfg.HeadlessFallback(),
	}, a.logger)
	if err != nil {
		return fmt.Errorf("fetch strategy init failed: %w", err)
	}
	a.fetcher = s
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	switch a.cfg.Archive.Backend {
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{Dir: a.cfg.Archive.Dir})
		if err != nil {
			return fmt.Errorf("local archive init failed: %w", err)
		}
		a.archive = store
	case config.BackendGCS:
		store, err := gcsstorage.New(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.gcsArchive = store
		a.archive = store
	case config.BackendMemory:
		a.archive = memorystorage.NewBlobStore()
	}
	return nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Runner returns the crawl runner.
func (a *App) Runner() *scheduler.Runner {
	return a.runner
}

// Store returns the checkpoint store.
func (a *App) Store() crawler.CheckpointStore {
	return a.store
}

// Sink returns the record sink: the JSONL logs plus any configured mirrors.
func (a *App) Sink() crawler.RecordSink {
	return a.sink
}

// Fetcher returns the retrying fetch strategy.
func (a *App) Fetcher() crawler.Fetcher {
	return a.fetcher
}

// Extractor returns the record extractor dispatcher.
func (a *App) Extractor() crawler.Extractor {
	return a.extractor
}

// Analyzer returns the page analyzer.
func (a *App) Analyzer() crawler.PageAnalyzer {
	return a.analyzer
}

// Ready reports whether the checkpoint can be read.
func (a *App) Ready(ctx context.Context) error {
	if _, err := a.store.Load(ctx); err != nil {
		return fmt.Errorf("checkpoint unavailable: %w", err)
	}
	return nil
}

// Server builds the status server for the runner.
func (a *App) Server() *api.Server {
	return api.NewServer(a.runner, a.Ready, a.logger)
}

// Close gracefully shuts down all services in the container.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	return a.closeObservability(ctx)
}

func (a *App) closeInfrastructure(_ context.Context) {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.redisStore != nil {
		if err := a.redisStore.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.recordStore != nil {
		a.recordStore.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcsArchive != nil {
		if err := a.gcsArchive.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) error {
	var errs []error
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	_ = a.logger.Sync() //nolint:errcheck // stderr sync errors are expected
	return errors.Join(errs...)
}

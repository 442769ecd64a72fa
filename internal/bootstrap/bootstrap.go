package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/orchestrator"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/memory"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
	"github.com/kirillkom/docflow/internal/infrastructure/sentiment"
	"github.com/kirillkom/docflow/internal/infrastructure/storage/localfs"
	miniostore "github.com/kirillkom/docflow/internal/infrastructure/storage/minio"
	"github.com/kirillkom/docflow/internal/infrastructure/vision"
	"github.com/kirillkom/docflow/internal/observability/metrics"
	"github.com/kirillkom/docflow/internal/stages/analysis"
	"github.com/kirillkom/docflow/internal/stages/metadata"
	"github.com/kirillkom/docflow/internal/stages/persistence"
	"github.com/kirillkom/docflow/internal/stages/textextract"
)

type App struct {
	Config   config.Config
	Pipeline *domain.PipelineDefinition

	Queue        *nats.Queue
	Store        ports.ExecutionStore
	Orchestrator *orchestrator.Orchestrator
	Metrics      *metrics.WorkerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	pipeline, err := config.LoadPipeline(cfg.PipelineConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}

	workerMetrics := metrics.NewWorkerMetrics("worker")

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	storage, err := buildStorage(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		LagObserver: workerMetrics.ObserveTriggerLag,
	})
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("init trigger queue: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	visionClient := vision.New(cfg.VisionURL, vision.Options{
		RequestsPerSecond:  cfg.VisionRPS,
		ResilienceExecutor: executor,
	})
	sentimentClient := sentiment.New(cfg.SentimentURL, sentiment.Options{
		RequestsPerSecond:  cfg.SentimentRPS,
		ResilienceExecutor: executor,
	})

	registry := orchestrator.Registry{
		domain.StageMetadata:    metadata.New(),
		domain.StageTextExtract: textextract.New(storage, visionClient),
		domain.StageAnalysis:    analysis.New(sentimentClient, cfg.SentimentLanguage, cfg.AnalysisMaxChars),
		domain.StagePersistence: persistence.New(storage, cfg.ResultPrefix),
	}

	orch, err := orchestrator.New(store, pipeline, registry, logger, workerMetrics)
	if err != nil {
		queue.Close()
		closeStore()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	return &App{
		Config:       cfg,
		Pipeline:     pipeline,
		Queue:        queue,
		Store:        store,
		Orchestrator: orch,
		Metrics:      workerMetrics,

		closeFn: func() {
			queue.Close()
			closeStore()
		},
	}, nil
}

func buildStore(ctx context.Context, cfg config.Config) (ports.ExecutionStore, func(), error) {
	switch cfg.Store {
	case "memory":
		return memory.New(), func() {}, nil
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		store := postgres.NewExecutionStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown execution store %q", cfg.Store)
	}
}

func buildStorage(cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "localfs":
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init localfs storage: %w", err)
		}
		return storage, nil
	case "minio":
		client, err := miniostore.NewClient(miniostore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init minio storage: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// ExecutionTimeout bounds one whole Run.
func (a *App) ExecutionTimeout() time.Duration {
	return time.Duration(a.Config.ExecutionTimeoutSec) * time.Second
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/cardscan/internal/config"
	"github.com/kirillkom/cardscan/internal/core/ports"
	"github.com/kirillkom/cardscan/internal/core/usecase"
	"github.com/kirillkom/cardscan/internal/infrastructure/cache"
	"github.com/kirillkom/cardscan/internal/infrastructure/heuristics"
	"github.com/kirillkom/cardscan/internal/infrastructure/ocrengine"
	"github.com/kirillkom/cardscan/internal/infrastructure/parser"
	"github.com/kirillkom/cardscan/internal/infrastructure/queue/nats"
	"github.com/kirillkom/cardscan/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/cardscan/internal/infrastructure/resilience"
	"github.com/kirillkom/cardscan/internal/infrastructure/security"
	"github.com/kirillkom/cardscan/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/cardscan/internal/infrastructure/validation"
	"github.com/kirillkom/cardscan/internal/infrastructure/vault"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue       ports.MessageQueue
	Cache       *cache.Store
	Cards       ports.CardRepository
	Credentials ports.CredentialStore
	Gate        ports.ContentGate

	ScanUC    *usecase.ScanCardUseCase
	ExtractUC *usecase.ExtractCardUseCase

	closeFn func()
}

// Options carries the observability hooks the composition differs on
// between the api and the worker.
type Options struct {
	PipelineMetrics ports.PipelineMetrics
	OnQueueLag      func(time.Duration)
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	cards := postgres.NewCardRepository(db)
	if err := cards.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	images, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	gate := security.NewGate()

	secrets, err := vault.NewFileStorage(cfg.VaultPath)
	if err != nil {
		return nil, fmt.Errorf("init secret storage: %w", err)
	}
	credentials, err := vault.New(secrets, gate, []byte(cfg.MasterSecret), logger)
	if err != nil {
		return nil, fmt.Errorf("init credential vault: %w", err)
	}

	resilienceCfg := resilience.DefaultConfig()
	resilienceCfg.RatePerSecond = cfg.AIRatePerSecond
	resilienceCfg.RateBurst = cfg.AIRateBurst
	executor := resilience.NewExecutor(resilienceCfg)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
		OnQueueLag:         opts.OnQueueLag,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	patterns := heuristics.DefaultPatterns()
	if cfg.PatternsPath != "" {
		patterns, err = heuristics.LoadPatterns(cfg.PatternsPath)
		if err != nil {
			return nil, fmt.Errorf("load extraction patterns: %w", err)
		}
	}
	local := heuristics.New(patterns)

	aiParser := parser.New(parser.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIModel), gate, credentials, executor)

	engines := []ports.OCREngine{
		ocrengine.NewRemoteEngine(cfg.OCRPrimaryName, cfg.OCRPrimaryURL, executor),
	}
	if cfg.OCRFallbackURL != "" {
		engines = append(engines, ocrengine.NewRemoteEngine(cfg.OCRFallbackName, cfg.OCRFallbackURL, executor))
	}
	resolver := ocrengine.NewResolver(logger, engines...)

	results := cache.New(
		cache.WithCapacity(cfg.CacheCapacity),
		cache.WithValidityWindow(time.Duration(cfg.CacheValidityHours)*time.Hour),
	)

	extractUC := usecase.NewExtractCardUseCase(aiParser, local, gate, validation.Validator{}, opts.PipelineMetrics, logger)
	scanUC := usecase.NewScanCardUseCase(results, resolver, extractUC, cards, images, queue, opts.PipelineMetrics, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:       queue,
		Cache:       results,
		Cards:       cards,
		Credentials: credentials,
		Gate:        gate,

		ScanUC:    scanUC,
		ExtractUC: extractUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"PaperDigest/internal/config"
	"PaperDigest/internal/infrastructure/anthropic"
	"PaperDigest/internal/infrastructure/arxiv"
	"PaperDigest/internal/infrastructure/checkpointstore"
	"PaperDigest/internal/infrastructure/scheduler"
	"PaperDigest/internal/infrastructure/storage"
	"PaperDigest/internal/infrastructure/telegram"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/ratelimit"
	"PaperDigest/internal/scoring"
	"PaperDigest/internal/usecase"
)

// Application wires configuration to adapters and lifecycle orchestration.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	orchestrator *usecase.Orchestrator
	scheduler    ports.Scheduler
	db           *sql.DB
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	discoveryLimiter := ratelimit.New(
		millis(cfg.Discovery.RateIntervalMs),
		millis(cfg.Discovery.RateJitterMinMs),
		millis(cfg.Discovery.RateJitterMaxMs),
	)
	aiLimiter := ratelimit.New(
		millis(cfg.Anthropic.RateIntervalMs),
		millis(cfg.Anthropic.RateJitterMinMs),
		millis(cfg.Anthropic.RateJitterMaxMs),
	)

	discovery := arxiv.New(cfg.Discovery.BaseURL, nil, discoveryLimiter,
		baseLogger.With("component", "discovery"))
	model := anthropic.New(cfg.Anthropic.Endpoint, cfg.Anthropic.APIKey)

	pipeline := scoring.NewPipeline(model, aiLimiter, scoring.Config{
		TriageModel:  cfg.Anthropic.TriageModel,
		SummaryModel: cfg.Anthropic.SummaryModel,
		TriageRates: scoring.Rates{
			InputPerMTok:  cfg.Anthropic.TriageRates.InputPerMTok,
			OutputPerMTok: cfg.Anthropic.TriageRates.OutputPerMTok,
		},
		SummaryRates: scoring.Rates{
			InputPerMTok:  cfg.Anthropic.SummaryRates.InputPerMTok,
			OutputPerMTok: cfg.Anthropic.SummaryRates.OutputPerMTok,
		},
		DailyBudgetUSD: cfg.Pipeline.DailyBudgetUSD,
	}, baseLogger.With("component", "scoring"))

	var notifier ports.Notifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notifier = telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}

	orchestrator := usecase.NewOrchestrator(usecase.Deps{
		Discovery:   discovery,
		Repository:  storage.NewPostgresRepository(db),
		Pipeline:    pipeline,
		Checkpoints: checkpointstore.New(redisClient, baseLogger.With("component", "checkpoints")),
		Notifier:    notifier,
		Logger:      baseLogger.With("component", "orchestrator"),
	}, usecase.Limits{
		DailyBudgetUSD:     cfg.Pipeline.DailyBudgetUSD,
		BatchCap:           cfg.Pipeline.BatchCap,
		RelevanceThreshold: cfg.Pipeline.RelevanceThreshold,
		MaxResults:         cfg.Discovery.MaxResults,
		SummaryModel:       cfg.Anthropic.SummaryModel,
	})

	return &Application{
		cfg:          cfg,
		logger:       baseLogger,
		orchestrator: orchestrator,
		scheduler:    scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location()),
		db:           db,
	}, nil
}

// Run executes a single day's run when no cron expression is configured,
// otherwise keeps the schedule running until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer a.db.Close()

	if a.cfg.Scheduler.CronExpression == "" {
		return a.runDay(ctx, time.Now().In(a.cfg.Scheduler.Location()))
	}

	job := func(trigger time.Time) {
		if err := a.runDay(ctx, trigger); err != nil {
			a.logger.Error("daily run failed", "error", err)
		}
	}
	if err := a.scheduler.Start(ctx, job); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.scheduler.Stop(stopCtx)
}

// runDay re-invokes the orchestrator across batch pauses until the day
// completes, playing the external scheduler's re-invocation role in-process.
func (a *Application) runDay(ctx context.Context, trigger time.Time) error {
	for {
		status, err := a.orchestrator.RunOnce(ctx, trigger)
		if err != nil {
			return err
		}
		if status != usecase.StatusBatchPaused {
			return nil
		}

		select {
		case <-time.After(millis(a.cfg.Scheduler.ResumeDelayMs)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

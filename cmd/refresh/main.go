// Command refresh runs one guarded update cycle and exits, which makes it
// suitable for cron: concurrent invocations contend on the shared refresh
// lease and all but one skip.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halfline/overunder/internal/adapters/lock"
	"github.com/halfline/overunder/internal/adapters/provider"
	"github.com/halfline/overunder/internal/adapters/repository"
	app "github.com/halfline/overunder/internal/app"
	"github.com/halfline/overunder/internal/config"
	"github.com/halfline/overunder/internal/domain/normalize"
	"github.com/halfline/overunder/internal/domain/projection"
	"github.com/halfline/overunder/internal/domain/scoring"
	"github.com/halfline/overunder/pkg/logger"
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}

	store, err := repository.Open(cfg.DBPath, repository.WithLogger(log.Named("store")))
	if err != nil {
		log.Error(ctx, "failed to open store", logger.Error(err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	seasonStarts, err := cfg.SeasonStarts()
	if err != nil {
		log.Error(ctx, "invalid season start dates", logger.Error(err))
		os.Exit(1)
	}

	client := provider.New(
		provider.WithBaseURL(cfg.Provider.BaseURL),
		provider.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Provider.TimeoutSec) * time.Second}),
		provider.WithRetry(provider.RetryConfig{
			MaxRetries: cfg.Provider.MaxRetries,
			Delay:      time.Duration(cfg.Provider.RetryDelayMS) * time.Millisecond,
		}),
		provider.WithLogger(log.Named("provider")),
	)

	svc := app.New(
		app.WithStore(store),
		app.WithLocker(lock.New(store.DB(), lock.WithTTL(time.Duration(cfg.LockTTLMin)*time.Minute))),
		app.WithFetchPool(provider.NewPool(client,
			provider.WithWorkers(cfg.Provider.FetchWorkers),
			provider.WithRequestDelay(time.Duration(cfg.Provider.RequestDelayMS)*time.Millisecond),
			provider.WithPoolLogger(log.Named("fetch")),
		)),
		app.WithNormalizer(normalize.New(
			normalize.WithAliases(cfg.Aliases),
			normalize.WithSeasonStart(seasonStarts),
			normalize.WithLogger(log.Named("normalize")),
		)),
		app.WithScorer(scoring.New(scoring.WithRules(cfg.ScoringRules()))),
		app.WithProjector(projection.New(
			projection.WithConfig(cfg.ProjectionSettings()),
			projection.WithRules(cfg.ScoringRules()),
		)),
		app.WithSources(cfg.Sources),
		app.WithSeason(cfg.Season),
		app.WithLockTimeout(time.Duration(cfg.LockAcquireTimeoutSec)*time.Second),
		app.WithLogger(log.Named("service")),
	)

	report := svc.Refresh(ctx)
	switch {
	case report.Skipped:
		log.Info(ctx, "refresh skipped", logger.String("reason", report.SkipReason))
	case report.Failed():
		log.Error(ctx, "refresh failed on all sources", logger.String("id", report.ID))
		os.Exit(1)
	default:
		log.Info(ctx, "refresh complete",
			logger.String("id", report.ID),
			logger.Int("added", report.Added),
			logger.Int("updated", report.Updated))
	}
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halfline/overunder/internal/adapters/http/api"
	"github.com/halfline/overunder/internal/adapters/lock"
	"github.com/halfline/overunder/internal/adapters/provider"
	"github.com/halfline/overunder/internal/adapters/repository"
	app "github.com/halfline/overunder/internal/app"
	"github.com/halfline/overunder/internal/config"
	"github.com/halfline/overunder/internal/domain/model"
	"github.com/halfline/overunder/internal/domain/normalize"
	"github.com/halfline/overunder/internal/domain/projection"
	"github.com/halfline/overunder/internal/domain/scoring"
	"github.com/halfline/overunder/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, store, err := buildService(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to build service", logger.Error(err))
		return
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "failed to close store", logger.Error(err))
		}
	}()

	// Background refresh scheduler; 0 disables it.
	if cfg.RefreshIntervalMin > 0 {
		go svc.RunScheduler(ctx, time.Duration(cfg.RefreshIntervalMin)*time.Minute)
	}

	// HTTP mux and routes.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	apiServer := api.NewServer(svc)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// buildService wires the store, lock, provider pool, engines, and service
// from configuration. The returned store must be closed by the caller.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, *repository.SQLiteStore, error) {
	store, err := repository.Open(cfg.DBPath, repository.WithLogger(log.Named("store")))
	if err != nil {
		return nil, nil, err
	}

	seasonStarts, err := cfg.SeasonStarts()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	locker := lock.New(store.DB(),
		lock.WithTTL(time.Duration(cfg.LockTTLMin)*time.Minute),
	)

	client := provider.New(
		provider.WithBaseURL(cfg.Provider.BaseURL),
		provider.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Provider.TimeoutSec) * time.Second}),
		provider.WithRetry(provider.RetryConfig{
			MaxRetries: cfg.Provider.MaxRetries,
			Delay:      time.Duration(cfg.Provider.RetryDelayMS) * time.Millisecond,
		}),
		provider.WithLogger(log.Named("provider")),
	)
	pool := provider.NewPool(client,
		provider.WithWorkers(cfg.Provider.FetchWorkers),
		provider.WithRequestDelay(time.Duration(cfg.Provider.RequestDelayMS)*time.Millisecond),
		provider.WithPoolLogger(log.Named("fetch")),
	)

	normalizer := normalizeFromConfig(cfg, seasonStarts, log)

	svc := app.New(
		app.WithStore(store),
		app.WithLocker(locker),
		app.WithFetchPool(pool),
		app.WithNormalizer(normalizer),
		app.WithScorer(scoringEngine(cfg)),
		app.WithProjector(projectionEngine(cfg)),
		app.WithSources(cfg.Sources),
		app.WithSeason(cfg.Season),
		app.WithLockTimeout(time.Duration(cfg.LockAcquireTimeoutSec)*time.Second),
		app.WithLogger(log.Named("service")),
	)
	return svc, store, nil
}

func normalizeFromConfig(cfg *config.Config, starts map[model.Category]time.Time, log logger.Logger) *normalize.Normalizer {
	return normalize.New(
		normalize.WithAliases(cfg.Aliases),
		normalize.WithSeasonStart(starts),
		normalize.WithLogger(log.Named("normalize")),
	)
}

func scoringEngine(cfg *config.Config) *scoring.Engine {
	return scoring.New(scoring.WithRules(cfg.ScoringRules()))
}

func projectionEngine(cfg *config.Config) *projection.Engine {
	return projection.New(
		projection.WithConfig(cfg.ProjectionSettings()),
		projection.WithRules(cfg.ScoringRules()),
	)
}

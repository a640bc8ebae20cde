package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	_ "github.com/joho/godotenv/autoload"

	"github.com/jackhudsonnnn/p2picks/internal/cache"
	"github.com/jackhudsonnnn/p2picks/internal/config"
	"github.com/jackhudsonnnn/p2picks/internal/database"
	"github.com/jackhudsonnnn/p2picks/internal/hub"
	"github.com/jackhudsonnnn/p2picks/internal/idempotency"
	"github.com/jackhudsonnnn/p2picks/internal/lifecycle"
	"github.com/jackhudsonnnn/p2picks/internal/livedata"
	"github.com/jackhudsonnnn/p2picks/internal/logging"
	"github.com/jackhudsonnnn/p2picks/internal/metrics"
	"github.com/jackhudsonnnn/p2picks/internal/modes"
	"github.com/jackhudsonnnn/p2picks/internal/proposal"
	"github.com/jackhudsonnnn/p2picks/internal/queue"
	"github.com/jackhudsonnnn/p2picks/internal/ratelimit"
	"github.com/jackhudsonnnn/p2picks/internal/resolver"
	"github.com/jackhudsonnnn/p2picks/internal/server"
	"github.com/jackhudsonnnn/p2picks/internal/session"
)

// breakerSource adapts one *livedata.Ingest to internal/metrics'
// BreakerSource, the same shape ReportBreakerState expects.
type breakerSource struct{ ingest *livedata.Ingest }

func (b breakerSource) BreakerStateValue(league string) int { return b.ingest.BreakerStateValue(league) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	env := os.Getenv("APP_ENV")
	logger := logging.New(env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewFromURL(ctx, cfg.DBURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	cacheService, err := cache.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer cacheService.Close()

	registry := modes.NewRegistry()
	baselines := modes.NewBaselineStore(cacheService.Client())
	registry.Register(modes.NewU2PickMode())
	registry.Register(modes.NewEitherOrMode(baselines))
	registry.Register(modes.NewChooseTheirFateMode(baselines))
	registry.Finalize()

	pool := db.Pool()
	betRepo := database.NewBetProposalRepo(pool)
	participationRepo := database.NewBetParticipationRepo(pool)
	tableRepo := database.NewTableRepo(pool)
	historyRepo := database.NewResolutionHistoryRepo(pool)
	feedItemRepo := database.NewFeedItemRepo(pool)

	sessions := session.NewService(cacheService.Client(), registry)

	fileStore := livedata.NewFileStore(dataRoot())
	ingestCfg := ingestConfig(cfg)
	liveStore := livedata.NewStore(fileStore, ingestCfg.BaseInterval*9/10)
	ingest := livedata.NewIngest(fileStore, liveStore, livedata.NoopProvider{}, []livedata.Refiner{livedata.NFLRefiner{}}, ingestCfg, logger)

	limiter := ratelimit.New(cacheService.Client(), logger)

	proposals := proposal.NewService(sessions, registry, limiter, liveStore, tableRepo, betRepo, historyRepo, feedItemRepo)

	lifecycleWorker := lifecycle.NewWorker(betRepo, cfg.BetLifecyclePollInterval, cfg.BetLifecycleCatchup, logger)

	jobQueue := queue.New(cacheService.Client(), cfg.ResolutionQueueConcurrency, logger)

	messageHub := hub.New(logger)
	go messageHub.Run()

	resolverWorker := resolver.NewWorker(betRepo, historyRepo, registry, liveStore, jobQueue, messageHub, cfg.Leagues(), cfg.BetLifecyclePollInterval, logger)
	resolverWorker.RegisterHandlers(jobQueue)

	idempotencyStore := idempotency.New(cacheService.Client())

	deps := server.Deps{
		Config: cfg,
		Logger: logger,

		DB:    db,
		Cache: cacheService,

		Bets:           betRepo,
		Participations: participationRepo,
		Tables:         tableRepo,
		History:        historyRepo,
		FeedItems:      feedItemRepo,

		Registry:    registry,
		Sessions:    sessions,
		Proposals:   proposals,
		Limiter:     limiter,
		Idempotency: idempotencyStore,

		Live:     liveStore,
		Ingest:   ingest,
		Queue:    jobQueue,
		Resolver: resolverWorker,
		Hub:      messageHub,
	}
	app := server.New(deps)

	jobQueue.Start(ctx)
	go ingest.Run(ctx, ingestCfg)
	go lifecycleWorker.Run(ctx)
	go resolverWorker.Run(ctx)
	go metrics.ReportQueueDepth(ctx, jobQueue, 5*time.Second)
	go metrics.ReportBreakerState(ctx, breakerSource{ingest: ingest}, cfg.Leagues(), 10*time.Second)

	serverErrors := make(chan error, 1)
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("server: listen failed")
	case <-ctx.Done():
		logger.Info().Msg("server: shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server: graceful shutdown failed")
	}

	jobQueue.Drain()
	lifecycleWorker.Stop()
	resolverWorker.Stop()
	ingest.Stop()

	logger.Info().Msg("server: stopped")
}

// dataRoot is the Live Data Store's persisted-state root, §7 "Persisted
// state" / DATA_ROOT in §6.2.
func dataRoot() string {
	if v := os.Getenv("DATA_ROOT"); v != "" {
		return v
	}
	return "./data"
}

// ingestConfig derives one IngestConfig covering every configured
// league. All leagues share one Ingest loop, so they tick at one
// BaseInterval/JitterPercent: the first configured league's tuning, or
// 20s/10% when no league tuning is set.
func ingestConfig(cfg *config.Config) livedata.IngestConfig {
	leagues := cfg.Leagues()
	base := 20 * time.Second
	jitter := 10
	if len(leagues) > 0 {
		base = cfg.IngestInterval(leagues[0])
		jitter = cfg.IngestJitterPercent(leagues[0])
	}
	return livedata.IngestConfig{
		Leagues:          leagues,
		BaseInterval:     base,
		JitterPercent:    jitter,
		BreakerThreshold: 3,
		BreakerCooldown:  30 * time.Second,
		RawCleanupAge:    24 * time.Hour,
		FinalCleanupAge:  7 * 24 * time.Hour,
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/david/subsidy-matcher/internal/ai"
	"github.com/david/subsidy-matcher/internal/api"
	"github.com/david/subsidy-matcher/internal/catalog"
	"github.com/david/subsidy-matcher/internal/config"
	"github.com/david/subsidy-matcher/internal/db"
	"github.com/david/subsidy-matcher/internal/logging"
	"github.com/david/subsidy-matcher/internal/matching"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	jsonLogs := flag.Bool("json-logs", false, "emit JSON logs")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(*jsonLogs, *debug)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	store := db.NewStore(pool)

	// Redis is optional; without it every request reads the catalog from
	// Postgres.
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, running without catalog cache", zap.Error(err))
			redisClient = nil
		}
		cancel()
	}
	cache := catalog.NewCache(store, redisClient, cfg.Redis.TTL(), logger.Named("catalog"))

	rules, err := matching.LoadRules(cfg.Matching.RulesPath)
	if err != nil {
		logger.Fatal("failed to load scoring rules", zap.Error(err))
	}

	var refiner matching.Refiner
	if cfg.AI.Enabled {
		client := ai.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Timeout())
		limiter := ai.NewLimiter(cfg.AI.TierRPM, cfg.AI.MinCallDelay(), cfg.AI.LimiterWait())
		refiner = ai.NewRefiner(client, limiter, logger.Named("ai"), cfg.AI.Timeout(), cfg.AI.MaxOutputTokens)
	}

	pipeline := matching.NewPipeline(cache, refiner, rules, matching.Config{
		AIEnabled: cfg.AI.Enabled,
		Budget: matching.TokenBudget{
			MaxCandidates:        cfg.Matching.MaxBatch,
			InputTokenCeiling:    cfg.AI.TierInputTokens,
			PromptOverheadTokens: cfg.Matching.PromptOverheadTokens,
		},
		DefaultLimit: cfg.Matching.DefaultLimit,
		MaxLimit:     cfg.Matching.MaxLimit,
	}, logger.Named("matching"))
	pipeline.Compliance = store

	srv := api.NewServer(pipeline, store, cache, cfg.Server, logger.Named("api"))

	stop, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.Bool("ai_enabled", cfg.AI.Enabled),
			zap.Bool("catalog_cache", redisClient != nil))
		if err := srv.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-stop.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

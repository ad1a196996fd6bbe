package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sweep-trading-bot/config"
	"sweep-trading-bot/internal/api"
	"sweep-trading-bot/internal/broker"
	"sweep-trading-bot/internal/database"
	"sweep-trading-bot/internal/live"
	"sweep-trading-bot/internal/logging"
	"sweep-trading-bot/internal/store"
)

func main() {
	godotenv.Load()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logging.New(config.LoggingConfig{})
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(cfg.Logging)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect to redis")
	}
	cancel()
	sessionStore := store.NewRedisStore(redisClient)

	var audit live.AuditSink
	if cfg.Database.Enabled {
		db, err := database.NewDB(cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.RunMigrations(migrateCtx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		audit = database.NewRepository(db)
		log.Info().Msg("postgres audit mirror enabled")
	}

	client := broker.NewClient(cfg.Broker)
	var stream *broker.QuoteStream
	if cfg.Broker.StreamURL != "" {
		stream = broker.NewQuoteStream(cfg.Broker.StreamURL, cfg.Broker.APIKey, cfg.Symbols, log)
		if err := stream.Start(); err != nil {
			log.Warn().Err(err).Msg("quote stream unavailable, using REST quotes")
			stream = nil
		} else {
			defer stream.Stop()
		}
	}
	provider := broker.NewStreamingProvider(client, stream)

	coordinator := live.NewCoordinator(cfg, sessionStore, provider, client, audit, log)

	if !cfg.Live.TradingEnabled || cfg.Live.DryRun {
		log.Warn().
			Bool("trading_enabled", cfg.Live.TradingEnabled).
			Bool("dry_run", cfg.Live.DryRun).
			Msg("running without order execution")
	}

	stopTicker := make(chan struct{})
	if cfg.Live.CycleSeconds > 0 {
		go runCycleLoop(coordinator, cfg, log, stopTicker)
	}

	server := api.NewServer(cfg, coordinator, sessionStore, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("API server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	close(stopTicker)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}
}

// runCycleLoop triggers one evaluation cycle per symbol every CycleSeconds.
// An external scheduler hitting the cycle endpoint can replace this; the
// per-symbol lock makes overlapping triggers safe.
func runCycleLoop(coordinator *live.Coordinator, cfg *config.Config, log zerolog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Duration(cfg.Live.CycleSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			for _, symbol := range cfg.Symbols {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				res, err := coordinator.AdvanceOneCycle(ctx, symbol, now)
				cancel()
				if err != nil {
					log.Error().Err(err).Str("symbol", symbol).Msg("cycle failed")
					continue
				}
				log.Debug().
					Str("symbol", symbol).
					Bool("skipped", res.Skipped).
					Strs("reasons", res.ReasonCodes).
					Msg("cycle complete")
			}
		}
	}
}

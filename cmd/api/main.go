package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"storyteller/internal/adapter/repo"
	"storyteller/internal/db"
	"storyteller/internal/http/handlers"
	"storyteller/internal/http/httpapi"
	"storyteller/internal/infra"
	"storyteller/internal/intake"
	"storyteller/internal/pricing"
	"storyteller/internal/queue/transport"
	"storyteller/internal/storage"
)

func main() {
	migrate := flag.Bool("migrate", false, "apply the database schema before serving")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "api").Logger()

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to connect database")
	}
	defer pool.Close()

	if *migrate {
		if err := db.Apply(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("api: failed to apply schema")
		}
		logger.Info().Msg("api: schema applied")
	}

	runner := infra.NewSQLRunner(pool, logger)
	stories := repo.NewStoryRepository(runner)

	tr, err := transport.Open(ctx, cfg, runner, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.QueueDriver).Msg("api: queue connection failed")
	}
	defer tr.Close()

	prices := pricing.NewCache(stories, cfg.PricingTTL)
	submitter, err := intake.NewService(stories, prices, tr.Publisher, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build intake")
	}

	opts := httpapi.Options{
		AllowedOrigins: cfg.CORSOrigins,
		RateLimit:      cfg.RateLimit,
		RatePer:        cfg.RateLimitWindow,
	}
	if cfg.StorageDriver == storage.DriverFS {
		opts.StaticDir = cfg.StoragePath
		if abs, err := filepath.Abs(cfg.StoragePath); err == nil {
			opts.StaticDir = abs
		}
	}
	router := httpapi.NewRouter(handlers.NewApp(stories, submitter, logger), opts)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("api: listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: stopped")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storyteller/internal/adapter/repo"
	"storyteller/internal/cover"
	"storyteller/internal/infra"
	"storyteller/internal/infra/credentials"
	"storyteller/internal/pipeline"
	"storyteller/internal/providers/story"
	"storyteller/internal/queue"
	"storyteller/internal/queue/transport"
	"storyteller/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	stories := repo.NewStoryRepository(runner)

	blobs, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("worker: failed to configure storage")
	}
	defer blobs.Close()

	provider, err := newTextProvider(ctx, cfg, credentials.NewStore(runner), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure text provider")
	}

	orchestrator, err := pipeline.NewOrchestrator(pipeline.Options{
		Repo:              stories,
		Generator:         provider,
		Extractor:         provider,
		Covers:            cover.NewBuilder(),
		Blobs:             blobs,
		FingerprintWindow: cfg.FingerprintWindow,
		Logger:            logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build pipeline")
	}

	tr, err := transport.Open(ctx, cfg, runner, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.QueueDriver).Msg("worker: queue connection failed")
	}
	defer tr.Close()

	source, err := tr.Source()
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to open queue source")
	}
	defer source.Close()

	consumer, err := queue.NewConsumer(source, orchestrator, cfg.QueuePrefetch, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build consumer")
	}

	logger.Info().
		Str("queue_driver", tr.Driver).
		Str("queue", cfg.QueueName).
		Int("prefetch", cfg.QueuePrefetch).
		Str("text_provider", provider.Name()).
		Msg("worker: started")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// newTextProvider resolves the provider API key from the environment first
// and the integration_tokens table second.
func newTextProvider(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger infra.Logger) (story.Provider, error) {
	openAIKey, err := creds.Resolve(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("worker: failed to load openai api key from store")
	}
	geminiKey, err := creds.Resolve(ctx, credentials.ProviderGemini, cfg.GeminiAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("worker: failed to load gemini api key from store")
	}

	return story.New(ctx, story.Options{
		Provider:      cfg.TextProvider,
		OpenAIAPIKey:  openAIKey,
		OpenAIModel:   cfg.OpenAIModel,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIOrg:     cfg.OpenAIOrg,
		GeminiAPIKey:  geminiKey,
		GeminiModel:   cfg.GeminiModel,
		MetaModel:     cfg.MetaModel,
		HTTPClient:    &http.Client{Timeout: 90 * time.Second},
		OnFallback: func(provider, reason string) {
			logger.Warn().Str("provider", provider).Str("reason", reason).Msg("worker: api key missing, using static story writer")
		},
		OnWarning: func(reason, detail string) {
			logger.Warn().Str("reason", reason).Str("detail", detail).Msg("worker: text provider warning")
		},
	})
}

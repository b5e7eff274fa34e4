package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danbi-market/analysis-worker/config"
	"github.com/danbi-market/analysis-worker/internal/ai"
	"github.com/danbi-market/analysis-worker/internal/analysis"
	"github.com/danbi-market/analysis-worker/internal/blob"
	"github.com/danbi-market/analysis-worker/internal/market"
	"github.com/danbi-market/analysis-worker/internal/queue"
	"github.com/danbi-market/analysis-worker/internal/store"
	"github.com/danbi-market/analysis-worker/internal/worker"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const logFileName = "analysis-worker.log"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Try to load existing config.env file
	config.LoadEnvFile()

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it, and ProtectSystem=strict
	// makes the working directory read-only).
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		// Local development: log to both stderr and file
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open log file")
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		multiWriter := io.MultiWriter(consoleWriter, fileWriter)
		log.Logger = log.Output(multiWriter)

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	itemStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize item store")
	}
	defer itemStore.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("item store initialized")

	jobQueue, err := queue.NewSQLiteQueue(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize job queue")
	}
	defer jobQueue.Close()

	var blobs blob.Store
	if cfg.BlobGatewayURL != "" {
		blobs = blob.NewHTTPStore(cfg.BlobGatewayURL)
		log.Info().Str("gateway", cfg.BlobGatewayURL).Msg("using blob gateway")
	} else {
		blobs = blob.NewFSStore(cfg.BlobDir)
		log.Info().Str("dir", cfg.BlobDir).Msg("using local blob store")
	}

	conditionClient, pricingClient, err := buildClients(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize completion clients")
	}

	prompts := analysis.DefaultPrompts()
	condition := analysis.NewConditionAnalyzer(conditionClient, prompts)
	pricing := analysis.NewPriceAggregator(
		pricingClient,
		market.NewBunjangClient(),
		market.NewGoogleClient(cfg.GoogleAPIKey, cfg.GoogleSearchEngineID),
		prompts,
	)

	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < cfg.WorkerCount; i++ {
		w := worker.New(jobQueue, blobs, condition, pricing, itemStore, itemStore).
			WithPollInterval(cfg.PollInterval)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	// One janitor per process redelivers jobs whose workers died mid-flight.
	g.Go(func() error {
		worker.RunJanitor(ctx, jobQueue)
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

// buildClients returns the completion clients for the condition and pricing
// stages. With the OpenRouter backend the two stages may use different
// models; the Gemini backend shares one client.
func buildClients(ctx context.Context, cfg *config.Config) (ai.Client, ai.Client, error) {
	switch cfg.Backend {
	case config.BackendGemini:
		client, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.ConditionModel)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("gemini completion client initialized")
		return client, client, nil
	default:
		condition := ai.NewOpenRouterClient(ai.OpenRouterOpts{
			BaseURL: cfg.OpenRouterBaseURL,
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.ConditionModel,
		})
		pricing := ai.NewOpenRouterClient(ai.OpenRouterOpts{
			BaseURL: cfg.OpenRouterBaseURL,
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.PricingModel,
		})
		log.Info().
			Str("conditionModel", cfg.ConditionModel).
			Str("pricingModel", cfg.PricingModel).
			Msg("openrouter completion clients initialized")
		return condition, pricing, nil
	}
}

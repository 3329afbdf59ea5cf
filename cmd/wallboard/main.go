package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openwall-hq/wallboard/internal/analysis"
	"github.com/openwall-hq/wallboard/internal/api"
	"github.com/openwall-hq/wallboard/internal/config"
	"github.com/openwall-hq/wallboard/internal/engine"
	"github.com/openwall-hq/wallboard/internal/events"
	"github.com/openwall-hq/wallboard/internal/gemini"
	"github.com/openwall-hq/wallboard/internal/simindex"
	"github.com/openwall-hq/wallboard/internal/store"
	"github.com/openwall-hq/wallboard/internal/topics"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("wallboard starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.NewPG(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Gemini client and analysis ports
	if cfg.GeminiAPIKey == "" {
		slog.Error("GEMINI_API_KEY is required")
		os.Exit(1)
	}
	llm := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEmbedModel)
	slog.Info("gemini client ready", "model", cfg.GeminiModel, "embed_model", cfg.GeminiEmbedModel)

	classifier := analysis.NewModerationClassifier(llm, slog.Default())
	embedder := analysis.NewGeminiEmbedder(llm, cfg.EmbedDim)
	extractor := analysis.NewKeywordExtractor(llm, slog.Default())
	summarizer := analysis.NewDigestSummarizer(llm, slog.Default())

	// Shared pool for the index, ledger, and run log
	pool := db.Pool()
	index := simindex.NewPG(pool, cfg.EmbedDim)
	ledger := topics.NewPG(pool)
	runlog := engine.NewPGRunLog(pool)

	// NATS (optional — the wall works without downstream consumers)
	var publisher engine.Publisher
	var natsClient *events.Client
	if cfg.NatsURL != "" {
		natsClient, err = events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = natsClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, running without lifecycle events")
	}

	// Workflow engine
	eng := engine.New(db, index, ledger, runlog,
		classifier, embedder, extractor, publisher, slog.Default(),
		engine.Options{
			ReuseThreshold:  cfg.ReuseThreshold,
			MaxStepAttempts: cfg.MaxStepAttempts,
			RetryBase:       cfg.RetryBase,
		})

	// Re-drive runs interrupted by the last shutdown.
	if err := eng.Resume(ctx); err != nil {
		slog.Error("failed to resume interrupted runs", "error", err)
		os.Exit(1)
	}

	// HTTP API
	var apiEvents api.Publisher
	if natsClient != nil {
		apiEvents = natsClient
	}
	srv := api.NewServer(cfg.Port, db, ledger, eng, summarizer, apiEvents, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("wallboard ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	eng.Wait()
	slog.Info("wallboard stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

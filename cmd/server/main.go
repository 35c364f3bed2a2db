package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tylertzm/KnowledgeOS/internal/assistant"
	"github.com/tylertzm/KnowledgeOS/internal/audio"
	"github.com/tylertzm/KnowledgeOS/internal/config"
	"github.com/tylertzm/KnowledgeOS/internal/metrics"
	"github.com/tylertzm/KnowledgeOS/internal/pipeline"
	"github.com/tylertzm/KnowledgeOS/internal/router"
	"github.com/tylertzm/KnowledgeOS/internal/server"
	"github.com/tylertzm/KnowledgeOS/internal/session"
	"github.com/tylertzm/KnowledgeOS/internal/transcription"
	"github.com/tylertzm/KnowledgeOS/internal/websearch"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// API keys can come from the environment instead of the config file.
	if cfg.Transcription.APIKey == "" {
		cfg.Transcription.APIKey = os.Getenv("GROQ_API_KEY")
	}
	if cfg.Assistant.APIKey == "" {
		cfg.Assistant.APIKey = os.Getenv("GROQ_API_KEY")
	}

	logger := initLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("Starting voice command service",
		slog.String("config", *configPath),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.String("default_mode", cfg.Session.DefaultMode),
		slog.String("session_backend", cfg.Session.Backend))

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(nil)

	defaultMode, err := session.ParseMode(cfg.Session.DefaultMode)
	if err != nil {
		return err
	}

	store, err := newStore(ctx, cfg, defaultMode, m, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	assistantClient := assistant.NewClient(assistant.Config{
		BaseURL:   cfg.Assistant.BaseURL,
		APIKey:    cfg.Assistant.APIKey,
		Model:     cfg.Assistant.Model,
		MaxTokens: cfg.Assistant.MaxTokens,
		Timeout:   cfg.Assistant.GetTimeoutDuration(),
		Logger:    logger,
	})

	searchClient := websearch.NewClient(websearch.Config{
		BaseURL: cfg.WebSearch.BaseURL,
		Model:   cfg.WebSearch.Model,
		Timeout: cfg.WebSearch.GetTimeoutDuration(),
		Logger:  logger,
	})

	transcriber := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Model:         cfg.Transcription.Model,
		Language:      cfg.Transcription.Language,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
		Metrics:       m,
		Logger:        logger,
	})

	dispatcher := router.New(store, assistantClient, searchClient, m, logger)

	source := audio.NewSource(audio.SourceConfig{
		QueueSize:      cfg.Audio.FrameQueueSize,
		OverflowPolicy: cfg.Audio.OverflowPolicy,
		Logger:         logger,
	})
	assembler := audio.NewAssembler(source, audio.AssemblerConfig{
		SampleRate:     cfg.Audio.SampleRate,
		ChunkSamples:   cfg.Audio.ChunkSamples(),
		OverlapSamples: cfg.Audio.OverlapSamples(),
		Logger:         logger,
	})

	loop := pipeline.New(assembler, transcriber, dispatcher, m, logger)
	loop.Start(ctx)

	statsFns := map[string]server.StatsFunc{
		"assembler":     func() any { return assembler.GetStats() },
		"transcription": func() any { return transcriber.GetStats() },
		"assistant":     func() any { return assistantClient.GetStats() },
		"websearch":     func() any { return searchClient.GetStats() },
	}

	httpServer := server.NewHTTPServer(cfg, store, dispatcher, source, m, logger, statsFns)

	serverErr := make(chan error, 1)
	if cfg.HTTP.Enabled {
		go func() {
			serverErr <- httpServer.Start()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	// Graceful shutdown: stop accepting audio, drain the pipeline, then
	// close the API.
	source.Close()
	loop.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if cfg.HTTP.Enabled {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
		}
	}

	sourceStats := source.GetStats()
	transcriptionStats := transcriber.GetStats()
	logger.Info("Service stopped",
		slog.Uint64("frames_received", sourceStats.FramesReceived),
		slog.Uint64("frames_dropped", sourceStats.FramesDropped),
		slog.Uint64("transcriptions", transcriptionStats.Requests),
		slog.Uint64("transcription_failures", transcriptionStats.Failures))

	return nil
}

func newStore(ctx context.Context, cfg *config.Config, defaultMode session.Mode, m *metrics.Metrics, logger *slog.Logger) (session.Store, error) {
	switch cfg.Session.Backend {
	case "redis":
		return session.NewRedisStore(ctx, session.RedisOptions{
			Addr:        cfg.Session.Redis.Addr,
			Password:    cfg.Session.Redis.Password,
			DB:          cfg.Session.Redis.DB,
			KeyPrefix:   cfg.Session.Redis.KeyPrefix,
			DefaultMode: defaultMode,
			TTL:         cfg.Session.GetTTLDuration(),
			Metrics:     m,
			Logger:      logger,
		})
	default:
		return session.NewMemoryStore(defaultMode, cfg.Session.GetTTLDuration(), m, logger), nil
	}
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

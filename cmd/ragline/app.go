package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/ragline/internal/adapters/driven/ai"
	"github.com/custodia-labs/ragline/internal/adapters/driven/cache/badger"
	"github.com/custodia-labs/ragline/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ragline/internal/adapters/driven/fetcher"
	"github.com/custodia-labs/ragline/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/ragline/internal/adapters/driving/cli"
	"github.com/custodia-labs/ragline/internal/core/services"
	"github.com/custodia-labs/ragline/internal/logger"
	"github.com/custodia-labs/ragline/internal/normalisers"
	"github.com/custodia-labs/ragline/internal/postprocessors"
)

// buildServices wires the stores, providers and services for one process.
func buildServices(ctx context.Context, opts cli.Options) (*cli.Services, error) {
	configDir := opts.ConfigDir
	if configDir == "" {
		dir, err := file.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config directory: %w", err)
		}
		configDir = dir
	}
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(configDir, "data")
	}

	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	settings, err := file.LoadSettings(configStore)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if len(settings.Loader.AllowedDirs) == 0 {
		if cwd, err := os.Getwd(); err == nil {
			settings.Loader.AllowedDirs = []string{cwd}
		}
	}
	if settings.Cache.Dir == "" {
		settings.Cache.Dir = filepath.Join(dataDir, "cache")
	}

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*cli.Services, error) {
		_ = closeAll()
		return nil, err
	}

	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return fail(fmt.Errorf("open store: %w", err))
	}
	closers = append(closers, store.Close)

	cache, err := badger.New(settings.Cache.Dir)
	if err != nil {
		return fail(fmt.Errorf("open cache: %w", err))
	}
	closers = append(closers, cache.Close)

	providers := ai.Initialise(ctx, &settings)
	closers = append(closers, func() error {
		providers.Close()
		return nil
	})

	prompts, err := file.NewPromptStore(filepath.Join(configDir, "prompts"))
	if err != nil {
		return fail(fmt.Errorf("open prompts: %w", err))
	}

	registry := normalisers.NewRegistry()
	normalisers.RegisterDefaults(registry, settings.Loader)
	pipeline, err := postprocessors.DefaultPipeline(settings.Chunking)
	if err != nil {
		return fail(fmt.Errorf("build chunking pipeline: %w", err))
	}

	docs := store.DocumentStore()
	convs := store.ConversationStore()
	bots := store.ChatbotStore()

	loader := services.NewDocumentLoader(settings.Loader, registry, fetcher.New(), store.PostSource())
	embedder := services.NewEmbeddingsGenerator(providers.Embedder, cache, settings.Embedding, settings.Cache.EmbeddingTTL)
	vectors := services.NewVectorStore(docs, providers.RemoteIndex, cache,
		settings.Cache.SearchTTL, settings.Retrieval.UnscopedFallback)
	ingestion := services.NewIngestionService(docs, loader, pipeline, embedder, vectors)
	retriever := services.NewRetriever(embedder, vectors, docs, cache, settings.Retrieval, settings.Cache.ContextTTL)

	limiter := services.NewRateLimiter(convs, settings.RateLimit)
	history := services.NewConversationHistory(convs, cache, settings.Chat.MaxConversationTurns, settings.Cache.HistoryTTL)
	chat := services.NewChatService(providers.LLM, retriever, limiter, convs, bots, history, settings.Chat, settings.LLM)
	chat.SetPromptStore(prompts)

	migration := services.NewMigrationService(docs, providers.RemoteIndex, store.OptionStore(), cache, settings.Migration)
	migration.SetEmbeddingModel(settings.Embedding.Model)
	scheduler := services.NewScheduler(settings.Scheduler, store.SchedulerStore(), ingestion, loader)

	logger.Debug("Services ready: data=%s cache=%s remote=%t", dataDir, settings.Cache.Dir, vectors.RemoteEnabled())

	return &cli.Services{
		Ingestion: ingestion,
		Retrieval: retriever,
		Chat:      chat,
		Chatbots:  services.NewChatbotService(bots),
		Migration: migration,
		Scheduler: scheduler,
		Registry:  registry,
		WatchDirs: settings.Loader.AllowedDirs,
		Warnings:  providers.Warnings,
		Close:     closeAll,
	}, nil
}

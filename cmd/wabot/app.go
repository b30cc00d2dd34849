package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"wabot/internal/agent"
	"wabot/internal/config"
	"wabot/internal/domain"
	"wabot/internal/knowledge"
	"wabot/internal/memory"
	"wabot/internal/metrics"
	"wabot/internal/provider"
)

// app holds the wired pipeline and the resources it owns.
type app struct {
	cfg       *config.Config
	store     *memory.Store
	redis     *redis.Client // nil without a Redis URL
	cache     *knowledge.CachedStore
	collector *metrics.MetricsCollector
	backend   provider.Backend
	pipeline  *agent.Pipeline
}

func openStore(cfg *config.Config) (*memory.Store, error) {
	switch cfg.Database.Driver {
	case "mysql":
		return memory.NewMySQLStore(memory.MySQLConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			MaxConns: cfg.Database.MaxConns,
		}, logger)
	default:
		return memory.NewSQLiteStore(cfg.Database.Path, logger)
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{cfg: cfg, store: store, collector: metrics.NewMetricsCollector("wabot")}

	var conversations domain.ConversationStore = store
	if cfg.Redis.URL != "" {
		client, err := memory.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			// History still works from the database.
			logger.Warn("redis unavailable, history served from database", "err", err)
		} else {
			a.redis = client
			conversations = memory.NewRedisHistory(memory.RedisHistoryConfig{
				Client: client,
				Next:   store,
				TTL:    time.Duration(cfg.Redis.HistoryTTLHours) * time.Hour,
				Max:    cfg.Redis.HistoryMax,
				Logger: logger,
			})
			logger.Info("redis history cache enabled")
		}
	}

	var kb domain.KnowledgeStore = store
	if cfg.Knowledge.CacheSize > 0 {
		a.cache = knowledge.NewCachedStore(store, cfg.Knowledge.CacheSize,
			time.Duration(cfg.Knowledge.CacheTTLSeconds)*time.Second)
		kb = a.cache
	}

	completer, backend := provider.New(provider.Config{
		OpenAIKey:   cfg.Providers.OpenAI.APIKey,
		OpenAIModel: cfg.Providers.OpenAI.Model,
		OpenAIBase:  cfg.Providers.OpenAI.APIBase,
		GeminiKey:   cfg.Providers.Gemini.APIKey,
		GeminiModel: cfg.Providers.Gemini.Model,
		GeminiBase:  cfg.Providers.Gemini.APIBase,
		Timeout:     time.Duration(cfg.Providers.TimeoutSeconds) * time.Second,
		Logger:      logger,
	})
	a.backend = backend
	if backend == provider.None {
		logger.Warn("no model API key configured, replies use templates only")
	}

	var sink domain.MetricsSink = store
	if cfg.Metrics.Enabled {
		sink = metrics.Multi{store, metrics.NewSink(a.collector)}
	}

	a.pipeline = agent.NewPipeline(agent.PipelineConfig{
		Retriever: knowledge.NewRetriever(knowledge.RetrieverConfig{Store: kb, Logger: logger}),
		Generator: agent.NewGenerator(agent.GeneratorConfig{
			Completer: completer,
			Backend:   backend,
			Logger:    logger,
		}),
		Recorder: agent.NewRecorder(agent.RecorderConfig{
			Metrics:       sink,
			Profiles:      store,
			Conversations: conversations,
			Logger:        logger,
		}),
		Profiles:      store,
		Conversations: conversations,
		Logger:        logger,
	})
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("close database", "err", err)
	}
}

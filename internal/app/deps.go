package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"venture-advisor/internal/answer"
	"venture-advisor/internal/cache"
	"venture-advisor/internal/chunker"
	"venture-advisor/internal/config"
	"venture-advisor/internal/extract"
	"venture-advisor/internal/ingest"
	"venture-advisor/internal/llm"
	"venture-advisor/internal/logger"
	"venture-advisor/internal/preprocess"
	"venture-advisor/internal/queue"
	"venture-advisor/internal/retriever"
	"venture-advisor/internal/store"
)

// Deps bundles the runtime dependencies of the gateway.
type Deps struct {
	Config    config.Config
	Log       *slog.Logger
	Blobs     store.BlobStore
	Documents *store.DocumentStore
	Cache     cache.Cache
	Events    queue.Publisher
	LLM       llm.Client
	Retriever *retriever.Retriever
	Answerer  *answer.Composer
	Ingest    *ingest.Service
}

// Build loads env, config, and shared components.
func Build() (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	return New(cfg, logger.New(cfg.LogLevel))
}

// New wires every component from an already loaded config.
func New(cfg config.Config, log *slog.Logger) (Deps, error) {
	blobs, err := buildStore(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	events, err := buildQueue(cfg, log)
	if err != nil {
		_ = blobs.Close()
		return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	llmClient, err := buildLLM(cfg, log)
	if err != nil {
		_ = blobs.Close()
		_ = events.Close()
		return Deps{}, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	c := buildCache(cfg, log)

	t := cfg.Tuning
	docs := store.NewDocumentStore(blobs, log, t.SearchConcurrency)
	ret := retriever.New(docs, log)
	ch := chunker.New(chunker.Options{Size: t.ChunkSize, Overlap: t.ChunkOverlap})

	return Deps{
		Config:    cfg,
		Log:       log,
		Blobs:     blobs,
		Documents: docs,
		Cache:     c,
		Events:    events,
		LLM:       llmClient,
		Retriever: ret,
		Answerer:  answer.New(ret, llmClient, log, answer.Options{TopK: t.TopK, FallbackTopK: t.FallbackTopK}),
		Ingest:    ingest.New(extract.New(log), preprocess.New(0), ch, docs, c, events, log),
	}, nil
}

// Close releases every connection held by the bundle.
func (d Deps) Close() error {
	var errs []error
	if d.Events != nil {
		errs = append(errs, d.Events.Close())
	}
	if d.Cache != nil {
		errs = append(errs, d.Cache.Close())
	}
	if d.Blobs != nil {
		errs = append(errs, d.Blobs.Close())
	}
	return errors.Join(errs...)
}

func buildStore(cfg config.Config, log *slog.Logger) (store.BlobStore, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres store")
		return db, nil
	case "sqlite":
		db, err := store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		log.Info("using SQLite store", "path", cfg.SQLitePath)
		return db, nil
	case "memory":
		log.Warn("using in-memory store, documents are lost on restart")
		return store.NewMemoryBlobStore(), nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid options: postgres, sqlite, memory)", cfg.StoreProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Publisher, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL, nats.Name("venture-advisor"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nil
	case "none":
		log.Info("document events disabled")
		return queue.NoOpPublisher{}, nil
	default:
		return nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid options: nats, none)", cfg.QueueProvider)
	}
}

// buildCache never fails: an unreachable Redis degrades to the no-op cache.
func buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	switch cfg.CacheProvider {
	case "redis":
		if cfg.RedisAddr == "" {
			log.Warn("REDIS_ADDR not set, answer cache disabled")
			return cache.NewNoOpCache()
		}
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("redis unavailable, answer cache disabled", "err", err)
			return cache.NewNoOpCache()
		}
		log.Info("using Redis answer cache", "addr", cfg.RedisAddr)
		return c
	case "memory":
		log.Info("using in-memory answer cache")
		return cache.NewMemoryCache()
	case "none", "":
		return cache.NewNoOpCache()
	default:
		log.Warn("unknown CACHE_PROVIDER, answer cache disabled", "provider", cfg.CacheProvider)
		return cache.NewNoOpCache()
	}
}

func buildLLM(cfg config.Config, log *slog.Logger) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		client, err := llm.NewOpenAIClient(cfg.OpenAIKey, openai.ChatModel(cfg.LLMModel))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		log.Info("using OpenAI LLM client", "model", cfg.LLMModel)
		return client, nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid option: openai)", cfg.LLMProvider)
	}
}

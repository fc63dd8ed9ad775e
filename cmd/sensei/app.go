package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openaisdk "github.com/openai/openai-go/v3"

	"github.com/sweetpotato0/sensei/config"
	"github.com/sweetpotato0/sensei/contrib/course/mongo"
	"github.com/sweetpotato0/sensei/contrib/embedder/cache"
	embedopenai "github.com/sweetpotato0/sensei/contrib/embedder/openai"
	"github.com/sweetpotato0/sensei/contrib/oracle/judge"
	"github.com/sweetpotato0/sensei/contrib/provider/claude"
	"github.com/sweetpotato0/sensei/contrib/provider/gemini"
	"github.com/sweetpotato0/sensei/contrib/provider/openai"
	"github.com/sweetpotato0/sensei/contrib/tokenizer/tiktoken"
	"github.com/sweetpotato0/sensei/contrib/vector/chroma"
	"github.com/sweetpotato0/sensei/contrib/vector/inmemory"
	"github.com/sweetpotato0/sensei/contrib/vector/pg"
	"github.com/sweetpotato0/sensei/contrib/websearch/duckduckgo"
	"github.com/sweetpotato0/sensei/course"
	"github.com/sweetpotato0/sensei/ingest"
	"github.com/sweetpotato0/sensei/pkg/logging"
	"github.com/sweetpotato0/sensei/pkg/telemetry"
	"github.com/sweetpotato0/sensei/rag/chunking"
	"github.com/sweetpotato0/sensei/rag/generate"
	"github.com/sweetpotato0/sensei/rag/pipeline"
	"github.com/sweetpotato0/sensei/rag/preprocess"
	"github.com/sweetpotato0/sensei/rag/tokenizer"
	"github.com/sweetpotato0/sensei/vector"
)

const groqDefaultModel = "llama-3.1-8b-instant"

// chatModel is what every provider under contrib/provider offers.
type chatModel interface {
	generate.LLM
	judge.Completer
}

// app is the wired process.
type app struct {
	pipeline *pipeline.Pipeline
	indexer  *ingest.Indexer
	registry course.Registry
	logger   *slog.Logger
	closers  []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{logger: logging.WithComponent("app")}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "sensei",
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Disable:        cfg.Telemetry.Disable,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	embedder, err := a.buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	index, err := a.buildIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.registry, err = a.buildRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	tok, err := buildTokenizer(cfg.Ingest)
	if err != nil {
		return nil, err
	}
	normalizer := buildNormalizer(cfg.Ingest)

	llm := buildLLM(cfg.LLM)
	opts := []pipeline.Option{
		pipeline.WithIndex(index),
		pipeline.WithNormalizer(normalizer),
	}
	if cfg.Search.Enabled {
		opts = append(opts, pipeline.WithWebSearch(duckduckgo.New(&duckduckgo.Config{
			Endpoint:          cfg.Search.Endpoint,
			Region:            cfg.Search.Region,
			Timeout:           cfg.Search.Timeout,
			RequestsPerSecond: cfg.Search.RequestsPerSecond,
		})))
	}
	if cfg.Oracle.Enabled {
		opts = append(opts, pipeline.WithOracle(judge.New(buildLLM(cfg.OracleLLM()))))
	}
	a.pipeline = pipeline.New(embedder, llm, opts...)

	a.indexer = ingest.New(index, embedder,
		ingest.WithNormalizer(normalizer),
		ingest.WithRegistry(a.registry),
		ingest.WithBatchSize(cfg.Ingest.BatchSize),
		ingest.WithChunker(chunking.New(
			chunking.WithMaxSegments(cfg.Ingest.MaxSegments),
			chunking.WithMaxTokens(cfg.Ingest.MaxTokens),
			chunking.WithTokenizer(tok),
		)),
	)

	a.logger.Info("initialised",
		"llm", cfg.LLM.Provider,
		"vector", cfg.Vector.Backend,
		"cache", cfg.Cache.Backend,
		"courses", cfg.Courses.Backend,
		"web_search", cfg.Search.Enabled,
		"oracle", cfg.Oracle.Enabled,
	)
	return a, nil
}

// Close releases backends in reverse order of creation.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildLLM(c config.LLMConfig) chatModel {
	switch c.Provider {
	case config.ProviderClaude:
		pc := claude.DefaultConfig(c.APIKey)
		if c.Model != "" {
			pc.Model = c.Model
		}
		if c.BaseURL != "" {
			pc.BaseURL = c.BaseURL
		}
		pc.MaxTokens = int64(c.MaxTokens)
		pc.Temperature = c.Temperature
		return claude.New(pc)
	case config.ProviderGemini:
		pc := gemini.DefaultConfig(c.APIKey)
		if c.Model != "" {
			pc.Model = c.Model
		}
		pc.MaxTokens = int32(c.MaxTokens)
		pc.Temperature = float32(c.Temperature)
		return gemini.New(pc)
	default:
		pc := openai.DefaultConfig().WithAPIKey(c.APIKey).WithBaseURL(c.BaseURL)
		if c.Provider == config.ProviderGroq {
			if pc.BaseURL == "" {
				pc.BaseURL = openai.GroqBaseURL
			}
			pc.Model = groqDefaultModel
		}
		if c.Model != "" {
			pc.Model = c.Model
		}
		pc.MaxTokens = int64(c.MaxTokens)
		pc.Temperature = c.Temperature
		return openai.New(pc)
	}
}

func (a *app) buildEmbedder(cfg *config.Config) (vector.Embedder, error) {
	base := embedopenai.New(cfg.Embedder.APIKey, cfg.Embedder.BaseURL,
		openaisdk.EmbeddingModel(cfg.Embedder.Model), cfg.Embedder.Dimension)

	switch cfg.Cache.Backend {
	case config.CacheLRU:
		store, err := cache.NewLRU(cfg.Cache.Size)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		return cache.New(base, store, cache.WithNamespace(cfg.Embedder.Model)), nil
	case config.CacheRedis:
		store := cache.NewRedis(&cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.Cache.TTL,
		})
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return cache.New(base, store, cache.WithNamespace(cfg.Embedder.Model)), nil
	default:
		return base, nil
	}
}

func (a *app) buildIndex(ctx context.Context, cfg *config.Config) (vector.Index, error) {
	switch cfg.Vector.Backend {
	case config.VectorChroma:
		idx, err := chroma.New(chroma.Config{URL: cfg.Vector.ChromaURL})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return idx.Close() })
		return idx, nil
	case config.VectorPGVector:
		pcfg := pg.DefaultConfig()
		pcfg.DSN = cfg.Vector.DSN
		pcfg.TableName = cfg.Vector.Table
		pcfg.Dimension = cfg.Embedder.Dimension
		idx, err := pg.New(ctx, pcfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return idx.Close() })
		return idx, nil
	default:
		return inmemory.New(), nil
	}
}

func (a *app) buildRegistry(ctx context.Context, cfg *config.Config) (course.Registry, error) {
	if cfg.Courses.Backend != config.CoursesMongo {
		return course.NewMemoryRegistry(), nil
	}
	reg, err := mongo.New(ctx, &mongo.Config{
		URI:        cfg.Courses.MongoURI,
		Database:   cfg.Courses.Database,
		Collection: cfg.Courses.Collection,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, reg.Close)
	return reg, nil
}

func buildTokenizer(c config.IngestConfig) (tokenizer.Tokenizer, error) {
	if c.Tokenizer != config.TokenizerTiktoken {
		return tokenizer.WordTokenizer{}, nil
	}
	tok, err := tiktoken.New(c.Encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	return tok, nil
}

func buildNormalizer(c config.IngestConfig) *preprocess.Normalizer {
	var opts []preprocess.NormalizerOption
	if c.Lowercase {
		opts = append(opts, preprocess.WithLowercase())
	}
	if c.Stopwords {
		opts = append(opts, preprocess.WithStopwords())
	}
	return preprocess.NewNormalizer(opts...)
}

// Package config loads process configuration: defaults, then an optional
// YAML file, then a .env file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend and provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"

	VectorMemory   = "memory"
	VectorChroma   = "chroma"
	VectorPGVector = "pgvector"

	CacheNone  = "none"
	CacheLRU   = "lru"
	CacheRedis = "redis"

	CoursesMemory = "memory"
	CoursesMongo  = "mongo"

	TokenizerWord     = "word"
	TokenizerTiktoken = "tiktoken"
)

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Vector    VectorConfig    `yaml:"vector"`
	Search    SearchConfig    `yaml:"search"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Cache     CacheConfig     `yaml:"cache"`
	Courses   CoursesConfig   `yaml:"courses"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// LLMConfig selects the answer model. An empty Model uses the provider
// default.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// EmbedderConfig configures the OpenAI-compatible embedding endpoint.
type EmbedderConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// VectorConfig selects the vector index.
type VectorConfig struct {
	Backend   string `yaml:"backend"`
	ChromaURL string `yaml:"chroma_url"`
	DSN       string `yaml:"dsn"`
	Table     string `yaml:"table"`
}

// SearchConfig configures web search.
type SearchConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Endpoint          string        `yaml:"endpoint"`
	Region            string        `yaml:"region"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// OracleConfig configures the faithfulness judge. Empty fields fall back to
// the LLM section.
type OracleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

// CacheConfig configures the embedding cache.
type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	Size          int           `yaml:"size"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// CoursesConfig selects the course registry.
type CoursesConfig struct {
	Backend    string `yaml:"backend"`
	MongoURI   string `yaml:"mongo_uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// IngestConfig controls chunking and text normalisation. The normaliser
// settings apply to queries too.
type IngestConfig struct {
	MaxSegments int    `yaml:"max_segments"`
	MaxTokens   int    `yaml:"max_tokens"`
	Tokenizer   string `yaml:"tokenizer"`
	Encoding    string `yaml:"encoding"`
	Lowercase   bool   `yaml:"lowercase"`
	Stopwords   bool   `yaml:"stopwords"`
	BatchSize   int    `yaml:"batch_size"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Disable     bool    `yaml:"disable"`
	Endpoint    string  `yaml:"endpoint"`
	Environment string  `yaml:"environment"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns a configuration that runs fully in memory against
// OpenAI.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			MaxUploadBytes:  32 << 20,
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Embedder: EmbedderConfig{
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
		Vector: VectorConfig{
			Backend: VectorMemory,
			Table:   "lecture_chunks",
		},
		Search: SearchConfig{
			Timeout:           10 * time.Second,
			RequestsPerSecond: 1,
		},
		Cache: CacheConfig{
			Backend: CacheLRU,
			Size:    4096,
			TTL:     7 * 24 * time.Hour,
		},
		Courses: CoursesConfig{
			Backend:    CoursesMemory,
			Database:   "sensei",
			Collection: "courses",
		},
		Ingest: IngestConfig{
			MaxSegments: 3,
			MaxTokens:   512,
			Tokenizer:   TokenizerWord,
			Encoding:    "cl100k_base",
			BatchSize:   64,
		},
		Telemetry: TelemetryConfig{
			SampleRatio: 1,
		},
	}
}

// Load builds the configuration. path may be empty; a missing .env file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// loadDotEnv never overrides variables already set in the environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("SENSEI_ADDR", c.Server.Addr)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SENSEI_ADDR") == "" {
		c.Server.Addr = ":" + port
	}
	c.Server.ReadTimeout = getEnvDuration("SENSEI_READ_TIMEOUT", c.Server.ReadTimeout)
	if origins := os.Getenv("SENSEI_CORS_ORIGINS"); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}

	c.LLM.Provider = strings.ToLower(getEnv("SENSEI_LLM_PROVIDER", c.LLM.Provider))
	c.LLM.Model = getEnv("SENSEI_LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = getEnv("SENSEI_LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.MaxTokens = getEnvInt("SENSEI_LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Temperature = getEnvFloat("SENSEI_LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.APIKey = getEnv("SENSEI_LLM_API_KEY", c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = providerKey(c.LLM.Provider)
	}

	c.Embedder.Model = getEnv("SENSEI_EMBEDDER_MODEL", c.Embedder.Model)
	c.Embedder.BaseURL = getEnv("SENSEI_EMBEDDER_BASE_URL", c.Embedder.BaseURL)
	c.Embedder.Dimension = getEnvInt("SENSEI_EMBEDDING_DIM", c.Embedder.Dimension)
	c.Embedder.APIKey = getEnv("SENSEI_EMBEDDER_API_KEY", c.Embedder.APIKey)
	if c.Embedder.APIKey == "" {
		c.Embedder.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	c.Vector.Backend = strings.ToLower(getEnv("SENSEI_VECTOR_BACKEND", c.Vector.Backend))
	c.Vector.ChromaURL = getEnv("CHROMA_URL", c.Vector.ChromaURL)
	c.Vector.DSN = getEnv("SENSEI_PG_DSN", c.Vector.DSN)

	c.Search.Enabled = getEnvBool("SENSEI_SEARCH_ENABLED", c.Search.Enabled)
	c.Search.Region = getEnv("SENSEI_SEARCH_REGION", c.Search.Region)

	c.Oracle.Enabled = getEnvBool("SENSEI_ORACLE_ENABLED", c.Oracle.Enabled)
	c.Oracle.Provider = strings.ToLower(getEnv("SENSEI_ORACLE_PROVIDER", c.Oracle.Provider))
	c.Oracle.Model = getEnv("SENSEI_ORACLE_MODEL", c.Oracle.Model)
	c.Oracle.APIKey = getEnv("SENSEI_ORACLE_API_KEY", c.Oracle.APIKey)

	c.Cache.Backend = strings.ToLower(getEnv("SENSEI_CACHE_BACKEND", c.Cache.Backend))
	c.Cache.RedisAddr = getEnv("REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.RedisPassword = getEnv("REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.TTL = getEnvDuration("SENSEI_CACHE_TTL", c.Cache.TTL)

	c.Courses.Backend = strings.ToLower(getEnv("SENSEI_COURSES_BACKEND", c.Courses.Backend))
	c.Courses.MongoURI = getEnv("MONGO_URI", c.Courses.MongoURI)

	c.Ingest.Tokenizer = strings.ToLower(getEnv("SENSEI_TOKENIZER", c.Ingest.Tokenizer))
	c.Ingest.Lowercase = getEnvBool("SENSEI_NORMALIZE_LOWERCASE", c.Ingest.Lowercase)
	c.Ingest.Stopwords = getEnvBool("SENSEI_NORMALIZE_STOPWORDS", c.Ingest.Stopwords)

	c.Telemetry.Disable = getEnvBool("SENSEI_TELEMETRY_DISABLE", c.Telemetry.Disable)
	c.Telemetry.Environment = getEnv("SENSEI_ENV", c.Telemetry.Environment)
}

// OracleLLM returns the LLM settings used by the judge, filling gaps from
// the answer model.
func (c *Config) OracleLLM() LLMConfig {
	out := c.LLM
	if c.Oracle.Provider != "" && c.Oracle.Provider != c.LLM.Provider {
		out.Provider = c.Oracle.Provider
		out.APIKey = providerKey(c.Oracle.Provider)
		out.BaseURL = ""
		out.Model = ""
	}
	if c.Oracle.APIKey != "" {
		out.APIKey = c.Oracle.APIKey
	}
	if c.Oracle.BaseURL != "" {
		out.BaseURL = c.Oracle.BaseURL
	}
	if c.Oracle.Model != "" {
		out.Model = c.Oracle.Model
	}
	out.Temperature = 0
	return out
}

// Validate checks the configuration as a whole.
func (c *Config) Validate() error {
	v := NewValidator()
	providers := []string{ProviderOpenAI, ProviderGroq, ProviderClaude, ProviderGemini}

	srv := v.Section("server")
	srv.RequireNonEmpty("addr", c.Server.Addr)
	if _, port, err := net.SplitHostPort(c.Server.Addr); err != nil {
		srv.add("addr", err.Error())
	} else if p, err := strconv.Atoi(port); err != nil {
		srv.add("addr", fmt.Sprintf("invalid port %q", port))
	} else {
		srv.ValidatePort("addr", p)
	}

	v.Section("llm").
		ValidateOneOf("provider", c.LLM.Provider, providers...).
		RequirePositive("max_tokens", c.LLM.MaxTokens).
		ValidateFloatRange("temperature", c.LLM.Temperature, 0, 2)

	v.Section("embedder").
		RequireNonEmpty("model", c.Embedder.Model).
		ValidateRange("dimension", c.Embedder.Dimension, 1, 65535)

	pgvector := c.Vector.Backend == VectorPGVector
	v.Section("vector").
		ValidateOneOf("backend", c.Vector.Backend, VectorMemory, VectorChroma, VectorPGVector).
		RequireNonEmptyIf(pgvector, "dsn", c.Vector.DSN).
		RequireNonEmptyIf(pgvector, "table", c.Vector.Table)

	if c.Oracle.Enabled && c.Oracle.Provider != "" {
		v.Section("oracle").ValidateOneOf("provider", c.Oracle.Provider, providers...)
	}

	cache := v.Section("cache")
	cache.ValidateOneOf("backend", c.Cache.Backend, CacheNone, CacheLRU, CacheRedis)
	switch c.Cache.Backend {
	case CacheLRU:
		cache.RequirePositive("size", c.Cache.Size)
	case CacheRedis:
		cache.RequireNonEmpty("redis_addr", c.Cache.RedisAddr).
			ValidateDBNumber("redis_db", c.Cache.RedisDB)
	}

	v.Section("courses").
		ValidateOneOf("backend", c.Courses.Backend, CoursesMemory, CoursesMongo).
		RequireNonEmptyIf(c.Courses.Backend == CoursesMongo, "mongo_uri", c.Courses.MongoURI)

	v.Section("ingest").
		RequirePositive("max_segments", c.Ingest.MaxSegments).
		RequirePositive("max_tokens", c.Ingest.MaxTokens).
		RequirePositive("batch_size", c.Ingest.BatchSize).
		ValidateOneOf("tokenizer", c.Ingest.Tokenizer, TokenizerWord, TokenizerTiktoken)

	v.Section("telemetry").ValidateFloatRange("sample_ratio", c.Telemetry.SampleRatio, 0, 1)

	return v.Error()
}

func providerKey(provider string) string {
	switch provider {
	case ProviderClaude:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	case ProviderGroq:
		return os.Getenv("GROQ_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

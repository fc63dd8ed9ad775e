package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sensei.yaml")
	body := `
server:
  addr: ":9090"
  read_timeout: 5s
llm:
  provider: claude
  model: claude-sonnet-4-5
vector:
  backend: chroma
ingest:
  max_segments: 4
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SENSEI_ADDR", "")
	t.Setenv("PORT", "")
	t.Setenv("SENSEI_LLM_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")
	t.Setenv("CHROMA_URL", "http://chroma:8000")
	t.Setenv("SENSEI_NORMALIZE_LOWERCASE", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("read timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.LLM.Provider != ProviderClaude || cfg.LLM.APIKey != "anthropic-key" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Vector.Backend != VectorChroma || cfg.Vector.ChromaURL != "http://chroma:8000" {
		t.Errorf("vector = %+v", cfg.Vector)
	}
	if cfg.Ingest.MaxSegments != 4 || !cfg.Ingest.Lowercase {
		t.Errorf("ingest = %+v", cfg.Ingest)
	}
	// untouched sections keep defaults
	if cfg.Embedder.Dimension != 1536 {
		t.Errorf("embedder dimension = %d", cfg.Embedder.Dimension)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server:\n  adr: \":1\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestPortOverride(t *testing.T) {
	t.Setenv("SENSEI_ADDR", "")
	t.Setenv("PORT", "7000")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
}

func TestValidateBackends(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "llama" }, field: "llm.provider"},
		{name: "pgvector needs dsn", mutate: func(c *Config) { c.Vector.Backend = VectorPGVector }, field: "vector.dsn"},
		{name: "redis needs addr", mutate: func(c *Config) { c.Cache.Backend = CacheRedis }, field: "cache.redis_addr"},
		{name: "mongo needs uri", mutate: func(c *Config) { c.Courses.Backend = CoursesMongo }, field: "courses.mongo_uri"},
		{name: "bad tokenizer", mutate: func(c *Config) { c.Ingest.Tokenizer = "bpe" }, field: "ingest.tokenizer"},
		{name: "bad addr", mutate: func(c *Config) { c.Server.Addr = "localhost" }, field: "server.addr"},
		{name: "temperature", mutate: func(c *Config) { c.LLM.Temperature = 3 }, field: "llm.temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestOracleLLM(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gem")
	cfg := Default()
	cfg.LLM.APIKey = "oa"
	cfg.LLM.Model = "gpt-4o"
	cfg.LLM.Temperature = 0.7

	same := cfg.OracleLLM()
	if same.APIKey != "oa" || same.Model != "gpt-4o" || same.Temperature != 0 {
		t.Fatalf("same-provider oracle = %+v", same)
	}

	cfg.Oracle.Provider = ProviderGemini
	other := cfg.OracleLLM()
	if other.Provider != ProviderGemini || other.APIKey != "gem" || other.Model != "" {
		t.Fatalf("cross-provider oracle = %+v", other)
	}
}

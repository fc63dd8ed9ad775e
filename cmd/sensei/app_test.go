package main

import (
	"context"
	"testing"

	"github.com/sweetpotato0/sensei/config"
	"github.com/sweetpotato0/sensei/contrib/provider/claude"
	"github.com/sweetpotato0/sensei/contrib/provider/gemini"
	"github.com/sweetpotato0/sensei/contrib/provider/openai"
	"github.com/sweetpotato0/sensei/contrib/vector/inmemory"
	"github.com/sweetpotato0/sensei/course"
	"github.com/sweetpotato0/sensei/rag/tokenizer"
)

func TestBuildLLM(t *testing.T) {
	tests := []struct {
		provider string
		check    func(chatModel) bool
	}{
		{provider: config.ProviderOpenAI, check: func(m chatModel) bool { _, ok := m.(*openai.Provider); return ok }},
		{provider: config.ProviderGroq, check: func(m chatModel) bool { _, ok := m.(*openai.Provider); return ok }},
		{provider: config.ProviderClaude, check: func(m chatModel) bool { _, ok := m.(*claude.Provider); return ok }},
		{provider: config.ProviderGemini, check: func(m chatModel) bool { _, ok := m.(*gemini.Provider); return ok }},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c := config.Default().LLM
			c.Provider = tt.provider
			c.APIKey = "key"
			if m := buildLLM(c); !tt.check(m) {
				t.Fatalf("unexpected provider type %T", m)
			}
		})
	}
}

func TestNewAppInMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Disable = true
	cfg.Embedder.APIKey = "test"
	cfg.LLM.APIKey = "test"
	cfg.Oracle.Enabled = true
	cfg.Search.Enabled = true

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close(context.Background())

	if a.pipeline == nil || a.indexer == nil {
		t.Fatal("pipeline and indexer must be wired")
	}
	if _, ok := a.registry.(*course.MemoryRegistry); !ok {
		t.Fatalf("registry = %T", a.registry)
	}

	idx, err := a.buildIndex(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildIndex: %v", err)
	}
	if _, ok := idx.(*inmemory.Index); !ok {
		t.Fatalf("index = %T", idx)
	}
}

func TestBuildTokenizerDefault(t *testing.T) {
	tok, err := buildTokenizer(config.Default().Ingest)
	if err != nil {
		t.Fatalf("buildTokenizer: %v", err)
	}
	if _, ok := tok.(tokenizer.WordTokenizer); !ok {
		t.Fatalf("tokenizer = %T", tok)
	}
}

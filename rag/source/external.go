package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/pkg/logging"
	"github.com/sweetpotato0/sensei/rag/preprocess"
	"github.com/sweetpotato0/sensei/vector"
)

// SearchResult is one web-search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// WebSearch is a live search provider.
type WebSearch interface {
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)
}

// External fetches web snippets and embeds them in the same space as the
// internal index.
type External struct {
	search     WebSearch
	embedder   vector.Embedder
	clean      func(string) string
	normalizer *preprocess.Normalizer
	logger     *slog.Logger
}

// ExternalOption customises the external adapter.
type ExternalOption func(*External)

// WithSnippetCleaner replaces the default snippet normaliser.
func WithSnippetCleaner(fn func(string) string) ExternalOption {
	return func(s *External) {
		if fn != nil {
			s.clean = fn
		}
	}
}

// WithExternalNormalizer sets the normaliser applied to snippets before they
// are embedded, so they land in the same space as the query.
func WithExternalNormalizer(n *preprocess.Normalizer) ExternalOption {
	return func(s *External) {
		s.normalizer = n
	}
}

// WithExternalLogger overrides the component logger.
func WithExternalLogger(l *slog.Logger) ExternalOption {
	return func(s *External) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewExternal wires a search provider with the shared embedder.
func NewExternal(search WebSearch, embedder vector.Embedder, opts ...ExternalOption) *External {
	s := &External{
		search:   search,
		embedder: embedder,
		clean:    preprocess.CleanSnippet,
		logger:   logging.WithComponent("source.external"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch searches for query and returns up to k embedded snippets. Search
// failures yield an empty pool and a Warning; embedding failures drop the
// affected snippet only.
func (s *External) Fetch(ctx context.Context, query string, k int) Fetched {
	if s == nil || s.search == nil || s.embedder == nil {
		return Fetched{Warning: fmt.Errorf("external source: %w: not configured", serrors.ErrSourceUnavailable)}
	}
	if k <= 0 {
		return Fetched{}
	}

	results, err := s.search.Search(ctx, query, k)
	if err != nil {
		s.logger.Warn("web search failed", "error", err)
		return Fetched{Warning: fmt.Errorf("external source: %w: %w", serrors.ErrSourceUnavailable, err)}
	}
	if len(results) > k {
		results = results[:k]
	}

	out := Fetched{}
	texts := make([]string, 0, len(results))
	kept := make([]SearchResult, 0, len(results))
	for _, res := range results {
		text := strings.TrimSpace(s.clean(res.Snippet))
		if text == "" {
			out.Dropped++
			continue
		}
		texts = append(texts, text)
		kept = append(kept, res)
	}
	if len(texts) == 0 {
		return out
	}

	inputs := make([]string, len(texts))
	for i, text := range texts {
		inputs[i] = embedText(s.normalizer, text)
	}
	vectors := s.embedAll(ctx, inputs)
	dim := s.embedder.Dimension()
	if dim <= 0 {
		dim = firstValidLen(vectors)
	}

	out.Pool = make(Pool, 0, len(texts))
	for i, text := range texts {
		if !vector.Valid(vectors[i], dim) {
			out.Dropped++
			continue
		}
		out.Pool = append(out.Pool, Context{
			Text: text,
			Metadata: map[string]any{
				MetaTitle: kept[i].Title,
				MetaLink:  kept[i].Link,
			},
			Embedding: vectors[i],
			Origin:    OriginExternal,
		})
	}
	if out.Dropped > 0 {
		s.logger.Warn("dropped snippets", "dropped", out.Dropped)
	}
	return out
}

// embedAll embeds in one batch and falls back to per-text calls when the
// batch fails, so a single bad snippet does not cost the whole pool.
func (s *External) embedAll(ctx context.Context, texts []string) [][]float32 {
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) == len(texts) {
		return vectors
	}
	if err != nil {
		s.logger.Warn("batch embedding failed, embedding snippets one by one", "error", err)
	}

	vectors = make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			s.logger.Warn("snippet embedding failed", "error", fmt.Errorf("%w: %w", serrors.ErrEmbeddingFailure, err))
			continue
		}
		vectors[i] = vec
	}
	return vectors
}

func firstValidLen(vectors [][]float32) int {
	for _, v := range vectors {
		if vector.Valid(v, 0) {
			return len(v)
		}
	}
	return 0
}

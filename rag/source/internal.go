package source

import (
	"context"
	"fmt"
	"log/slog"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/pkg/logging"
	"github.com/sweetpotato0/sensei/rag/preprocess"
	"github.com/sweetpotato0/sensei/vector"
)

// Internal fetches contexts from the course vector index.
type Internal struct {
	index      vector.Index
	reembed    vector.Embedder
	normalizer *preprocess.Normalizer
	logger     *slog.Logger
}

// InternalOption customises the internal adapter.
type InternalOption func(*Internal)

// WithReembedder recovers hits that come back without a stored vector by
// embedding their text.
func WithReembedder(e vector.Embedder) InternalOption {
	return func(s *Internal) {
		s.reembed = e
	}
}

// WithInternalNormalizer sets the normaliser applied to hit text before it
// is re-embedded. It must match the one used at ingestion.
func WithInternalNormalizer(n *preprocess.Normalizer) InternalOption {
	return func(s *Internal) {
		s.normalizer = n
	}
}

// WithInternalLogger overrides the component logger.
func WithInternalLogger(l *slog.Logger) InternalOption {
	return func(s *Internal) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewInternal wraps a vector index.
func NewInternal(index vector.Index, opts ...InternalOption) *Internal {
	s := &Internal{
		index:  index,
		logger: logging.WithComponent("source.internal"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch queries collection with the precomputed query embedding. Index
// failures are reported as a Warning with an empty pool.
func (s *Internal) Fetch(ctx context.Context, collection string, queryEmbedding []float32, k int) Fetched {
	if s == nil || s.index == nil {
		return Fetched{Warning: fmt.Errorf("internal source: %w: no index configured", serrors.ErrSourceUnavailable)}
	}
	if k <= 0 {
		return Fetched{}
	}

	hits, err := s.index.Query(ctx, collection, queryEmbedding, k)
	if err != nil {
		s.logger.Warn("vector index query failed", "collection", collection, "error", err)
		return Fetched{Warning: fmt.Errorf("internal source %q: %w: %w", collection, serrors.ErrSourceUnavailable, err)}
	}
	if len(hits) > k {
		hits = hits[:k]
	}

	dim := len(queryEmbedding)
	out := Fetched{Pool: make(Pool, 0, len(hits))}
	for _, hit := range hits {
		if hit.Text == "" {
			out.Dropped++
			continue
		}
		vec := hit.Vector
		if !vector.Valid(vec, dim) && s.reembed != nil {
			vec, err = s.reembed.Embed(ctx, embedText(s.normalizer, hit.Text))
			if err != nil {
				s.logger.Warn("re-embed hit failed", "id", hit.ID, "error", err)
			}
		}
		if !vector.Valid(vec, dim) {
			out.Dropped++
			continue
		}
		meta := make(map[string]any, len(hit.Metadata)+1)
		for key, val := range hit.Metadata {
			meta[key] = val
		}
		if hit.ID != "" {
			meta[MetaID] = hit.ID
		}
		out.Pool = append(out.Pool, Context{
			Text:      hit.Text,
			Metadata:  meta,
			Embedding: vector.Clone(vec),
			Origin:    OriginInternal,
		})
	}
	if out.Dropped > 0 {
		s.logger.Warn("dropped hits without usable embedding", "collection", collection, "dropped", out.Dropped)
	}
	s.logger.Debug("internal fetch", "collection", collection, "requested", k, "returned", len(out.Pool))
	return out
}

// embedText is the form of text handed to the embedder; displayed text is
// never normalised.
func embedText(n *preprocess.Normalizer, text string) string {
	if n == nil {
		return text
	}
	return n.Normalize(text)
}

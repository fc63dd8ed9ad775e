// Package cache memoises embeddings so repeated questions and re-ingested
// chunks do not hit the embedding provider again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/sensei/pkg/logging"
	"github.com/sweetpotato0/sensei/vector"
)

// Store is a key/value backend for vectors.
type Store interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// Embedder wraps another embedder with a cache. Store failures are logged
// and treated as misses.
type Embedder struct {
	base      vector.Embedder
	store     Store
	namespace string
	logger    *slog.Logger
}

var _ vector.Embedder = (*Embedder)(nil)

// Option customises an Embedder.
type Option func(*Embedder)

// WithNamespace separates keys of different models sharing one store.
func WithNamespace(ns string) Option {
	return func(e *Embedder) {
		e.namespace = ns
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Embedder) {
		if l != nil {
			e.logger = l
		}
	}
}

// New wraps base with store.
func New(base vector.Embedder, store Store, opts ...Option) *Embedder {
	e := &Embedder{
		base:   base,
		store:  store,
		logger: logging.WithComponent("embedder_cache"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension implements vector.Embedder.
func (e *Embedder) Dimension() int {
	return e.base.Dimension()
}

// Embed implements vector.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if vec, ok := e.lookup(ctx, key); ok {
		return vec, nil
	}
	vec, err := e.base.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.save(ctx, key, vec)
	return vec, nil
}

// EmbedBatch implements vector.Embedder. Only misses are sent to the
// wrapped embedder, in a single batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, text := range texts {
		if vec, ok := e.lookup(ctx, e.key(text)); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.base.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(missTexts), len(vecs))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		e.save(ctx, e.key(missTexts[j]), vecs[j])
	}
	return out, nil
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	if e.namespace == "" {
		return hex.EncodeToString(sum[:])
	}
	return e.namespace + ":" + hex.EncodeToString(sum[:])
}

func (e *Embedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	vec, ok, err := e.store.Get(ctx, key)
	if err != nil {
		e.logger.Warn("embedding cache read failed", "error", err)
		return nil, false
	}
	if !ok || !vector.Valid(vec, e.base.Dimension()) {
		return nil, false
	}
	return vector.Clone(vec), true
}

func (e *Embedder) save(ctx context.Context, key string, vec []float32) {
	if !vector.Valid(vec, e.base.Dimension()) {
		return
	}
	if err := e.store.Set(ctx, key, vector.Clone(vec)); err != nil {
		e.logger.Warn("embedding cache write failed", "error", err)
	}
}

package inmemory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/vector"
)

// Index implements vector.Index in process memory, one map per collection.
type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	order      []string
	embeddings map[string]*vector.Embedding
}

var _ vector.Index = (*Index)(nil)

// New creates an empty in-memory index.
func New() *Index {
	return &Index{collections: make(map[string]*collection)}
}

// Upsert implements vector.Index.
func (s *Index) Upsert(ctx context.Context, name string, embedding *vector.Embedding) error {
	if embedding == nil {
		return fmt.Errorf("embedding cannot be nil")
	}
	if embedding.ID == "" {
		return fmt.Errorf("embedding ID cannot be empty")
	}
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("embedding vector cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		c = &collection{embeddings: make(map[string]*vector.Embedding)}
		s.collections[name] = c
	}
	if existing, ok := c.embeddings[embedding.ID]; ok && len(existing.Vector) != len(embedding.Vector) {
		return fmt.Errorf("embedding %s: dimension changed from %d to %d", embedding.ID, len(existing.Vector), len(embedding.Vector))
	}
	if _, ok := c.embeddings[embedding.ID]; !ok {
		c.order = append(c.order, embedding.ID)
	}
	c.embeddings[embedding.ID] = &vector.Embedding{
		ID:       embedding.ID,
		Text:     embedding.Text,
		Vector:   vector.Clone(embedding.Vector),
		Metadata: maps.Clone(embedding.Metadata),
	}
	return nil
}

// Query implements vector.Index. Results are ordered by cosine similarity;
// equal scores keep insertion order.
func (s *Index) Query(ctx context.Context, name string, query []float32, k int) ([]vector.Hit, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, serrors.ErrNotFound)
	}
	if k <= 0 {
		k = 10
	}

	type result struct {
		embedding  *vector.Embedding
		similarity float64
	}
	results := make([]result, 0, len(c.order))
	for _, id := range c.order {
		emb := c.embeddings[id]
		if len(emb.Vector) != len(query) {
			continue
		}
		results = append(results, result{
			embedding:  emb,
			similarity: vector.CosineSimilarity(query, emb.Vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].similarity > results[j].similarity
	})
	if len(results) > k {
		results = results[:k]
	}

	hits := make([]vector.Hit, len(results))
	for i, r := range results {
		hits[i] = vector.Hit{
			ID:       r.embedding.ID,
			Text:     r.embedding.Text,
			Metadata: maps.Clone(r.embedding.Metadata),
			Vector:   vector.Clone(r.embedding.Vector),
			Distance: 1 - r.similarity,
		}
	}
	return hits, nil
}

// Collections implements vector.Index.
func (s *Index) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Count returns the number of embeddings in a collection.
func (s *Index) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return len(c.embeddings)
	}
	return 0
}

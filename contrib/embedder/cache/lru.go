package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUStore keeps the most recently used vectors in process memory.
type LRUStore struct {
	cache *lru.Cache[string, []float32]
}

// NewLRU creates a store holding at most size vectors.
func NewLRU(size int) (*LRUStore, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &LRUStore{cache: c}, nil
}

// Get implements Store.
func (s *LRUStore) Get(_ context.Context, key string) ([]float32, bool, error) {
	vec, ok := s.cache.Get(key)
	return vec, ok, nil
}

// Set implements Store.
func (s *LRUStore) Set(_ context.Context, key string, vec []float32) error {
	s.cache.Add(key, vec)
	return nil
}

// Len returns the number of cached vectors.
func (s *LRUStore) Len() int {
	return s.cache.Len()
}

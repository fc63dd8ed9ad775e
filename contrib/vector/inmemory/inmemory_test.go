package inmemory

import (
	"context"
	"errors"
	"testing"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/vector"
)

func TestIndex(t *testing.T) {
	index := New()
	ctx := context.Background()

	t.Run("upsert and query", func(t *testing.T) {
		embeddings := []*vector.Embedding{
			{ID: "emb1", Text: "apple", Vector: []float32{1.0, 0.0, 0.0}, Metadata: map[string]any{"video_id": "a"}},
			{ID: "emb2", Text: "banana", Vector: []float32{0.0, 1.0, 0.0}},
			{ID: "emb3", Text: "orange", Vector: []float32{0.0, 0.0, 1.0}},
		}
		for _, emb := range embeddings {
			if err := index.Upsert(ctx, "fruit", emb); err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}
		}

		hits, err := index.Query(ctx, "fruit", []float32{1.0, 0.0, 0.0}, 2)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(hits) != 2 {
			t.Fatalf("Expected 2 hits, got %d", len(hits))
		}
		if hits[0].ID != "emb1" || hits[0].Distance != 0 {
			t.Errorf("Expected emb1 at distance 0, got %s at %v", hits[0].ID, hits[0].Distance)
		}
		if hits[0].Metadata["video_id"] != "a" {
			t.Errorf("metadata not returned: %v", hits[0].Metadata)
		}
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		if err := index.Upsert(ctx, "fruit", &vector.Embedding{ID: "emb1", Text: "green apple", Vector: []float32{1, 0, 0}}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if index.Count("fruit") != 3 {
			t.Errorf("expected 3 embeddings, got %d", index.Count("fruit"))
		}
		hits, _ := index.Query(ctx, "fruit", []float32{1, 0, 0}, 1)
		if hits[0].Text != "green apple" {
			t.Errorf("expected replaced text, got %q", hits[0].Text)
		}
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := index.Query(ctx, "veg", []float32{1, 0, 0}, 1)
		if !errors.Is(err, serrors.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("returned hits are copies", func(t *testing.T) {
		hits, _ := index.Query(ctx, "fruit", []float32{1, 0, 0}, 1)
		hits[0].Vector[0] = 42
		again, _ := index.Query(ctx, "fruit", []float32{1, 0, 0}, 1)
		if again[0].Vector[0] != 1 {
			t.Errorf("index state leaked through hit")
		}
	})

	t.Run("collections", func(t *testing.T) {
		_ = index.Upsert(ctx, "animals", &vector.Embedding{ID: "x", Text: "cat", Vector: []float32{1}})
		names, _ := index.Collections(ctx)
		if len(names) != 2 || names[0] != "animals" || names[1] != "fruit" {
			t.Errorf("unexpected collections %v", names)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		if err := index.Upsert(ctx, "fruit", nil); err == nil {
			t.Errorf("expected error for nil embedding")
		}
		if err := index.Upsert(ctx, "fruit", &vector.Embedding{ID: "emb2", Vector: []float32{1}}); err == nil {
			t.Errorf("expected error for dimension change")
		}
		if _, err := index.Query(ctx, "fruit", nil, 1); err == nil {
			t.Errorf("expected error for empty query")
		}
	})
}

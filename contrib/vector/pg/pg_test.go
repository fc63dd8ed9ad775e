package pg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/vector"
)

func TestVectorText(t *testing.T) {
	in := []float32{0.5, -1, 3.25e-5}
	str := vectorToString(in)
	if str != "[0.5,-1,3.25e-05]" {
		t.Errorf("unexpected encoding %s", str)
	}
	out, err := stringToVector(str)
	if err != nil {
		t.Fatalf("stringToVector failed: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("component %d: got %v want %v", i, out[i], in[i])
		}
	}
	if _, err := stringToVector("[1,abc]"); err == nil {
		t.Error("expected parse error")
	}
	if out, err := stringToVector("[]"); err != nil || len(out) != 0 {
		t.Errorf("expected empty vector, got %v %v", out, err)
	}
}

func TestIndexIntegration(t *testing.T) {
	dsn := os.Getenv("PGVECTOR_DSN")
	if dsn == "" {
		t.Skip("PGVECTOR_DSN not set")
	}
	ctx := context.Background()
	idx, err := New(ctx, &Config{DSN: dsn, Dimension: 3, TableName: "sensei_test_chunks"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer idx.Close()

	collection := fmt.Sprintf("test-%d", time.Now().UnixNano())
	defer idx.DeleteCollection(ctx, collection)

	if _, err := idx.Query(ctx, collection, []float32{1, 0, 0}, 1); !errors.Is(err, serrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for i, vec := range [][]float32{{1, 0, 0}, {0, 1, 0}} {
		err := idx.Upsert(ctx, collection, &vector.Embedding{
			ID:       fmt.Sprintf("v_%d", i),
			Text:     fmt.Sprintf("chunk %d", i),
			Vector:   vec,
			Metadata: map[string]any{"video_id": "v", "start": float64(i)},
		})
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	hits, err := idx.Query(ctx, collection, []float32{1, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "v_0" || hits[0].Metadata["video_id"] != "v" {
		t.Errorf("unexpected hits %+v", hits)
	}
}

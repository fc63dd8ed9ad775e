package chroma

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/pkg/logging"
	"github.com/sweetpotato0/sensei/rag/source"
	"github.com/sweetpotato0/sensei/vector"
)

func TestIsNotFound(t *testing.T) {
	if !isNotFound(errors.New("Collection ml-101 does not exist.")) {
		t.Error("expected does-not-exist to be not found")
	}
	if !isNotFound(errors.New("404 Not Found")) {
		t.Error("expected 404 to be not found")
	}
	if isNotFound(errors.New("connection refused")) {
		t.Error("connection errors are not not-found")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	idx := &Index{logger: logging.Logger()}
	meta := toMetadata(map[string]any{
		source.MetaVideoID: "vid42",
		source.MetaStart:   12.5,
		"ordinal":          3,
	})
	if meta == nil {
		t.Fatal("expected metadata")
	}
	out := idx.fromMetadata(meta)
	if out[source.MetaVideoID] != "vid42" {
		t.Errorf("video id lost: %v", out)
	}
	if source.Float(out[source.MetaStart]) != 12.5 {
		t.Errorf("start lost: %v", out)
	}
}

// Requires a running Chroma server, e.g. docker run -p 8000:8000 chromadb/chroma.
func TestIndexIntegration(t *testing.T) {
	url := os.Getenv("CHROMA_URL")
	if url == "" {
		t.Skip("CHROMA_URL not set")
	}
	idx, err := New(Config{URL: url})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer idx.Close()
	ctx := context.Background()
	name := fmt.Sprintf("sensei-test-%d", time.Now().UnixNano())

	if _, err := idx.Query(ctx, name, []float32{1, 0}, 1); !errors.Is(err, serrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing collection, got %v", err)
	}
	for i, vec := range [][]float32{{1, 0}, {0, 1}} {
		err := idx.Upsert(ctx, name, &vector.Embedding{
			ID:       fmt.Sprintf("v_%d", i),
			Text:     fmt.Sprintf("chunk %d", i),
			Vector:   vec,
			Metadata: map[string]any{source.MetaVideoID: "v", source.MetaStart: float64(i)},
		})
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	hits, err := idx.Query(ctx, name, []float32{1, 0.1}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "v_0" || len(hits[0].Vector) != 2 {
		t.Errorf("unexpected hits %+v", hits)
	}
}

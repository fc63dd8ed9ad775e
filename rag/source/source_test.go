package source

import (
	"context"
	"errors"
	"strings"
	"testing"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/rag/preprocess"
	"github.com/sweetpotato0/sensei/vector"
)

type stubIndex struct {
	hits []vector.Hit
	err  error
	k    int
}

func (s *stubIndex) Query(ctx context.Context, collection string, embedding []float32, k int) ([]vector.Hit, error) {
	s.k = k
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

func (s *stubIndex) Upsert(ctx context.Context, collection string, e *vector.Embedding) error {
	return nil
}

func (s *stubIndex) Collections(ctx context.Context) ([]string, error) {
	return nil, nil
}

// keywordEmbedder maps texts onto fixed axes so results are predictable.
type keywordEmbedder struct {
	fail     map[string]bool
	batchErr error
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.fail[text] {
		return nil, errors.New("embed failed")
	}
	vec := []float32{0, 0, 0}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "regression") {
		vec[0] = 1
	}
	if strings.Contains(lower, "price") {
		vec[1] = 1
	}
	vec[2] = 0.1
	return vec, nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.batchErr != nil {
		return nil, e.batchErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *keywordEmbedder) Dimension() int { return 3 }

// recordingEmbedder remembers every text it was asked to embed.
type recordingEmbedder struct {
	keywordEmbedder
	texts []string
}

func (e *recordingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.texts = append(e.texts, text)
	return e.keywordEmbedder.Embed(ctx, text)
}

func (e *recordingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.texts = append(e.texts, texts...)
	return e.keywordEmbedder.EmbedBatch(ctx, texts)
}

type stubSearch struct {
	results []SearchResult
	err     error
}

func (s *stubSearch) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	return s.results, s.err
}

func TestInternalFetchWrapsHits(t *testing.T) {
	index := &stubIndex{hits: []vector.Hit{
		{ID: "vid_0", Text: "a regression problem", Vector: []float32{1, 0, 0}, Metadata: map[string]any{MetaVideoID: "vid", MetaStart: 12.7}},
		{ID: "vid_1", Text: "wrong dimension", Vector: []float32{1, 0}},
		{ID: "vid_2", Text: "no vector"},
	}}
	got := NewInternal(index).Fetch(context.Background(), "ml", []float32{1, 1, 0}, 4)

	if got.Warning != nil {
		t.Fatalf("unexpected warning: %v", got.Warning)
	}
	if index.k != 4 {
		t.Fatalf("expected k=4 forwarded, got %d", index.k)
	}
	if len(got.Pool) != 1 || got.Dropped != 2 {
		t.Fatalf("expected 1 kept and 2 dropped, got %d/%d", len(got.Pool), got.Dropped)
	}
	ctx := got.Pool[0]
	if ctx.Origin != OriginInternal {
		t.Fatalf("expected internal origin, got %s", ctx.Origin)
	}
	if ctx.Metadata[MetaID] != "vid_0" {
		t.Fatalf("expected id in metadata, got %v", ctx.Metadata)
	}
	if link := Link(ctx); link != "https://www.youtube.com/watch?v=vid&t=12s" {
		t.Fatalf("unexpected link %q", link)
	}
}

func TestInternalFetchReembedsMissingVectors(t *testing.T) {
	index := &stubIndex{hits: []vector.Hit{{ID: "x", Text: "house price"}}}
	got := NewInternal(index, WithReembedder(&keywordEmbedder{})).Fetch(context.Background(), "ml", []float32{0, 1, 0}, 1)
	if len(got.Pool) != 1 {
		t.Fatalf("expected re-embedded hit to survive, got %+v", got)
	}
}

func TestInternalFetchTruncatesToK(t *testing.T) {
	index := &stubIndex{hits: []vector.Hit{
		{ID: "a", Text: "one", Vector: []float32{1, 0, 0}},
		{ID: "b", Text: "two", Vector: []float32{0, 1, 0}},
		{ID: "c", Text: "three", Vector: []float32{0, 0, 1}},
	}}
	got := NewInternal(index).Fetch(context.Background(), "ml", []float32{1, 0, 0}, 2)
	if len(got.Pool) != 2 {
		t.Fatalf("expected 2 contexts, got %d", len(got.Pool))
	}
	if got.Pool[0].Metadata[MetaID] != "a" || got.Pool[1].Metadata[MetaID] != "b" {
		t.Fatalf("expected the first two hits kept, got %+v", got.Pool)
	}
}

func TestInternalFetchNormalizesReembeddedText(t *testing.T) {
	index := &stubIndex{hits: []vector.Hit{{ID: "x", Text: "The House Price"}}}
	emb := &recordingEmbedder{}
	n := preprocess.NewNormalizer(preprocess.WithLowercase(), preprocess.WithStopwords())
	got := NewInternal(index, WithReembedder(emb), WithInternalNormalizer(n)).
		Fetch(context.Background(), "ml", []float32{0, 1, 0}, 1)

	if len(got.Pool) != 1 {
		t.Fatalf("expected re-embedded hit to survive, got %+v", got)
	}
	if len(emb.texts) != 1 || emb.texts[0] != "house price" {
		t.Fatalf("expected normalised text embedded, got %q", emb.texts)
	}
	if got.Pool[0].Text != "The House Price" {
		t.Fatalf("displayed text should stay raw, got %q", got.Pool[0].Text)
	}
}

func TestInternalFetchFailsSoft(t *testing.T) {
	index := &stubIndex{err: serrors.ErrNotFound}
	got := NewInternal(index).Fetch(context.Background(), "missing", []float32{1, 0, 0}, 5)
	if len(got.Pool) != 0 {
		t.Fatalf("expected empty pool, got %d", len(got.Pool))
	}
	if !errors.Is(got.Warning, serrors.ErrSourceUnavailable) || !errors.Is(got.Warning, serrors.ErrNotFound) {
		t.Fatalf("expected wrapped source-unavailable warning, got %v", got.Warning)
	}
}

func TestExternalFetchEmbedsSnippets(t *testing.T) {
	search := &stubSearch{results: []SearchResult{
		{Title: "Regression", Snippet: "Linear <b>regression</b> predicts price", Link: "https://example.com/a"},
		{Title: "Empty", Snippet: "   ", Link: "https://example.com/b"},
		{Title: "Bad", Snippet: "broken", Link: "https://example.com/c"},
	}}
	emb := &keywordEmbedder{fail: map[string]bool{"broken": true}}
	got := NewExternal(search, emb).Fetch(context.Background(), "house price", 3)

	if got.Warning != nil {
		t.Fatalf("unexpected warning: %v", got.Warning)
	}
	if len(got.Pool) != 1 || got.Dropped != 2 {
		t.Fatalf("expected 1 kept 2 dropped, got %d/%d", len(got.Pool), got.Dropped)
	}
	ctx := got.Pool[0]
	if ctx.Origin != OriginExternal {
		t.Fatalf("expected external origin")
	}
	if ctx.Text != "Linear regression predicts price" {
		t.Fatalf("expected cleaned snippet, got %q", ctx.Text)
	}
	if Link(ctx) != "https://example.com/a" {
		t.Fatalf("unexpected link %q", Link(ctx))
	}
}

func TestExternalFetchTruncatesToK(t *testing.T) {
	search := &stubSearch{results: []SearchResult{
		{Snippet: "one price"}, {Snippet: "two price"}, {Snippet: "three price"},
	}}
	got := NewExternal(search, &keywordEmbedder{}).Fetch(context.Background(), "q", 2)
	if len(got.Pool) != 2 {
		t.Fatalf("expected 2 contexts, got %d", len(got.Pool))
	}
}

func TestExternalFetchNormalizesSnippets(t *testing.T) {
	search := &stubSearch{results: []SearchResult{
		{Title: "Pricing", Snippet: "The House <b>Price</b> of a Home", Link: "https://example.com/a"},
	}}
	emb := &recordingEmbedder{}
	n := preprocess.NewNormalizer(preprocess.WithLowercase(), preprocess.WithStopwords())
	got := NewExternal(search, emb, WithExternalNormalizer(n)).Fetch(context.Background(), "house price", 1)

	if len(got.Pool) != 1 {
		t.Fatalf("expected one context, got %+v", got)
	}
	if len(emb.texts) != 1 || emb.texts[0] != "house price home" {
		t.Fatalf("expected normalised snippet embedded, got %q", emb.texts)
	}
	if got.Pool[0].Text != "The House Price of a Home" {
		t.Fatalf("displayed text should stay cleaned only, got %q", got.Pool[0].Text)
	}
}

func TestExternalFetchFailsSoft(t *testing.T) {
	search := &stubSearch{err: errors.New("429 too many requests")}
	got := NewExternal(search, &keywordEmbedder{}).Fetch(context.Background(), "q", 5)
	if len(got.Pool) != 0 || !errors.Is(got.Warning, serrors.ErrSourceUnavailable) {
		t.Fatalf("expected empty pool with warning, got %+v", got)
	}
}

func TestContextCloneIsDeep(t *testing.T) {
	orig := Context{Text: "t", Metadata: map[string]any{"k": "v"}, Embedding: []float32{1}}
	cp := orig.Clone()
	cp.Metadata["k"] = "changed"
	cp.Embedding[0] = 9
	if orig.Metadata["k"] != "v" || orig.Embedding[0] != 1 {
		t.Fatalf("clone shares state with original")
	}
}

package vector

import (
	"context"
	"math"
)

// Embedding is a stored chunk: text, its vector and provenance metadata.
type Embedding struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]any
}

// Hit is one nearest-neighbour result returned by an Index.
type Hit struct {
	ID       string
	Text     string
	Metadata map[string]any
	Vector   []float32
	// Distance as reported by the backend; smaller is closer. Backends that
	// only report similarity store 1-similarity here.
	Distance float64
}

// Index is a collection-partitioned vector store.
type Index interface {
	// Query returns up to k hits from collection, closest first. A missing
	// collection is reported as an error wrapping errors.ErrNotFound.
	Query(ctx context.Context, collection string, embedding []float32, k int) ([]Hit, error)

	// Upsert inserts or replaces an embedding in collection, creating the
	// collection when needed.
	Upsert(ctx context.Context, collection string, embedding *Embedding) error

	// Collections lists the known collection names.
	Collections(ctx context.Context) ([]string, error)
}

// Embedder defines the interface for creating embeddings from text
type Embedder interface {
	// Embed converts text to a vector embedding
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to embeddings, preserving order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension return number of embedding dimensions
	Dimension() int
}

// CosineSimilarity returns dot(a,b)/(|a|*|b|). It is 0 when the lengths
// differ, either vector is empty, or either norm is zero; it never returns NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	// rounding can push identical vectors marginally past 1
	return math.Max(-1, math.Min(1, sim))
}

// Valid reports whether vec is usable for similarity: non-empty, of the
// expected dimension (when dim > 0) and free of NaN/Inf components.
func Valid(vec []float32, dim int) bool {
	if len(vec) == 0 {
		return false
	}
	if dim > 0 && len(vec) != dim {
		return false
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Normalize scales the vector to unit length (L2 norm) in place.
func Normalize(vec []float32) []float32 {
	if len(vec) == 0 {
		return vec
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// Clone returns a copy of vec so callers can hold it past a request.
func Clone(vec []float32) []float32 {
	if vec == nil {
		return nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}

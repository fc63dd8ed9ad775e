// Package chroma implements vector.Index on a Chroma server. Each course is
// one Chroma collection using cosine space.
package chroma

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/pkg/logging"
	"github.com/sweetpotato0/sensei/vector"
)

// Config holds the Chroma connection settings.
type Config struct {
	URL string
}

// Index is a Chroma-backed vector.Index.
type Index struct {
	client chromago.Client
	logger *slog.Logger

	mu          sync.RWMutex
	collections map[string]chromago.Collection
}

var _ vector.Index = (*Index)(nil)

// New connects to Chroma. An empty URL uses the client default
// (http://localhost:8000).
func New(cfg Config) (*Index, error) {
	var opts []chromago.ClientOption
	if cfg.URL != "" {
		opts = append(opts, chromago.WithBaseURL(cfg.URL))
	}
	client, err := chromago.NewHTTPClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}
	return &Index{
		client:      client,
		logger:      logging.WithComponent("chroma"),
		collections: make(map[string]chromago.Collection),
	}, nil
}

// Close releases the client.
func (s *Index) Close() error {
	return s.client.Close()
}

func (s *Index) cached(name string) (chromago.Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	return c, ok
}

func (s *Index) remember(name string, c chromago.Collection) {
	s.mu.Lock()
	s.collections[name] = c
	s.mu.Unlock()
}

func (s *Index) writable(ctx context.Context, name string) (chromago.Collection, error) {
	if c, ok := s.cached(name); ok {
		return c, nil
	}
	c, err := s.client.GetOrCreateCollection(ctx, name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("hnsw:space", "cosine"),
				chromago.NewStringAttribute("created_by", "sensei"),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", name, err)
	}
	s.remember(name, c)
	return c, nil
}

func (s *Index) readable(ctx context.Context, name string) (chromago.Collection, error) {
	if c, ok := s.cached(name); ok {
		return c, nil
	}
	c, err := s.client.GetCollection(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("collection %s: %w", name, serrors.ErrNotFound)
		}
		return nil, fmt.Errorf("get collection %s: %w", name, err)
	}
	s.remember(name, c)
	return c, nil
}

// Upsert implements vector.Index.
func (s *Index) Upsert(ctx context.Context, name string, embedding *vector.Embedding) error {
	if embedding == nil || embedding.ID == "" {
		return fmt.Errorf("embedding cannot be nil or without ID")
	}
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("embedding vector cannot be empty")
	}
	c, err := s.writable(ctx, name)
	if err != nil {
		return err
	}
	err = c.Upsert(ctx,
		chromago.WithIDs(chromago.DocumentID(embedding.ID)),
		chromago.WithTexts(embedding.Text),
		chromago.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(embedding.Vector)),
		chromago.WithMetadatas(toMetadata(embedding.Metadata)),
	)
	if err != nil {
		return fmt.Errorf("upsert %s into %s: %w", embedding.ID, name, err)
	}
	return nil
}

// Query implements vector.Index.
func (s *Index) Query(ctx context.Context, name string, query []float32, k int) ([]vector.Hit, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}
	if k <= 0 {
		k = 10
	}
	c, err := s.readable(ctx, name)
	if err != nil {
		return nil, err
	}
	res, err := c.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(query)),
		chromago.WithNResults(k),
		chromago.WithIncludeQuery(
			chromago.IncludeDocuments,
			chromago.IncludeMetadatas,
			chromago.IncludeEmbeddings,
			chromago.IncludeDistances,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}

	idGroups := res.GetIDGroups()
	if len(idGroups) == 0 {
		return nil, nil
	}
	docGroups := res.GetDocumentsGroups()
	metaGroups := res.GetMetadatasGroups()
	embGroups := res.GetEmbeddingsGroups()
	distGroups := res.GetDistancesGroups()

	hits := make([]vector.Hit, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		hit := vector.Hit{ID: string(id)}
		if len(docGroups) > 0 && i < len(docGroups[0]) && docGroups[0][i] != nil {
			hit.Text = docGroups[0][i].ContentString()
		}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) && metaGroups[0][i] != nil {
			hit.Metadata = s.fromMetadata(metaGroups[0][i])
		}
		if len(embGroups) > 0 && i < len(embGroups[0]) && embGroups[0][i] != nil {
			hit.Vector = embGroups[0][i].ContentAsFloat32()
		}
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			hit.Distance = float64(distGroups[0][i])
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Collections implements vector.Index.
func (s *Index) Collections(ctx context.Context) ([]string, error) {
	cols, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name())
	}
	return names, nil
}

func toMetadata(meta map[string]any) chromago.DocumentMetadata {
	attrs := make([]*chromago.MetaAttribute, 0, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, chromago.NewStringAttribute(k, val))
		case bool:
			attrs = append(attrs, chromago.NewBoolAttribute(k, val))
		case int:
			attrs = append(attrs, chromago.NewIntAttribute(k, int64(val)))
		case int64:
			attrs = append(attrs, chromago.NewIntAttribute(k, val))
		case float32:
			attrs = append(attrs, chromago.NewFloatAttribute(k, float64(val)))
		case float64:
			attrs = append(attrs, chromago.NewFloatAttribute(k, val))
		default:
			attrs = append(attrs, chromago.NewStringAttribute(k, fmt.Sprint(val)))
		}
	}
	return chromago.NewDocumentMetadata(attrs...)
}

// fromMetadata converts through JSON; DocumentMetadata has no map accessor.
func (s *Index) fromMetadata(meta chromago.DocumentMetadata) map[string]any {
	raw, err := json.Marshal(meta)
	if err != nil {
		s.logger.Warn("could not marshal chroma metadata", "error", err)
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.logger.Warn("could not unmarshal chroma metadata", "error", err)
		return map[string]any{}
	}
	return out
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}

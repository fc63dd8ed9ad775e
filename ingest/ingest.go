// Package ingest turns lecture transcripts into embedded chunks in the
// vector index.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sweetpotato0/sensei/course"
	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/pkg/logging"
	"github.com/sweetpotato0/sensei/pkg/telemetry"
	"github.com/sweetpotato0/sensei/rag/chunking"
	"github.com/sweetpotato0/sensei/rag/preprocess"
	"github.com/sweetpotato0/sensei/rag/source"
	"github.com/sweetpotato0/sensei/vector"
	"go.opentelemetry.io/otel/attribute"
)

const defaultBatchSize = 64

// Indexer embeds transcript chunks and upserts them into a collection.
type Indexer struct {
	index      vector.Index
	embedder   vector.Embedder
	chunker    *chunking.TranscriptChunker
	normalizer *preprocess.Normalizer
	registry   course.Registry
	batchSize  int
	logger     *slog.Logger
}

// Option customises an Indexer.
type Option func(*Indexer)

// WithChunker overrides the default transcript chunker.
func WithChunker(c *chunking.TranscriptChunker) Option {
	return func(ix *Indexer) {
		if c != nil {
			ix.chunker = c
		}
	}
}

// WithNormalizer sets the normaliser applied before embedding. It must
// match the one the query path uses.
func WithNormalizer(n *preprocess.Normalizer) Option {
	return func(ix *Indexer) {
		if n != nil {
			ix.normalizer = n
		}
	}
}

// WithRegistry records ingested videos in a course registry.
func WithRegistry(r course.Registry) Option {
	return func(ix *Indexer) {
		ix.registry = r
	}
}

// WithBatchSize bounds how many chunks go into one embedding call.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// New builds an Indexer.
func New(index vector.Index, embedder vector.Embedder, opts ...Option) *Indexer {
	ix := &Indexer{
		index:      index,
		embedder:   embedder,
		chunker:    chunking.New(),
		normalizer: preprocess.NewNormalizer(),
		batchSize:  defaultBatchSize,
		logger:     logging.WithComponent("ingest"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Result summarises one ingestion.
type Result struct {
	Collection string `json:"collection"`
	VideoID    string `json:"video_id"`
	Chunks     int    `json:"chunks"`
}

// IngestTranscript parses a transcript document and indexes it.
func (ix *Indexer) IngestTranscript(ctx context.Context, collection, videoID string, r io.Reader) (Result, error) {
	segments, err := ParseTranscript(r)
	if err != nil {
		return Result{}, err
	}
	return ix.IngestSegments(ctx, collection, videoID, segments)
}

// IngestSegments chunks, embeds and upserts pre-parsed segments. Re-running
// it for the same video replaces the chunks by ID.
func (ix *Indexer) IngestSegments(ctx context.Context, collection, videoID string, segments []chunking.Segment) (res Result, err error) {
	ctx, span := telemetry.Start(ctx, "ingest", "ingest.segments",
		attribute.String("collection", collection),
		attribute.String("video_id", videoID),
	)
	defer func() { telemetry.End(span, err) }()

	if err := course.ValidateName(collection); err != nil {
		return Result{}, err
	}
	if videoID == "" {
		return Result{}, fmt.Errorf("ingest: %w: empty video id", serrors.ErrInvalidInput)
	}

	chunks := ix.chunker.Chunk(videoID, segments)
	res = Result{Collection: collection, VideoID: videoID}

	for startIdx := 0; startIdx < len(chunks); startIdx += ix.batchSize {
		batch := chunks[startIdx:min(startIdx+ix.batchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = ix.normalizer.Normalize(c.Text)
		}
		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return res, fmt.Errorf("ingest %s/%s: %w: %w", collection, videoID, serrors.ErrEmbeddingFailure, err)
		}
		if len(vectors) != len(batch) {
			return res, fmt.Errorf("ingest %s/%s: %w: expected %d vectors, got %d", collection, videoID, serrors.ErrEmbeddingFailure, len(batch), len(vectors))
		}
		for i, c := range batch {
			if !vector.Valid(vectors[i], ix.embedder.Dimension()) {
				return res, fmt.Errorf("ingest %s: %w: malformed vector", c.ID, serrors.ErrEmbeddingFailure)
			}
			err := ix.index.Upsert(ctx, collection, &vector.Embedding{
				ID:     c.ID,
				Text:   c.Text,
				Vector: vectors[i],
				Metadata: map[string]any{
					source.MetaVideoID: videoID,
					source.MetaStart:   c.Start,
					source.MetaEnd:     c.End,
				},
			})
			if err != nil {
				return res, fmt.Errorf("ingest %s: upsert: %w", c.ID, err)
			}
			res.Chunks++
		}
	}

	if ix.registry != nil {
		if err := ix.registry.AddVideo(ctx, collection, videoID); err != nil {
			return res, fmt.Errorf("ingest: register video: %w", err)
		}
	}
	ix.logger.Info("transcript ingested", "collection", collection, "video_id", videoID, "segments", len(segments), "chunks", res.Chunks)
	return res, nil
}

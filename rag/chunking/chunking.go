// Package chunking groups timestamped transcript paragraphs into chunks
// suitable for embedding.
package chunking

import (
	"fmt"
	"strings"

	"github.com/sweetpotato0/sensei/rag/tokenizer"
)

// Segment is one transcribed paragraph with its time span in seconds.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Chunk is a group of consecutive segments. It spans from the first
// segment's start to the last segment's end.
type Chunk struct {
	ID      string
	Ordinal int
	Text    string
	Start   float64
	End     float64
}

// Options controls grouping.
type Options struct {
	MaxSegments int
	MaxTokens   int
	Tokenizer   tokenizer.Tokenizer
}

// Option customizes the transcript chunker.
type Option func(*Options)

// WithMaxSegments caps how many paragraphs go into one chunk.
func WithMaxSegments(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxSegments = n
		}
	}
}

// WithMaxTokens caps the token count of a chunk. A single paragraph longer
// than the cap still becomes its own chunk.
func WithMaxTokens(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxTokens = n
		}
	}
}

// WithTokenizer sets the token counter used for WithMaxTokens.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(o *Options) {
		if t != nil {
			o.Tokenizer = t
		}
	}
}

// TranscriptChunker groups segments by count and token budget.
type TranscriptChunker struct {
	maxSegments int
	maxTokens   int
	tok         tokenizer.Tokenizer
}

// New constructs a chunker: 3 paragraphs and 512 tokens per chunk unless
// overridden.
func New(opts ...Option) *TranscriptChunker {
	cfg := &Options{
		MaxSegments: 3,
		MaxTokens:   512,
		Tokenizer:   tokenizer.WordTokenizer{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &TranscriptChunker{
		maxSegments: cfg.MaxSegments,
		maxTokens:   cfg.MaxTokens,
		tok:         cfg.Tokenizer,
	}
}

// Chunk groups segments of one video. Chunk IDs are "{videoID}_{ordinal}".
// Blank segments are skipped.
func (c *TranscriptChunker) Chunk(videoID string, segments []Segment) []Chunk {
	var (
		chunks []Chunk
		group  []Segment
		tokens int
	)

	flush := func() {
		if len(group) == 0 {
			return
		}
		texts := make([]string, len(group))
		for i, s := range group {
			texts[i] = s.Text
		}
		ordinal := len(chunks)
		chunks = append(chunks, Chunk{
			ID:      fmt.Sprintf("%s_%d", videoID, ordinal),
			Ordinal: ordinal,
			Text:    strings.Join(texts, " "),
			Start:   group[0].Start,
			End:     group[len(group)-1].End,
		})
		group = group[:0]
		tokens = 0
	}

	for _, seg := range segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		n := c.tok.CountTokens(seg.Text)
		if len(group) > 0 && (len(group) >= c.maxSegments || tokens+n > c.maxTokens) {
			flush()
		}
		group = append(group, seg)
		tokens += n
	}
	flush()
	return chunks
}

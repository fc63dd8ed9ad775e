// Package generate drives the streaming LLM call and interleaves the ranked
// context set with the answer tokens.
package generate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/pkg/logging"
	"github.com/sweetpotato0/sensei/pkg/telemetry"
	"github.com/sweetpotato0/sensei/rag/ranker"
)

// ErrStreamConsumed is returned when a Stream is iterated a second time.
var ErrStreamConsumed = errors.New("answer stream already consumed")

// LLM streams completion tokens for a prompt.
type LLM interface {
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// Chunk is one element of the answer stream. The first chunk carries the
// context set and no token; every later chunk carries a token only.
type Chunk struct {
	Contexts *ranker.Set `json:"contexts,omitempty"`
	Token    string      `json:"token,omitempty"`
}

// Driver runs the LLM for an assembled prompt.
type Driver struct {
	llm    LLM
	logger *slog.Logger
}

// New wraps an LLM.
func New(llm LLM) *Driver {
	return &Driver{
		llm:    llm,
		logger: logging.WithComponent("generate"),
	}
}

// Stream returns a single-use answer stream. The LLM is not called until
// the stream is iterated.
func (d *Driver) Stream(ctx context.Context, prompt string, set ranker.Set) *Stream {
	return &Stream{driver: d, ctx: ctx, prompt: prompt, set: set}
}

// Stream is a lazily started, non-restartable answer stream.
type Stream struct {
	driver *Driver
	ctx    context.Context
	prompt string
	set    ranker.Set

	started atomic.Bool

	mu        sync.Mutex
	answer    strings.Builder
	completed bool
	err       error
}

// All yields the context chunk, then tokens. A terminal error is yielded
// once with a zero Chunk: GenerationFailure for LLM errors, the context
// error on cancellation.
func (s *Stream) All() iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		if !s.started.CompareAndSwap(false, true) {
			yield(Chunk{}, ErrStreamConsumed)
			return
		}

		ctx, span := telemetry.Start(s.ctx, "generate", "generate.stream",
			attribute.Int("contexts", s.set.Len()),
		)
		defer func() { telemetry.End(span, s.Err()) }()

		set := s.set
		if !yield(Chunk{Contexts: &set}, nil) {
			s.finish(context.Canceled)
			return
		}
		if err := ctx.Err(); err != nil {
			s.finish(err)
			yield(Chunk{}, err)
			return
		}
		if s.driver == nil || s.driver.llm == nil {
			err := fmt.Errorf("%w: no llm configured", serrors.ErrGenerationFailure)
			s.finish(err)
			yield(Chunk{}, err)
			return
		}

		tokens := 0
		for tok, err := range s.driver.llm.Stream(ctx, s.prompt) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.driver.logger.Info("answer stream cancelled", "tokens", tokens)
				s.finish(ctxErr)
				yield(Chunk{}, ctxErr)
				return
			}
			if err != nil {
				s.driver.logger.Error("llm stream failed", "tokens", tokens, "error", err)
				err = fmt.Errorf("%w: %w", serrors.ErrGenerationFailure, err)
				s.finish(err)
				yield(Chunk{}, err)
				return
			}
			if tok == "" {
				continue
			}
			tokens++
			s.mu.Lock()
			s.answer.WriteString(tok)
			s.mu.Unlock()
			if !yield(Chunk{Token: tok}, nil) {
				s.driver.logger.Info("consumer stopped reading", "tokens", tokens)
				s.finish(context.Canceled)
				return
			}
		}

		if tokens == 0 {
			err := fmt.Errorf("%w: llm returned no tokens", serrors.ErrGenerationFailure)
			s.finish(err)
			yield(Chunk{}, err)
			return
		}
		s.finish(nil)
	}
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.completed = err == nil
}

// Answer returns the text streamed so far and whether the stream ran to
// completion. Only a completed answer should be scored.
func (s *Stream) Answer() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer.String(), s.completed
}

// Err returns the terminal error, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Contexts returns the set the stream was built for.
func (s *Stream) Contexts() ranker.Set {
	return s.set
}

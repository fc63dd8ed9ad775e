// Package pipeline wires the answer flow: fetch contexts, rank them, build
// the prompt, stream the answer and score the evidence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/pkg/logging"
	"github.com/sweetpotato0/sensei/pkg/telemetry"
	"github.com/sweetpotato0/sensei/prompt"
	"github.com/sweetpotato0/sensei/rag/generate"
	"github.com/sweetpotato0/sensei/rag/preprocess"
	"github.com/sweetpotato0/sensei/rag/ranker"
	"github.com/sweetpotato0/sensei/rag/scorer"
	"github.com/sweetpotato0/sensei/rag/source"
	"github.com/sweetpotato0/sensei/vector"
)

const tracerName = "pipeline"

// Request is one question against a course.
type Request struct {
	Query       string `json:"query"`
	Collection  string `json:"collection"`
	UseInternal bool   `json:"use_internal"`
	UseExternal bool   `json:"use_external"`
	TopN        int    `json:"top_n"`
}

// NewRequest returns a request against the course index only, with the
// default context budget.
func NewRequest(query, collection string) Request {
	return Request{
		Query:       query,
		Collection:  collection,
		UseInternal: true,
		TopN:        ranker.DefaultTopN,
	}
}

// Validate rejects requests that cannot be served. It makes no network
// calls.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("query: %w: empty text", serrors.ErrInvalidInput)
	}
	if r.TopN <= 0 {
		return fmt.Errorf("top_n: %w: must be positive, got %d", serrors.ErrInvalidInput, r.TopN)
	}
	if r.UseInternal && strings.TrimSpace(r.Collection) == "" {
		return fmt.Errorf("collection: %w: required when the course index is used", serrors.ErrInvalidInput)
	}
	return nil
}

// Answer is a prepared answer: the ranked contexts are fixed, the stream
// has not started.
type Answer struct {
	Stream         *generate.Stream
	Contexts       ranker.Set
	QueryEmbedding []float32
	Prompt         string
	Warnings       []string
}

// Result is a fully generated and scored answer.
type Result struct {
	Answer    string         `json:"answer"`
	Contexts  ranker.Set     `json:"contexts"`
	Report    *scorer.Report `json:"report,omitempty"`
	Completed bool           `json:"completed"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// EvaluateRequest asks for the evidence report of an answer. Contexts
// without a usable embedding are re-embedded.
type EvaluateRequest struct {
	Question       string           `json:"question"`
	Answer         string           `json:"answer"`
	Contexts       []source.Context `json:"contexts"`
	QueryEmbedding []float32        `json:"query_embedding,omitempty"`
}

// Pipeline answers questions. It is safe for concurrent use; all
// collaborators are injected.
type Pipeline struct {
	embedder   vector.Embedder
	internal   *source.Internal
	external   *source.External
	ranker     ranker.Ranker
	assembler  *prompt.Assembler
	driver     *generate.Driver
	scorer     *scorer.Scorer
	normalizer *preprocess.Normalizer
	fetchK     func(topN int) int
	logger     *slog.Logger
}

type options struct {
	index      vector.Index
	search     source.WebSearch
	oracle     scorer.Oracle
	ranker     ranker.Ranker
	assembler  *prompt.Assembler
	normalizer *preprocess.Normalizer
	fetchK     func(topN int) int
	logger     *slog.Logger
}

// Option customises a Pipeline.
type Option func(*options)

// WithIndex enables the course index source.
func WithIndex(index vector.Index) Option {
	return func(o *options) { o.index = index }
}

// WithWebSearch enables the web source.
func WithWebSearch(search source.WebSearch) Option {
	return func(o *options) { o.search = search }
}

// WithOracle sets the faithfulness oracle. Without one, reports carry
// relevancy only.
func WithOracle(oracle scorer.Oracle) Option {
	return func(o *options) { o.oracle = oracle }
}

// WithRanker replaces the cosine ranker.
func WithRanker(r ranker.Ranker) Option {
	return func(o *options) {
		if r != nil {
			o.ranker = r
		}
	}
}

// WithAssembler replaces the default prompt assembler.
func WithAssembler(a *prompt.Assembler) Option {
	return func(o *options) {
		if a != nil {
			o.assembler = a
		}
	}
}

// WithNormalizer sets the query normaliser; it must match ingestion.
func WithNormalizer(n *preprocess.Normalizer) Option {
	return func(o *options) {
		if n != nil {
			o.normalizer = n
		}
	}
}

// WithFetchK sets how many candidates each source returns for a given
// top_n. The default fetches top_n from each.
func WithFetchK(fn func(topN int) int) Option {
	return func(o *options) {
		if fn != nil {
			o.fetchK = fn
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New builds a Pipeline around an embedder and an LLM.
func New(embedder vector.Embedder, llm generate.LLM, opts ...Option) *Pipeline {
	o := &options{
		ranker:     ranker.New(),
		assembler:  prompt.NewAssembler(),
		normalizer: preprocess.NewNormalizer(),
		fetchK:     func(topN int) int { return topN },
		logger:     logging.WithComponent("pipeline"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	p := &Pipeline{
		embedder:   embedder,
		ranker:     o.ranker,
		assembler:  o.assembler,
		driver:     generate.New(llm),
		scorer:     scorer.New(o.oracle),
		normalizer: o.normalizer,
		fetchK:     o.fetchK,
		logger:     o.logger,
	}
	if o.index != nil {
		p.internal = source.NewInternal(o.index,
			source.WithReembedder(embedder),
			source.WithInternalNormalizer(o.normalizer),
		)
	}
	if o.search != nil {
		p.external = source.NewExternal(o.search, embedder, source.WithExternalNormalizer(o.normalizer))
	}
	return p
}

// Answer validates req, gathers and ranks contexts, and prepares the
// answer stream. Only invalid input is returned as an error; source and
// embedding failures degrade to fewer contexts and are listed in Warnings.
func (p *Pipeline) Answer(ctx context.Context, req Request) (ans *Answer, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, span := telemetry.Start(ctx, tracerName, "pipeline.answer",
		attribute.String("collection", req.Collection),
		attribute.Bool("use_internal", req.UseInternal),
		attribute.Bool("use_external", req.UseExternal),
		attribute.Int("top_n", req.TopN),
	)
	defer func() { telemetry.End(span, err) }()

	ans = &Answer{}
	ans.QueryEmbedding, err = p.embedQuery(ctx, req.Query)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	if err != nil {
		p.logger.Warn("query embedding failed, answering without context", "error", err)
		ans.Warnings = append(ans.Warnings, err.Error())
		err = nil
	}

	var internal, external source.Fetched
	if ans.QueryEmbedding != nil {
		internal, external = p.fetch(ctx, req, req.Query, ans.QueryEmbedding)
		for _, f := range []source.Fetched{internal, external} {
			if f.Warning != nil {
				ans.Warnings = append(ans.Warnings, f.Warning.Error())
			}
		}
	}

	_, rankSpan := telemetry.Start(ctx, tracerName, "pipeline.rank")
	ans.Contexts = p.ranker.Rank(ranker.Input{
		Query:    ans.QueryEmbedding,
		Internal: internal.Pool,
		External: external.Pool,
		TopN:     req.TopN,
	})
	rankSpan.SetAttributes(
		attribute.Int("internal", len(internal.Pool)),
		attribute.Int("external", len(external.Pool)),
		attribute.Int("selected", ans.Contexts.Len()),
	)
	telemetry.End(rankSpan, nil)
	if ans.Contexts.Empty() {
		p.logger.Info("no context available", "collection", req.Collection, "reason", serrors.ErrNoContext)
	}

	ans.Prompt, err = p.assembler.Assemble(ans.Contexts.Texts(), req.Query)
	if err != nil {
		return nil, fmt.Errorf("assemble prompt: %w", err)
	}
	ans.Stream = p.driver.Stream(ctx, ans.Prompt, ans.Contexts)

	p.logger.Debug("answer prepared",
		"collection", req.Collection,
		"internal", len(internal.Pool),
		"external", len(external.Pool),
		"selected", ans.Contexts.Len(),
	)
	return ans, nil
}

// fetch runs both sources concurrently; neither returns an error.
func (p *Pipeline) fetch(ctx context.Context, req Request, query string, embedding []float32) (internal, external source.Fetched) {
	ctx, span := telemetry.Start(ctx, tracerName, "pipeline.fetch")
	defer telemetry.End(span, nil)

	k := p.fetchK(req.TopN)
	var g errgroup.Group
	if req.UseInternal {
		g.Go(func() error {
			if p.internal == nil {
				internal = source.Fetched{Warning: fmt.Errorf("internal source: %w: no index configured", serrors.ErrSourceUnavailable)}
				return nil
			}
			internal = p.internal.Fetch(ctx, req.Collection, embedding, k)
			return nil
		})
	}
	if req.UseExternal {
		g.Go(func() error {
			if p.external == nil {
				external = source.Fetched{Warning: fmt.Errorf("external source: %w: no web search configured", serrors.ErrSourceUnavailable)}
				return nil
			}
			external = p.external.Fetch(ctx, query, k)
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("internal.dropped", internal.Dropped),
		attribute.Int("external.dropped", external.Dropped),
	)
	return internal, external
}

// Ask answers req to completion and scores the answer. The report is
// omitted when generation did not complete.
func (p *Pipeline) Ask(ctx context.Context, req Request) (*Result, error) {
	ans, err := p.Answer(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, err := range ans.Stream.All() {
		if err != nil {
			return nil, err
		}
	}

	text, completed := ans.Stream.Answer()
	res := &Result{
		Answer:    text,
		Contexts:  ans.Contexts,
		Completed: completed,
		Warnings:  ans.Warnings,
	}
	if completed {
		report := p.Score(ctx, scorer.Input{
			Question:       req.Query,
			Answer:         text,
			QueryEmbedding: ans.QueryEmbedding,
			Contexts:       ans.Contexts,
		})
		res.Report = &report
	}
	return res, nil
}

// Score computes the evidence report for already ranked contexts.
func (p *Pipeline) Score(ctx context.Context, in scorer.Input) scorer.Report {
	ctx, span := telemetry.Start(ctx, tracerName, "pipeline.score", attribute.Int("contexts", in.Contexts.Len()))
	report := p.scorer.Score(ctx, in)
	span.SetAttributes(attribute.Bool("faithfulness_available", report.FaithfulnessAvailable))
	telemetry.End(span, nil)
	return report
}

// Evaluate scores an answer against contexts echoed back by a client.
func (p *Pipeline) Evaluate(ctx context.Context, req EvaluateRequest) (scorer.Report, error) {
	if strings.TrimSpace(req.Question) == "" {
		return scorer.Report{}, fmt.Errorf("question: %w: empty text", serrors.ErrInvalidInput)
	}
	if len(req.Contexts) == 0 {
		return p.Score(ctx, scorer.Input{Question: req.Question, Answer: req.Answer}), nil
	}

	query := req.QueryEmbedding
	if !vector.Valid(query, p.dimension()) {
		var err error
		if query, err = p.embedQuery(ctx, req.Question); err != nil {
			p.logger.Warn("evaluate: query embedding failed", "error", err)
			query = nil
		}
	}

	items := p.reembed(ctx, req.Contexts, len(query))
	for i := range items {
		items[i].Similarity = vector.CosineSimilarity(query, items[i].Embedding)
	}
	return p.Score(ctx, scorer.Input{
		Question:       req.Question,
		Answer:         req.Answer,
		QueryEmbedding: query,
		Contexts:       ranker.NewSet(items...),
	}), nil
}

// reembed keeps the given order and embeds, in one batch, the contexts
// whose embedding does not match dim. Contexts that still lack a usable
// embedding keep a nil one and score zero relevancy.
func (p *Pipeline) reembed(ctx context.Context, contexts []source.Context, dim int) []ranker.Scored {
	items := make([]ranker.Scored, len(contexts))
	var (
		missing []int
		texts   []string
	)
	for i, c := range contexts {
		items[i] = ranker.Scored{Context: c.Clone()}
		if !vector.Valid(c.Embedding, dim) {
			items[i].Embedding = nil
			if strings.TrimSpace(c.Text) != "" {
				missing = append(missing, i)
				texts = append(texts, p.normalizer.Normalize(c.Text))
			}
		}
	}
	if len(texts) == 0 || p.embedder == nil {
		return items
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		p.logger.Warn("evaluate: re-embedding contexts failed", "contexts", len(texts), "error", err)
		return items
	}
	for j, i := range missing {
		if vector.Valid(vecs[j], dim) {
			items[i].Embedding = vecs[j]
		}
	}
	return items
}

// Search returns the nearest course chunks for text without calling the
// LLM. Unlike Answer it reports a missing or unreachable index as an error.
func (p *Pipeline) Search(ctx context.Context, collection, text string, topK int) (hits []source.Context, err error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text: %w: empty", serrors.ErrInvalidInput)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("top_k: %w: must be positive, got %d", serrors.ErrInvalidInput, topK)
	}
	if strings.TrimSpace(collection) == "" {
		return nil, fmt.Errorf("collection: %w: empty", serrors.ErrInvalidInput)
	}
	if p.internal == nil {
		return nil, fmt.Errorf("search: %w: no index configured", serrors.ErrSourceUnavailable)
	}

	ctx, span := telemetry.Start(ctx, tracerName, "pipeline.search",
		attribute.String("collection", collection),
		attribute.Int("top_k", topK),
	)
	defer func() { telemetry.End(span, err) }()

	embedding, err := p.embedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	fetched := p.internal.Fetch(ctx, collection, embedding, topK)
	if fetched.Warning != nil {
		return nil, fetched.Warning
	}
	return fetched.Pool, nil
}

func (p *Pipeline) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if p.embedder == nil {
		return nil, fmt.Errorf("query: %w: no embedder configured", serrors.ErrEmbeddingFailure)
	}
	vec, err := p.embedder.Embed(ctx, p.normalizer.Normalize(query))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("query: %w: %w", serrors.ErrEmbeddingFailure, err)
	}
	if !vector.Valid(vec, p.dimension()) {
		return nil, fmt.Errorf("query: %w: malformed vector of length %d", serrors.ErrEmbeddingFailure, len(vec))
	}
	return vec, nil
}

func (p *Pipeline) dimension() int {
	if p.embedder == nil {
		return 0
	}
	return p.embedder.Dimension()
}

// Package scorer builds the evidence report for a generated answer.
package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/pkg/logging"
	"github.com/sweetpotato0/sensei/rag/ranker"
	"github.com/sweetpotato0/sensei/rag/source"
	"github.com/sweetpotato0/sensei/vector"
)

// Unavailable is the faithfulness value reported when the oracle could not
// be consulted.
const Unavailable = -1.0

// Oracle judges how well answer is supported by contexts, in [0,1].
type Oracle interface {
	Evaluate(ctx context.Context, question, answer string, contexts []string) (float64, error)
}

// ContextScore is the evidence for one context.
type ContextScore struct {
	Context   source.Context `json:"context"`
	Relevancy float64        `json:"relevancy_score"`
	// Faithfulness repeats the aggregate oracle score; the oracle only
	// judges the context set as a whole.
	Faithfulness float64 `json:"faithfulness_score"`
}

// Report is the evidence for one answer.
type Report struct {
	PerContext            []ContextScore `json:"per_context"`
	OverallFaithfulness   float64        `json:"overall_faithfulness"`
	OverallRelevancy      float64        `json:"overall_relevancy"`
	FaithfulnessAvailable bool           `json:"faithfulness_available"`
	// NoEvidence marks the report for an empty context set.
	NoEvidence bool   `json:"no_evidence"`
	Warning    string `json:"warning,omitempty"`
}

// NoEvidenceReport is returned when no context was selected.
func NoEvidenceReport() Report {
	return Report{
		PerContext:          []ContextScore{},
		OverallFaithfulness: Unavailable,
		OverallRelevancy:    0,
		NoEvidence:          true,
	}
}

// Input is what the scorer needs about one answered request.
type Input struct {
	Question       string
	Answer         string
	QueryEmbedding []float32
	Contexts       ranker.Set
}

// Scorer computes relevancy locally and delegates faithfulness.
type Scorer struct {
	oracle Oracle
	logger *slog.Logger
}

// New builds a Scorer. A nil oracle yields relevancy-only reports.
func New(oracle Oracle) *Scorer {
	return &Scorer{
		oracle: oracle,
		logger: logging.WithComponent("scorer"),
	}
}

// Score builds the report. The oracle is called at most once; its failure
// degrades the report to relevancy only.
func (s *Scorer) Score(ctx context.Context, in Input) Report {
	if in.Contexts.Empty() {
		return NoEvidenceReport()
	}

	items := in.Contexts.Items()
	report := Report{PerContext: make([]ContextScore, len(items))}
	var sum float64
	for i, it := range items {
		rel := vector.CosineSimilarity(in.QueryEmbedding, it.Embedding)
		sum += rel
		it.Context.Embedding = nil
		report.PerContext[i] = ContextScore{Context: it.Context, Relevancy: rel}
	}
	report.OverallRelevancy = sum / float64(len(items))

	faith, err := s.faithfulness(ctx, in)
	if err != nil {
		s.logger.Warn("faithfulness unavailable", "error", err)
		report.Warning = err.Error()
		faith = Unavailable
	} else {
		report.FaithfulnessAvailable = true
	}
	report.OverallFaithfulness = faith
	for i := range report.PerContext {
		report.PerContext[i].Faithfulness = faith
	}
	return report
}

func (s *Scorer) faithfulness(ctx context.Context, in Input) (float64, error) {
	if s.oracle == nil {
		return Unavailable, fmt.Errorf("%w: no oracle configured", serrors.ErrOracleFailure)
	}
	score, err := s.oracle.Evaluate(ctx, in.Question, in.Answer, in.Contexts.Texts())
	if err != nil {
		return Unavailable, fmt.Errorf("%w: %w", serrors.ErrOracleFailure, err)
	}
	if math.IsNaN(score) || score < 0 || score > 1 {
		return Unavailable, fmt.Errorf("%w: score %v outside [0,1]", serrors.ErrOracleFailure, score)
	}
	return score, nil
}

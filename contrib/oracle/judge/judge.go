// Package judge scores answer faithfulness with an LLM: the answer is split
// into statements and each is checked against the retrieved contexts.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/message"
	"github.com/sweetpotato0/sensei/prompt"
	"github.com/sweetpotato0/sensei/rag/scorer"
)

// DefaultPrompt is the system prompt of the judge.
const DefaultPrompt = `You verify whether an answer is grounded in the provided contexts.
Break the answer into standalone factual statements. For each statement decide
whether it can be directly inferred from the contexts.
Respond with JSON only, shaped as:
{"statements":[{"statement":"...","supported":true}],"score":0.0}
where score is the fraction of supported statements.`

// Completer returns a full reply to a conversation. All providers under
// contrib/provider implement it.
type Completer interface {
	Complete(ctx context.Context, msgs []*message.Message) (string, error)
}

// Verdict is the judge's decision on one statement.
type Verdict struct {
	Statement string `json:"statement"`
	Supported bool   `json:"supported"`
}

type judgement struct {
	Statements []Verdict `json:"statements"`
	Score      *float64  `json:"score"`
}

// Judge implements scorer.Oracle.
type Judge struct {
	llm    Completer
	prompt string
}

var _ scorer.Oracle = (*Judge)(nil)

// Option customises a Judge.
type Option func(*Judge)

// WithPrompt replaces the system prompt.
func WithPrompt(p string) Option {
	return func(j *Judge) {
		if strings.TrimSpace(p) != "" {
			j.prompt = p
		}
	}
}

// New creates a Judge backed by llm.
func New(llm Completer, opts ...Option) *Judge {
	j := &Judge{llm: llm, prompt: DefaultPrompt}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Evaluate implements scorer.Oracle. The score is derived from the
// statement verdicts when present, otherwise taken from the reply's score
// field.
func (j *Judge) Evaluate(ctx context.Context, question, answer string, contexts []string) (float64, error) {
	if j == nil || j.llm == nil {
		return 0, fmt.Errorf("judge: %w: no model configured", serrors.ErrOracleFailure)
	}

	userPrompt := prompt.NewBuilder().
		AddSection("Question", question).
		AddSection("Contexts", formatContexts(contexts)).
		AddSection("Answer", answer).
		AddLine("Return JSON only.").
		Build()
	raw, err := j.llm.Complete(ctx, []*message.Message{
		message.System(j.prompt),
		message.User(userPrompt),
	})
	if err != nil {
		return 0, fmt.Errorf("judge: %w: %w", serrors.ErrOracleFailure, err)
	}

	out, err := decodeJSON[judgement](raw)
	if err != nil {
		return 0, fmt.Errorf("judge: %w: %w", serrors.ErrOracleFailure, err)
	}
	if len(out.Statements) > 0 {
		supported := 0
		for _, v := range out.Statements {
			if v.Supported {
				supported++
			}
		}
		return float64(supported) / float64(len(out.Statements)), nil
	}
	if out.Score == nil {
		return 0, fmt.Errorf("judge: %w: reply has neither statements nor score", serrors.ErrOracleFailure)
	}
	return *out.Score, nil
}

func formatContexts(contexts []string) string {
	if len(contexts) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for i, c := range contexts {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, strings.TrimSpace(c))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// decodeJSON unmarshals model output into T after stripping code fences.
func decodeJSON[T any](raw string) (*T, error) {
	clean := sanitizeJSON(raw)
	var out T
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return &out, nil
}

func sanitizeJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = trimmed[3:]
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimPrefix(trimmed, "JSON")
		if idx := strings.Index(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	// some models wrap the object in prose
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start > 0 && end > start {
		trimmed = trimmed[start : end+1]
	}
	return trimmed
}

// Package ranker merges candidate pools into the bounded, ordered context
// set shown to the LLM and the user.
package ranker

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/sweetpotato0/sensei/rag/source"
	"github.com/sweetpotato0/sensei/vector"
)

// DefaultTopN is the context budget when a request does not set one.
const DefaultTopN = 5

// Scored is a ranked context with its similarity to the query.
type Scored struct {
	source.Context
	Similarity float64 `json:"similarity"`
}

// Set is a ranked context set. It is built once by a Ranker and read-only
// afterwards; accessors hand out copies.
type Set struct {
	items []Scored
}

// NewSet builds a Set from already ordered items, e.g. contexts echoed back
// by a client for evaluation.
func NewSet(items ...Scored) Set {
	out := make([]Scored, len(items))
	for i, it := range items {
		out[i] = Scored{Context: it.Context.Clone(), Similarity: it.Similarity}
	}
	return Set{items: out}
}

// Len returns the number of contexts.
func (s Set) Len() int { return len(s.items) }

// Empty reports whether no context was selected.
func (s Set) Empty() bool { return len(s.items) == 0 }

// Items returns a copy of the ranked entries.
func (s Set) Items() []Scored {
	out := make([]Scored, len(s.items))
	for i, it := range s.items {
		out[i] = Scored{Context: it.Context.Clone(), Similarity: it.Similarity}
	}
	return out
}

// Contexts returns copies of the contexts in ranked order.
func (s Set) Contexts() []source.Context {
	out := make([]source.Context, len(s.items))
	for i, it := range s.items {
		out[i] = it.Context.Clone()
	}
	return out
}

// Texts returns the context texts in ranked order.
func (s Set) Texts() []string {
	out := make([]string, len(s.items))
	for i, it := range s.items {
		out[i] = it.Text
	}
	return out
}

// MarshalJSON encodes the set as its ranked entries.
func (s Set) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

// Input bundles one request's ranking inputs. Either pool may be empty.
type Input struct {
	Query    []float32
	Internal source.Pool
	External source.Pool
	TopN     int
}

// Ranker selects the final context set.
type Ranker interface {
	Rank(in Input) Set
}

// CosineRanker ranks by cosine similarity over the union of both pools with
// no per-pool quota. Ties keep pool order (internal first) and then the
// order within each pool. Contexts repeating the text of a better-ranked
// one are skipped.
type CosineRanker struct{}

// New returns the canonical ranker.
func New() *CosineRanker {
	return &CosineRanker{}
}

type candidate struct {
	ctx source.Context
	sim float64
}

// Rank implements Ranker.
func (r *CosineRanker) Rank(in Input) Set {
	if in.TopN <= 0 {
		return Set{}
	}
	dim := len(in.Query)

	candidates := make([]candidate, 0, len(in.Internal)+len(in.External))
	for _, pool := range []source.Pool{in.Internal, in.External} {
		for _, ctx := range pool {
			if !vector.Valid(ctx.Embedding, dim) {
				continue
			}
			candidates = append(candidates, candidate{
				ctx: ctx,
				sim: vector.CosineSimilarity(in.Query, ctx.Embedding),
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})

	limit := min(in.TopN, len(candidates))
	items := make([]Scored, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, c := range candidates {
		if len(items) == limit {
			break
		}
		key := strings.Join(strings.Fields(strings.ToLower(c.ctx.Text)), " ")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, Scored{Context: c.ctx.Clone(), Similarity: c.sim})
	}
	return Set{items: items}
}

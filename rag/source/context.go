// Package source turns vector-index hits and web-search snippets into a
// uniform Context shape carrying text, provenance and an embedding.
package source

import (
	"fmt"
	"maps"
	"math"
	"net/url"
	"strconv"

	"github.com/sweetpotato0/sensei/vector"
)

// Origin tags where a Context came from.
type Origin string

const (
	OriginInternal Origin = "internal"
	OriginExternal Origin = "external"
)

// Metadata keys written by ingestion and by the external adapter.
const (
	MetaVideoID = "video_id"
	MetaStart   = "start"
	MetaEnd     = "end"
	MetaTitle   = "title"
	MetaLink    = "link"
	MetaID      = "id"
)

// Context is one retrieved unit of evidence.
type Context struct {
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	Origin    Origin         `json:"origin"`
}

// Clone returns a deep copy so the value can outlive the producing request.
func (c Context) Clone() Context {
	out := c
	out.Metadata = maps.Clone(c.Metadata)
	out.Embedding = vector.Clone(c.Embedding)
	return out
}

// Pool is an ordered, producer-specific sequence of contexts.
type Pool []Context

// Fetched is the outcome of an adapter call. Pool is always usable; Warning
// is set when the source failed soft and Dropped counts contexts discarded
// for lacking a usable embedding.
type Fetched struct {
	Pool    Pool
	Dropped int
	Warning error
}

// Link renders a human-facing source link for c: a timestamped video URL
// for lecture chunks, the search result URL for web snippets.
func Link(c Context) string {
	if c.Origin == OriginExternal {
		if link, ok := c.Metadata[MetaLink].(string); ok {
			return link
		}
		return ""
	}
	videoID, ok := c.Metadata[MetaVideoID].(string)
	if !ok || videoID == "" {
		return ""
	}
	start, _ := Float(c.Metadata[MetaStart])
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s&t=%ds", url.QueryEscape(videoID), int(math.Max(0, start)))
}

// Float coerces the numeric shapes metadata takes after passing through
// JSON, BSON or a vector backend.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

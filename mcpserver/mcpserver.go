// Package mcpserver exposes course search and question answering as MCP
// tools.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sweetpotato0/sensei/course"
	"github.com/sweetpotato0/sensei/pkg/logging"
	"github.com/sweetpotato0/sensei/rag/pipeline"
	"github.com/sweetpotato0/sensei/rag/ranker"
	"github.com/sweetpotato0/sensei/rag/scorer"
	"github.com/sweetpotato0/sensei/rag/source"
)

const defaultSearchTopK = 5

// Source is one context returned to an MCP client.
type Source struct {
	Text       string  `json:"text"`
	Link       string  `json:"link,omitempty"`
	Origin     string  `json:"origin"`
	Similarity float64 `json:"similarity,omitempty"`
}

// SearchInput is the argument of search_course.
type SearchInput struct {
	Course string `json:"course" jsonschema:"Course collection to search"`
	Query  string `json:"query" jsonschema:"Text to look up in the lecture transcripts"`
	TopK   int    `json:"top_k,omitempty" jsonschema:"Number of chunks to return, defaults to 5"`
}

// SearchOutput is the result of search_course.
type SearchOutput struct {
	Sources []Source `json:"sources"`
}

// AskInput is the argument of ask_course.
type AskInput struct {
	Course   string `json:"course,omitempty" jsonschema:"Course collection to answer from"`
	Question string `json:"question" jsonschema:"Question to answer"`
	Internet bool   `json:"internet,omitempty" jsonschema:"Also use web search results"`
	TopN     int    `json:"top_n,omitempty" jsonschema:"Context budget, defaults to 5"`
}

// AskOutput is the result of ask_course.
type AskOutput struct {
	Answer    string         `json:"answer"`
	Completed bool           `json:"completed"`
	Sources   []Source       `json:"sources"`
	Report    *scorer.Report `json:"report,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// ListOutput is the result of list_courses.
type ListOutput struct {
	Courses []string `json:"courses"`
}

// New builds the MCP server. registry may be nil, in which case
// list_courses is not offered.
func New(version string, p *pipeline.Pipeline, registry course.Registry) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "sensei",
		Title:   "Course lecture assistant",
		Version: version,
	}, &mcp.ServerOptions{
		KeepAlive: 30 * time.Second,
	})

	addSearchTool(server, p)
	addAskTool(server, p)
	if registry != nil {
		addListTool(server, registry)
	}
	return server
}

// HTTPHandler serves s over the streamable HTTP transport.
func HTTPHandler(s *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s }, nil)
}

// RunStdio serves s on stdin/stdout until the client disconnects or ctx
// ends.
func RunStdio(ctx context.Context, s *mcp.Server) error {
	logging.WithComponent("mcp").Info("serving MCP on stdio")
	if err := s.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func addSearchTool(server *mcp.Server, p *pipeline.Pipeline) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_course",
		Description: "Find the lecture transcript chunks closest to a query",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
		topK := in.TopK
		if topK == 0 {
			topK = defaultSearchTopK
		}
		hits, err := p.Search(ctx, strings.TrimSpace(in.Course), in.Query, topK)
		if err != nil {
			return nil, SearchOutput{}, err
		}
		out := SearchOutput{Sources: make([]Source, len(hits))}
		for i, h := range hits {
			out.Sources[i] = toSource(h, 0)
		}
		return nil, out, nil
	})
}

func addAskTool(server *mcp.Server, p *pipeline.Pipeline) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_course",
		Description: "Answer a question from the course lectures and return the sources used",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
		r := pipeline.NewRequest(in.Question, strings.TrimSpace(in.Course))
		r.UseInternal = r.Collection != ""
		r.UseExternal = in.Internet
		if in.TopN != 0 {
			r.TopN = in.TopN
		}

		res, err := p.Ask(ctx, r)
		if err != nil {
			return nil, AskOutput{}, err
		}
		out := AskOutput{
			Answer:    res.Answer,
			Completed: res.Completed,
			Sources:   sources(res.Contexts),
			Report:    res.Report,
			Warnings:  res.Warnings,
		}
		return nil, out, nil
	})
}

func addListTool(server *mcp.Server, registry course.Registry) {
	type args struct{}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_courses",
		Description: "List the courses that have been ingested",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ args) (*mcp.CallToolResult, ListOutput, error) {
		courses, err := registry.List(ctx)
		if err != nil {
			return nil, ListOutput{}, err
		}
		out := ListOutput{Courses: make([]string, len(courses))}
		for i, c := range courses {
			out.Courses[i] = c.Name
		}
		return nil, out, nil
	})
}

func sources(set ranker.Set) []Source {
	items := set.Items()
	out := make([]Source, len(items))
	for i, it := range items {
		out[i] = toSource(it.Context, it.Similarity)
	}
	return out
}

func toSource(c source.Context, sim float64) Source {
	return Source{
		Text:       c.Text,
		Link:       source.Link(c),
		Origin:     string(c.Origin),
		Similarity: sim,
	}
}

package mcpserver

import (
	"context"
	"encoding/json"
	"iter"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sweetpotato0/sensei/contrib/vector/inmemory"
	"github.com/sweetpotato0/sensei/course"
	"github.com/sweetpotato0/sensei/rag/pipeline"
	"github.com/sweetpotato0/sensei/vector"
)

type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (e constEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (constEmbedder) Dimension() int { return 2 }

type echoLLM struct{}

func (echoLLM) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("Gradient descent.", nil)
	}
}

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	index := inmemory.New()
	if err := index.Upsert(ctx, "ml", &vector.Embedding{
		ID:       "v1_0",
		Text:     "We minimise the loss with gradient descent.",
		Vector:   []float32{1, 0},
		Metadata: map[string]any{"video_id": "v1", "start": 61.0},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	registry := course.NewMemoryRegistry()
	if err := registry.AddVideo(ctx, "ml", "v1"); err != nil {
		t.Fatalf("registry: %v", err)
	}

	p := pipeline.New(constEmbedder{}, echoLLM{}, pipeline.WithIndex(index))
	server := New("test", p, registry)

	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if res.IsError || out == nil {
		return res
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("%s: unexpected content %T", name, res.Content[0])
	}
	if err := json.Unmarshal([]byte(text.Text), out); err != nil {
		t.Fatalf("%s: decode %q: %v", name, text.Text, err)
	}
	return res
}

func TestTools(t *testing.T) {
	cs := connect(t)

	t.Run("list_courses", func(t *testing.T) {
		var out ListOutput
		call(t, cs, "list_courses", map[string]any{}, &out)
		if len(out.Courses) != 1 || out.Courses[0] != "ml" {
			t.Fatalf("courses = %v", out.Courses)
		}
	})

	t.Run("search_course", func(t *testing.T) {
		var out SearchOutput
		call(t, cs, "search_course", map[string]any{"course": "ml", "query": "loss"}, &out)
		if len(out.Sources) != 1 {
			t.Fatalf("sources = %v", out.Sources)
		}
		if out.Sources[0].Link != "https://www.youtube.com/watch?v=v1&t=61s" {
			t.Fatalf("link = %q", out.Sources[0].Link)
		}
	})

	t.Run("ask_course", func(t *testing.T) {
		var out AskOutput
		call(t, cs, "ask_course", map[string]any{"course": "ml", "question": "How is the loss minimised?"}, &out)
		if out.Answer != "Gradient descent." || !out.Completed {
			t.Fatalf("answer = %+v", out)
		}
		if len(out.Sources) != 1 || out.Report == nil {
			t.Fatalf("expected one source and a report, got %+v", out)
		}
	})

	t.Run("ask_course rejects empty question", func(t *testing.T) {
		res := call(t, cs, "ask_course", map[string]any{"course": "ml", "question": ""}, nil)
		if !res.IsError {
			t.Fatal("expected a tool error")
		}
	})
}

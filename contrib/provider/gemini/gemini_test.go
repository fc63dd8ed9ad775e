package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/message"
)

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Hello, "), genai.Blob{MIMEType: "image/png"}, genai.Text("world")}},
		}},
	}
	if got := responseText(resp); got != "Hello, world" {
		t.Errorf("unexpected text %q", got)
	}
	if got := responseText(&genai.GenerateContentResponse{}); got != "" {
		t.Errorf("expected empty text, got %q", got)
	}
	if got := responseText(nil); got != "" {
		t.Errorf("expected empty text, got %q", got)
	}
}

func TestHistory(t *testing.T) {
	h := history([]*message.Message{message.User("q"), message.NewMessage(message.RoleAssistant, "a")})
	if len(h) != 2 || h[0].Role != "user" || h[1].Role != "model" {
		t.Errorf("unexpected history %+v", h)
	}
}

func TestMissingAPIKey(t *testing.T) {
	p := New(&Config{})
	var gotErr error
	for _, err := range p.Stream(context.Background(), "hi") {
		gotErr = err
	}
	if !errors.Is(gotErr, serrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", gotErr)
	}
	if _, err := p.Complete(context.Background(), []*message.Message{message.User("hi")}); !errors.Is(err, serrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sweetpotato0/sensei/message"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(&Config{APIKey: "test", BaseURL: srv.URL, Model: "test-model", MaxTokens: 64})
}

func writeEvent(w io.Writer, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func TestStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"test-model","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":3,"output_tokens":0}}}`)
		writeEvent(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		for _, token := range []string{"Regre", "ssion"} {
			writeEvent(w, "content_block_delta", fmt.Sprintf(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}`, token))
		}
		writeEvent(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		writeEvent(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`)
		writeEvent(w, "message_stop", `{"type":"message_stop"}`)
	})

	var tokens []string
	for token, err := range p.Stream(context.Background(), "what kind of problem?") {
		if err != nil {
			t.Fatalf("Stream failed: %v", err)
		}
		tokens = append(tokens, token)
	}
	if strings.Join(tokens, "") != "Regression" {
		t.Errorf("unexpected tokens %v", tokens)
	}
}

func TestComplete(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			System []struct {
				Text string `json:"text"`
			} `json:"system"`
			Messages []json.RawMessage `json:"messages"`
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		if len(body.System) != 1 || body.System[0].Text != "judge" {
			t.Errorf("system prompt not forwarded: %s", raw)
		}
		if len(body.Messages) != 1 {
			t.Errorf("expected 1 conversation message, got %d", len(body.Messages))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"test-model","content":[{"type":"text","text":"{\"score\":"},{"type":"text","text":"1}"}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":1}}`)
	})

	out, err := p.Complete(context.Background(), []*message.Message{message.System("judge"), message.User("rate")})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != `{"score":1}` {
		t.Errorf("unexpected completion %q", out)
	}
}

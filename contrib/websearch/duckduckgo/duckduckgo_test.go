package duckduckgo

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

const resultsPage = `<html><body>
<div class="result results_links result--ad">
  <a class="result__a" href="https://ads.example.com">Sponsored</a>
  <a class="result__snippet">Buy now</a>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fen.wikipedia.org%2Fwiki%2FRegression_analysis&rut=abc">Regression analysis - Wikipedia</a></h2>
  <a class="result__snippet">In statistical modeling, <b>regression</b> analysis is a set of processes...</a>
</div>
<div class="result results_links">
  <a class="result__a" href="https://example.com/house-prices">Predicting house prices</a>
  <a class="result__snippet">A worked example.</a>
</div>
<div class="result results_links">
  <a class="result__a" href="https://example.com/third">Third</a>
</div>
</body></html>`

func TestSearch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		_ = r.ParseForm()
		gotQuery = r.PostForm.Get("q")
		_, _ = io.WriteString(w, resultsPage)
	}))
	defer srv.Close()

	c := New(&Config{Endpoint: srv.URL})
	results, err := c.Search(context.Background(), "what is regression", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if gotQuery != "what is regression" {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(results), results)
	}
	if results[0].Link != "https://en.wikipedia.org/wiki/Regression_analysis" {
		t.Errorf("redirect not unwrapped: %s", results[0].Link)
	}
	if results[0].Title != "Regression analysis - Wikipedia" {
		t.Errorf("unexpected title %q", results[0].Title)
	}
	if results[0].Snippet == "" || results[1].Link != "https://example.com/house-prices" {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestSearchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(&Config{Endpoint: srv.URL})
	if _, err := c.Search(context.Background(), "q", 3); err == nil {
		t.Error("expected error for non-200 status")
	}
	if out, err := c.Search(context.Background(), "  ", 3); err != nil || out != nil {
		t.Errorf("expected no-op for blank query, got %v %v", out, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(&Config{Endpoint: srv.URL, RequestsPerSecond: 0.001}).Search(ctx, "q", 1); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestResolveLink(t *testing.T) {
	tests := map[string]string{
		"https://example.com/a":                            "https://example.com/a",
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F": "https://go.dev/",
		"//duckduckgo.com/l/?rut=x":                        "",
		"javascript:alert(1)":                              "",
		"":                                                 "",
	}
	for in, want := range tests {
		if got := resolveLink(in); got != want {
			t.Errorf("resolveLink(%q) = %q, want %q", in, got, want)
		}
	}
}

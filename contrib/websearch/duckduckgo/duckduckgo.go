// Package duckduckgo implements source.WebSearch by scraping the DuckDuckGo
// HTML endpoint.
package duckduckgo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/sweetpotato0/sensei/rag/source"
)

// DefaultEndpoint is the JavaScript-free search page.
const DefaultEndpoint = "https://html.duckduckgo.com/html/"

const userAgent = "Mozilla/5.0 (compatible; sensei/1.0)"

// Config holds search client configuration.
type Config struct {
	Endpoint string
	Region   string
	Timeout  time.Duration
	// RequestsPerSecond throttles outgoing queries; zero disables throttling.
	RequestsPerSecond float64
}

// Client queries DuckDuckGo.
type Client struct {
	endpoint string
	region   string
	http     *http.Client
	limiter  *rate.Limiter
}

var _ source.WebSearch = (*Client)(nil)

// New creates a Client. A nil config uses the public endpoint, a 10s timeout
// and one request per second.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{RequestsPerSecond: 1}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		endpoint: endpoint,
		region:   cfg.Region,
		http:     &http.Client{Timeout: timeout},
		limiter:  limiter,
	}
}

// Search implements source.WebSearch. Results without a link are skipped;
// at most k results are returned.
func (c *Client) Search(ctx context.Context, query string, k int) ([]source.SearchResult, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}

	form := url.Values{"q": {query}}
	if c.region != "" {
		form.Set("kl", c.region)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse results: %w", err)
	}
	return parseResults(doc, k), nil
}

func parseResults(doc *goquery.Document, k int) []source.SearchResult {
	var results []source.SearchResult
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		anchor := s.Find(".result__a").First()
		href, ok := anchor.Attr("href")
		if !ok {
			return true
		}
		link := resolveLink(href)
		if link == "" {
			return true
		}
		results = append(results, source.SearchResult{
			Title:   strings.TrimSpace(anchor.Text()),
			Snippet: strings.TrimSpace(s.Find(".result__snippet").First().Text()),
			Link:    link,
		})
		return len(results) < k
	})
	return results
}

// resolveLink unwraps the redirect links DuckDuckGo emits
// ("//duckduckgo.com/l/?uddg=<target>").
func resolveLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

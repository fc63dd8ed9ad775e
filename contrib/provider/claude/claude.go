// Package claude streams answers from the Anthropic Messages API.
package claude

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/message"
	"github.com/sweetpotato0/sensei/rag/generate"
)

// Config holds Claude provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
	MaxRetries  int
}

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   1024,
		Temperature: 0.2,
		MaxRetries:  2,
	}
}

// Provider talks to the Messages API.
type Provider struct {
	config *Config
	client anthropic.Client
}

var _ generate.LLM = (*Provider)(nil)

// New creates a new Claude provider using official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5-20250929"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithAuthToken(""),
		option.WithMaxRetries(max(config.MaxRetries, 0)),
	}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		config: config,
		client: anthropic.NewClient(options...),
	}
}

// Stream implements generate.LLM.
func (p *Provider) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := p.client.Messages.NewStreaming(ctx, p.params([]*message.Message{message.User(prompt)}))
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				if !yield(text.Text, nil) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("claude stream: %w", err))
		}
	}
}

// Complete returns the text blocks of the reply joined together.
func (p *Provider) Complete(ctx context.Context, msgs []*message.Message) (string, error) {
	if len(msgs) == 0 {
		return "", fmt.Errorf("claude complete: %w: no messages", serrors.ErrInvalidInput)
	}
	reply, err := p.client.Messages.New(ctx, p.params(msgs))
	if err != nil {
		return "", fmt.Errorf("claude complete: %w", err)
	}

	var sb strings.Builder
	for _, block := range reply.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func (p *Provider) params(msgs []*message.Message) anthropic.MessageNewParams {
	system, conversation := message.SplitSystem(msgs)

	converted := make([]anthropic.MessageParam, 0, len(conversation))
	for _, msg := range conversation {
		switch msg.Role {
		case message.RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		Messages:  converted,
		MaxTokens: p.config.MaxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if p.config.Temperature > 0 {
		params.Temperature = anthropic.Float(p.config.Temperature)
	}
	return params
}

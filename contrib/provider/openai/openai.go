// Package openai streams answers from OpenAI-compatible chat completion
// APIs. Groq and other compatible hosts are reached through BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/message"
	"github.com/sweetpotato0/sensei/rag/generate"
)

// GroqBaseURL is the OpenAI-compatible endpoint of Groq.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// Config holds OpenAI provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
	MaxRetries  int
}

// WithBaseURL set BaseURL.
func (cfg *Config) WithBaseURL(url string) *Config {
	cfg.BaseURL = url
	return cfg
}

// WithAPIKey set api key.
func (cfg *Config) WithAPIKey(apiKey string) *Config {
	cfg.APIKey = apiKey
	return cfg
}

// WithModel set model.
func (cfg *Config) WithModel(model string) *Config {
	cfg.Model = model
	return cfg
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig() *Config {
	return &Config{
		Model:       string(openai.ChatModelGPT4oMini),
		MaxTokens:   1024,
		Temperature: 0.2,
		MaxRetries:  2,
	}
}

// Provider talks to a chat completion endpoint.
type Provider struct {
	config *Config
	client openai.Client
}

var _ generate.LLM = (*Provider)(nil)

// New creates a new OpenAI provider using official SDK
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Model == "" {
		config.Model = string(openai.ChatModelGPT4oMini)
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(max(config.MaxRetries, 0)),
	}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		config: config,
		client: openai.NewClient(options...),
	}
}

// Stream implements generate.LLM. The prompt is sent as a single user
// message and content deltas are yielded as they arrive.
func (p *Provider) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := p.client.Chat.Completions.NewStreaming(ctx, p.params([]*message.Message{message.User(prompt)}))
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !yield(delta, nil) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("openai stream: %w", err))
		}
	}
}

// Complete returns the whole assistant reply for a conversation.
func (p *Provider) Complete(ctx context.Context, msgs []*message.Message) (string, error) {
	if len(msgs) == 0 {
		return "", fmt.Errorf("openai complete: %w: no messages", serrors.ErrInvalidInput)
	}
	completion, err := p.client.Chat.Completions.New(ctx, p.params(msgs))
	if err != nil {
		return "", fmt.Errorf("openai complete: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai complete: no choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}

func (p *Provider) params(msgs []*message.Message) openai.ChatCompletionNewParams {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			converted = append(converted, openai.SystemMessage(msg.Content))
		case message.RoleAssistant:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		default:
			converted = append(converted, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: converted,
		Model:    openai.ChatModel(p.config.Model),
	}
	if p.config.Temperature > 0 {
		params.Temperature = openai.Float(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(p.config.MaxTokens)
	}
	return params
}

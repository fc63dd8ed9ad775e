// Package gemini streams answers from Google Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/message"
	"github.com/sweetpotato0/sensei/rag/generate"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-flash",
		MaxTokens:   1024,
		Temperature: 0.2,
	}
}

// Provider implements generate.LLM for Gemini. A client is opened per
// call and closed when the call returns.
type Provider struct {
	config *Config
}

var _ generate.LLM = (*Provider)(nil)

// New creates a new Gemini provider
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}
	return &Provider{config: config}
}

func (p *Provider) model(client *genai.Client) *genai.GenerativeModel {
	model := client.GenerativeModel(p.config.Model)
	if p.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(p.config.MaxTokens)
	}
	if p.config.Temperature > 0 {
		model.SetTemperature(p.config.Temperature)
	}
	return model
}

func (p *Provider) client(ctx context.Context) (*genai.Client, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w: API key not configured", serrors.ErrInvalidInput)
	}
	return genai.NewClient(ctx, option.WithAPIKey(p.config.APIKey))
}

// Stream implements generate.LLM.
func (p *Provider) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		client, err := p.client(ctx)
		if err != nil {
			yield("", err)
			return
		}
		defer client.Close()

		it := p.model(client).GenerateContentStream(ctx, genai.Text(prompt))
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("gemini stream: %w", err))
				return
			}
			if text := responseText(resp); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

// Complete runs a chat session seeded with all but the last message.
func (p *Provider) Complete(ctx context.Context, msgs []*message.Message) (string, error) {
	system, conversation := message.SplitSystem(msgs)
	if len(conversation) == 0 {
		return "", fmt.Errorf("gemini complete: %w: no messages", serrors.ErrInvalidInput)
	}

	client, err := p.client(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	model := p.model(client)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	session := model.StartChat()
	session.History = history(conversation[:len(conversation)-1])

	resp, err := session.SendMessage(ctx, genai.Text(conversation[len(conversation)-1].Content))
	if err != nil {
		return "", fmt.Errorf("gemini complete: %w", err)
	}
	return responseText(resp), nil
}

func history(msgs []*message.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == message.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return out
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

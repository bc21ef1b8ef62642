// Package anthropic provides an LLM provider adapter using the Anthropic API.
package anthropic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.LLMProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-3-5-sonnet-latest"
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 1024

	// anthropicVersion is the required API version header.
	anthropicVersion = "2023-06-01"
)

// Config holds configuration for the Anthropic provider.
type Config struct {
	// APIKey is the Anthropic API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.anthropic.com).
	BaseURL string

	// Model is the chat model (default: claude-3-5-sonnet-latest).
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Provider implements chat and streaming. Anthropic has no embeddings API.
type Provider struct {
	messages *anthropic.MessageService
	http     *http.Client
	baseURL  string
	apiKey   string
	model    string
}

// New creates a new Anthropic provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL+"/"),
		option.WithRequestTimeout(cfg.Timeout),
	)

	return &Provider{
		messages: &client.Messages,
		http:     &http.Client{Timeout: cfg.Timeout},
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
	}, nil
}

// Complete produces a response for a message list.
func (p *Provider) Complete(
	ctx context.Context, messages []driven.ChatMessage, opts driven.CompletionOptions,
) (*driven.Completion, error) {
	resp, err := p.messages.New(ctx, p.params(messages, opts))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create message: %w", err)
	}
	return completion(resp), nil
}

// Stream produces a response incrementally, accumulating events into a message.
func (p *Provider) Stream(
	ctx context.Context, messages []driven.ChatMessage, opts driven.CompletionOptions, onDelta func(string) error,
) (*driven.Completion, error) {
	stream := p.messages.NewStreaming(ctx, p.params(messages, opts))
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("anthropic: accumulate stream: %w", err)
		}

		blockDelta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		text, ok := blockDelta.Delta.AsAny().(anthropic.TextDelta)
		if !ok || text.Text == "" || onDelta == nil {
			continue
		}
		if err := onDelta(text.Text); err != nil {
			return nil, err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: read stream: %w", err)
	}
	return completion(&message), nil
}

// Embed is not supported by Anthropic.
func (p *Provider) Embed(context.Context, []string, string) ([][]float32, error) {
	return nil, fmt.Errorf("anthropic does not support embeddings, use ollama, openai or gemini")
}

// ModelName returns the default chat model.
func (p *Provider) ModelName() string {
	return p.model
}

// Ping validates the API key against the /v1/models endpoint without running inference.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("anthropic: failed to create ping request: %w", err)
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("anthropic: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("anthropic: API returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("anthropic: API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

// params converts messages, moving system turns into the dedicated system field.
func (p *Provider) params(messages []driven.ChatMessage, opts driven.CompletionOptions) anthropic.MessageNewParams {
	system, rest := driven.SplitSystem(messages)

	converted := make([]anthropic.MessageParam, 0, len(rest))
	for _, msg := range rest {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == "assistant" {
			converted = append(converted, anthropic.NewAssistantMessage(block))
		} else {
			converted = append(converted, anthropic.NewUserMessage(block))
		}
	}

	model := opts.Model
	if model == "" {
		model = p.model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  converted,
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func completion(msg *anthropic.Message) *driven.Completion {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	prompt := int(msg.Usage.InputTokens)
	output := int(msg.Usage.OutputTokens)
	return &driven.Completion{
		Content: text.String(),
		Model:   string(msg.Model),
		Usage: driven.TokenUsage{
			PromptTokens:     prompt,
			CompletionTokens: output,
			TotalTokens:      prompt + output,
		},
	}
}

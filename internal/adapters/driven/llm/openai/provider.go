// Package openai provides an LLM provider adapter using the OpenAI API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.LLMProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultTimeout        = 120 * time.Second
)

// Config holds configuration for the OpenAI provider.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the chat model (default: gpt-4o-mini).
	Model string

	// EmbeddingModel is the default embedding model (default: text-embedding-3-small).
	EmbeddingModel string

	// Timeout bounds each request (default: 120s).
	Timeout time.Duration
}

// Provider implements chat, streaming and embeddings over go-openai.
type Provider struct {
	client         *openai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
}

// New creates a new OpenAI provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Provider{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        cfg.Timeout,
	}, nil
}

// Complete produces a response for a message list.
func (p *Provider) Complete(
	ctx context.Context, messages []driven.ChatMessage, opts driven.CompletionOptions,
) (*driven.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, p.chatRequest(messages, opts))
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no response choices returned")
	}

	return &driven.Completion{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: driven.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Stream produces a response incrementally. Usage comes from the final stream chunk.
func (p *Provider) Stream(
	ctx context.Context, messages []driven.ChatMessage, opts driven.CompletionOptions, onDelta func(string) error,
) (*driven.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := p.chatRequest(messages, opts)
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai: open stream: %w", err)
	}
	defer stream.Close()

	result := &driven.Completion{Model: req.Model}
	var content strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("openai: read stream: %w", err)
		}
		if resp.Model != "" {
			result.Model = resp.Model
		}
		if resp.Usage != nil {
			result.Usage = driven.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		content.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return nil, err
			}
		}
	}

	result.Content = content.String()
	return result, nil
}

// Embed generates one vector per text.
func (p *Provider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if model == "" {
		model = p.embeddingModel
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			v[i] = float32(d.Embedding[i])
		}
		vectors[d.Index] = v
	}
	return vectors, nil
}

// ModelName returns the default chat model.
func (p *Provider) ModelName() string {
	return p.model
}

// Ping validates the API key by listing models.
func (p *Provider) Ping(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai: ping failed: %w", err)
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

func (p *Provider) chatRequest(messages []driven.ChatMessage, opts driven.CompletionOptions) openai.ChatCompletionRequest {
	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: chatMessages,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}
	return req
}

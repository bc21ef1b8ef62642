// Package gemini provides an LLM provider adapter using the Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.LLMProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultModel          = "gemini-2.0-flash"
	DefaultEmbeddingModel = "text-embedding-004"
	DefaultTimeout        = 120 * time.Second
)

// Config holds configuration for the Gemini provider.
type Config struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// Model is the chat model (default: gemini-2.0-flash).
	Model string

	// EmbeddingModel is the default embedding model (default: text-embedding-004).
	EmbeddingModel string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Provider implements chat, streaming and embeddings over the genai SDK.
type Provider struct {
	client         *genai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
}

// New creates a new Gemini provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
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

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Provider{
		client:         client,
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
	model, contents, config := p.request(messages, opts)

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: empty response")
	}

	result := &driven.Completion{Content: resp.Text(), Model: model}
	applyUsage(result, resp)
	return result, nil
}

// Stream produces a response incrementally.
func (p *Provider) Stream(
	ctx context.Context, messages []driven.ChatMessage, opts driven.CompletionOptions, onDelta func(string) error,
) (*driven.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	model, contents, config := p.request(messages, opts)

	result := &driven.Completion{Model: model}
	var content strings.Builder
	for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			return nil, fmt.Errorf("gemini: read stream: %w", err)
		}
		applyUsage(result, resp)
		delta := resp.Text()
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

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	resp, err := p.client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: expected %d embeddings", len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}

// ModelName returns the default chat model.
func (p *Provider) ModelName() string {
	return p.model
}

// Ping validates the API key by looking up the configured model.
func (p *Provider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.Get(ctx, p.model, nil); err != nil {
		return fmt.Errorf("gemini: ping failed: %w", err)
	}
	return nil
}

// Close releases resources. The genai client holds none.
func (p *Provider) Close() error {
	return nil
}

func (p *Provider) request(
	messages []driven.ChatMessage, opts driven.CompletionOptions,
) (string, []*genai.Content, *genai.GenerateContentConfig) {
	system, contents := toContents(messages)

	model := opts.Model
	if model == "" {
		model = p.model
	}
	config := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return model, contents, config
}

// toContents maps chat roles to Gemini roles. Assistant turns become "model".
func toContents(messages []driven.ChatMessage) (string, []*genai.Content) {
	system, rest := driven.SplitSystem(messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		role := genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}
	return system, contents
}

func applyUsage(result *driven.Completion, resp *genai.GenerateContentResponse) {
	if resp == nil {
		return
	}
	if resp.ModelVersion != "" {
		result.Model = resp.ModelVersion
	}
	if resp.UsageMetadata == nil {
		return
	}
	result.Usage = driven.TokenUsage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}

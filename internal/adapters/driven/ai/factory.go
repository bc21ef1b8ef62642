// Package ai provides factory functions for creating AI provider adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/ragline/internal/adapters/driven/llm/anthropic"
	"github.com/custodia-labs/ragline/internal/adapters/driven/llm/gemini"
	"github.com/custodia-labs/ragline/internal/adapters/driven/llm/ollama"
	"github.com/custodia-labs/ragline/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/ragline/internal/adapters/driven/vector/pinecone"
	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// constructor builds a provider from connection settings and the two model names.
type constructor func(ctx context.Context, p domain.ProviderSettings, chatModel, embeddingModel string) (driven.LLMProvider, error)

// constructors is keyed on the configured provider name.
var constructors = map[domain.AIProvider]constructor{
	domain.AIProviderOllama: func(_ context.Context, p domain.ProviderSettings, chat, embed string) (driven.LLMProvider, error) {
		return ollama.New(ollama.Config{BaseURL: p.BaseURL, Model: chat, EmbeddingModel: embed}), nil
	},
	domain.AIProviderOpenAI: func(_ context.Context, p domain.ProviderSettings, chat, embed string) (driven.LLMProvider, error) {
		return openai.New(openai.Config{APIKey: p.APIKey, BaseURL: p.BaseURL, Model: chat, EmbeddingModel: embed})
	},
	domain.AIProviderAnthropic: func(_ context.Context, p domain.ProviderSettings, chat, _ string) (driven.LLMProvider, error) {
		return anthropic.New(anthropic.Config{APIKey: p.APIKey, BaseURL: p.BaseURL, Model: chat})
	},
	domain.AIProviderGemini: func(ctx context.Context, p domain.ProviderSettings, chat, embed string) (driven.LLMProvider, error) {
		return gemini.New(ctx, gemini.Config{APIKey: p.APIKey, BaseURL: p.BaseURL, Model: chat, EmbeddingModel: embed})
	},
}

// InitResult contains the result of AI service initialisation.
type InitResult struct {
	LLM         driven.LLMProvider
	Embedder    driven.LLMProvider
	RemoteIndex driven.RemoteVectorIndex
	Warnings    []string // Non-fatal issues that caused fallback.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.LLM != nil {
		r.LLM.Close()
	}
	if r.Embedder != nil && r.Embedder != r.LLM {
		r.Embedder.Close()
	}
}

// Initialise creates and validates every configured AI service.
// Failures degrade to warnings, reported by the caller: chat without an LLM, ingestion without an
// embedder, and local vectors without a reachable remote index.
func Initialise(ctx context.Context, settings *domain.Settings) *InitResult {
	result := &InitResult{}

	embedder, err := CreateAndValidateEmbeddingProvider(ctx, &settings.Embedding)
	if err != nil {
		result.Warnings = append(result.Warnings, err.Error())
	}
	result.Embedder = embedder

	llm, err := CreateAndValidateLLMProvider(ctx, &settings.LLM)
	if err != nil {
		result.Warnings = append(result.Warnings, err.Error())
	}
	result.LLM = llm

	if settings.Pinecone.Enabled {
		index, err := CreateAndValidateRemoteIndex(ctx, &settings.Pinecone)
		if err != nil {
			result.Warnings = append(result.Warnings, err.Error())
		}
		result.RemoteIndex = index
	}

	return result
}

// CreateAndValidateEmbeddingProvider creates an embedding provider and validates connectivity.
func CreateAndValidateEmbeddingProvider(ctx context.Context, settings *domain.EmbeddingSettings) (driven.LLMProvider, error) {
	p, err := CreateEmbeddingProvider(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'ragline config set embedding.provider' to fix",
			domain.ErrEmbeddingUnavailable, err)
	}
	if p == nil {
		return nil, nil
	}
	if err := ping(ctx, p); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err)
	}
	return p, nil
}

// CreateAndValidateLLMProvider creates an LLM provider and validates connectivity.
func CreateAndValidateLLMProvider(ctx context.Context, settings *domain.LLMSettings) (driven.LLMProvider, error) {
	p, err := CreateLLMProvider(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'ragline config set llm.provider' to fix",
			domain.ErrLLMUnavailable, err)
	}
	if p == nil {
		return nil, nil
	}
	if err := ping(ctx, p); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrLLMUnavailable, err)
	}
	return p, nil
}

// CreateAndValidateRemoteIndex creates the Pinecone client and checks it answers.
func CreateAndValidateRemoteIndex(ctx context.Context, settings *domain.PineconeSettings) (driven.RemoteVectorIndex, error) {
	index, err := pinecone.FromSettings(*settings)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := index.DescribeStats(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRemoteIndexUnavailable, err)
	}
	return index, nil
}

// CreateEmbeddingProvider creates the provider named in settings for embeddings.
// Returns nil if the provider is not configured.
func CreateEmbeddingProvider(ctx context.Context, settings *domain.EmbeddingSettings) (driven.LLMProvider, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}
	if !settings.Provider.SupportsEmbeddings() {
		return nil, fmt.Errorf("%s does not support embeddings, use ollama, openai or gemini", settings.Provider)
	}
	return newProvider(ctx, settings.ProviderSettings, "", settings.Model)
}

// CreateLLMProvider creates the provider named in settings for chat.
// Returns nil if the provider is not configured.
func CreateLLMProvider(ctx context.Context, settings *domain.LLMSettings) (driven.LLMProvider, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}
	return newProvider(ctx, settings.ProviderSettings, settings.Model, "")
}

func newProvider(ctx context.Context, p domain.ProviderSettings, chatModel, embeddingModel string) (driven.LLMProvider, error) {
	build, ok := constructors[p.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s: %w", p.Provider, domain.ErrUnsupportedType)
	}
	return build(ctx, p, chatModel, embeddingModel)
}

func ping(ctx context.Context, p driven.LLMProvider) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p.Ping(ctx)
}

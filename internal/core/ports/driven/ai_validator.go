package driven

import (
	"context"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// AIConfigValidator validates AI provider configurations.
// Implementations verify that configurations are valid by testing connectivity
// to the underlying AI services.
type AIConfigValidator interface {
	// ValidateEmbedding validates an embedding configuration by pinging the provider.
	// Returns nil if configuration is valid or not configured.
	ValidateEmbedding(ctx context.Context, config *domain.EmbeddingSettings) error

	// ValidateLLM validates an LLM configuration by pinging the provider.
	// Returns nil if configuration is valid or not configured.
	ValidateLLM(ctx context.Context, config *domain.LLMSettings) error

	// ValidateRemoteIndex checks the remote vector index is reachable.
	// Returns nil if the index is disabled.
	ValidateRemoteIndex(ctx context.Context, config *domain.PineconeSettings) error
}

package ai

import (
	"context"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// Ensure ConfigValidator implements the interface.
var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// ConfigValidator validates AI provider configurations.
type ConfigValidator struct{}

// NewConfigValidator creates a new AI config validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// ValidateEmbedding validates an embedding configuration by pinging the provider.
func (v *ConfigValidator) ValidateEmbedding(ctx context.Context, config *domain.EmbeddingSettings) error {
	p, err := CreateAndValidateEmbeddingProvider(ctx, config)
	if p != nil {
		p.Close()
	}
	return err
}

// ValidateLLM validates an LLM configuration by pinging the provider.
func (v *ConfigValidator) ValidateLLM(ctx context.Context, config *domain.LLMSettings) error {
	p, err := CreateAndValidateLLMProvider(ctx, config)
	if p != nil {
		p.Close()
	}
	return err
}

// ValidateRemoteIndex checks the remote vector index is reachable.
func (v *ConfigValidator) ValidateRemoteIndex(ctx context.Context, config *domain.PineconeSettings) error {
	if config == nil || !config.Enabled {
		return nil
	}
	_, err := CreateAndValidateRemoteIndex(ctx, config)
	return err
}

package driving

import (
	"context"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// RetrievalService turns a natural-language query into ranked context passages.
type RetrievalService interface {
	// FindContext returns deduplicated, re-ranked, context-expanded results for query.
	FindContext(ctx context.Context, query string, ownerID int64, opts domain.ContextOptions) ([]domain.ContextResult, error)
}

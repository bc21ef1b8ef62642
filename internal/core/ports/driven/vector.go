package driven

import (
	"context"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// RemoteVectorIndex is a hosted nearest-neighbour index (Pinecone).
type RemoteVectorIndex interface {
	// Upsert inserts or replaces vectors by ID.
	Upsert(ctx context.Context, vectors []domain.VectorEntry) error

	// Query returns the topK nearest vectors matching filter, with metadata.
	Query(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]VectorMatch, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// DeleteAll removes every vector in the namespace.
	DeleteAll(ctx context.Context) error

	// Fetch returns vectors by ID, including values and metadata.
	Fetch(ctx context.Context, ids []string) ([]domain.VectorEntry, error)

	// ListIDs pages through vector IDs. An empty next token means the last page.
	ListIDs(ctx context.Context, limit int, token string) (ids []string, next string, err error)

	// DescribeStats reports index size.
	DescribeStats(ctx context.Context) (*IndexStats, error)
}

// VectorMatch is a remote similarity search result.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// IndexStats describes a remote index.
type IndexStats struct {
	TotalVectors int
	Dimension    int
	Namespaces   map[string]int
}

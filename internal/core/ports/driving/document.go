package driving

import (
	"context"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// IngestionService moves documents through the ingestion pipeline.
type IngestionService interface {
	// Enqueue records a pending document for later processing.
	Enqueue(ctx context.Context, req domain.DocumentRequest) (*domain.Document, error)

	// Requeue moves an existing document back to pending.
	Requeue(ctx context.Context, documentID int64) error

	// ProcessDocument loads, chunks, embeds and stores one document, purging prior chunks first.
	ProcessDocument(ctx context.Context, sourceRef string, sourceType domain.SourceType,
		documentID int64, opts domain.ProcessOptions) (*domain.ProcessResult, error)

	// ProcessQueue processes up to limit pending documents, oldest first.
	ProcessQueue(ctx context.Context, limit int) (*domain.QueueResult, error)

	// DeleteDocument removes a document with its chunks and embeddings.
	DeleteDocument(ctx context.Context, documentID int64) error

	// ListDocuments returns all documents.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// Stats reports store counts.
	Stats(ctx context.Context) (domain.DocumentStats, error)
}

package driven

import (
	"context"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// DocumentStore persists documents, chunks, embeddings and ownership links.
// Backed by SQLite.
type DocumentStore interface {
	// CreateDocument inserts a document and assigns its ID.
	CreateDocument(ctx context.Context, doc *domain.Document) error

	// SaveDocument updates an existing document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id int64) (*domain.Document, error)

	// DocumentExists reports whether a document row exists.
	DocumentExists(ctx context.Context, id int64) (bool, error)

	// UpdateStatus moves a document to status. A non-empty reason is stored as metadata["error"].
	UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus, reason string) error

	// ListPending returns up to limit pending documents, oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.Document, error)

	// ListDocuments returns all documents, newest first.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// DeleteDocument removes a document, its chunks and their embeddings.
	DeleteDocument(ctx context.Context, id int64) error

	// SaveChunk inserts a chunk, or updates it when ID is set, and returns its ID.
	SaveChunk(ctx context.Context, chunk *domain.Chunk) (int64, error)

	// GetChunk retrieves a specific chunk by ID.
	GetChunk(ctx context.Context, id int64) (*domain.Chunk, error)

	// GetChunks retrieves all chunks for a document ordered by chunk index.
	GetChunks(ctx context.Context, documentID int64) ([]domain.Chunk, error)

	// GetChunkRange retrieves chunks with fromIndex <= chunk_index <= toIndex, ordered.
	GetChunkRange(ctx context.Context, documentID int64, fromIndex, toIndex int) ([]domain.Chunk, error)

	// ListChunkIDs returns the IDs of every chunk owned by a document.
	ListChunkIDs(ctx context.Context, documentID int64) ([]int64, error)

	// ListChunks pages through chunks matching filter in ID order.
	ListChunks(ctx context.Context, filter ChunkFilter) ([]domain.Chunk, error)

	// DeleteChunks removes chunks by ID and returns the number removed.
	DeleteChunks(ctx context.Context, ids []int64) (int, error)

	// SaveEmbedding inserts or replaces the embedding for (ChunkID, Model).
	SaveEmbedding(ctx context.Context, emb *domain.Embedding) error

	// GetEmbedding returns the embedding for a chunk. An empty model matches the newest.
	GetEmbedding(ctx context.Context, chunkID int64, model string) (*domain.Embedding, error)

	// DeleteEmbeddings removes all embeddings for the chunks and returns the number removed.
	DeleteEmbeddings(ctx context.Context, chunkIDs []int64) (int, error)

	// SimilarityCandidates loads chunks with embeddings for a local search.
	// When ownerID is non-zero only chunks of documents linked to that owner are returned.
	SimilarityCandidates(ctx context.Context, ownerID int64, model string, filters domain.SearchFilters) ([]Candidate, error)

	// LinkDocument records that ownerID owns documentID.
	LinkDocument(ctx context.Context, ownerID, documentID int64) error

	// Stats returns aggregate counts.
	Stats(ctx context.Context) (domain.DocumentStats, error)

	// Clear removes chunks and embeddings, and documents too when includeDocuments is set.
	// Returns the number of rows removed per table.
	Clear(ctx context.Context, includeDocuments bool) (map[string]int, error)
}

// ChunkFilter selects chunks for batch processing.
type ChunkFilter struct {
	// AfterID returns chunks with ID greater than this value.
	AfterID int64

	// Limit caps the page size.
	Limit int

	// ContentTypes restricts to chunks whose content_type or source_type matches.
	ContentTypes []string

	// DocumentIDs restricts to chunks of these documents.
	DocumentIDs []int64
}

// Candidate is a chunk paired with its stored vector.
type Candidate struct {
	Chunk  domain.Chunk
	Vector []float32
}

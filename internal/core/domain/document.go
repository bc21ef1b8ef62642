package domain

import "time"

// DocumentStatus tracks a document through the ingestion state machine.
type DocumentStatus string

// Document states. Failed is terminal; a fresh ingestion request re-enters pending.
const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// IsValid returns true if the status is recognised.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentPending, DocumentProcessing, DocumentCompleted, DocumentFailed:
		return true
	default:
		return false
	}
}

// SourceType identifies where a document's content comes from.
type SourceType string

// Supported source types.
const (
	SourceFile SourceType = "file"
	SourceURL  SourceType = "url"
	SourcePost SourceType = "post"
)

// IsValid returns true if the source type is recognised.
func (t SourceType) IsValid() bool {
	return t == SourceFile || t == SourceURL || t == SourcePost
}

// Document represents a unit of source content.
// One document maps to zero or more chunks.
type Document struct {
	// ID is the unique identifier for the document.
	ID int64

	// Title is the human-readable title.
	Title string

	// SourceType is file, url or post.
	SourceType SourceType

	// SourceRef is the file path, URL or post ID the content is loaded from.
	SourceRef string

	// MIMEType is the detected content type.
	MIMEType string

	// Status is the ingestion state.
	Status DocumentStatus

	// ChatbotID is the owning chatbot, 0 when unowned.
	ChatbotID int64

	// Metadata contains arbitrary key-value pairs.
	// A failed document carries its failure reason under "error".
	Metadata map[string]any

	// CreatedAt is when the document was first requested.
	CreatedAt time.Time

	// UpdatedAt is when the document last changed state.
	UpdatedAt time.Time
}

// FailureReason returns the stored failure reason, if any.
func (d *Document) FailureReason() string {
	if d.Metadata == nil {
		return ""
	}
	reason, _ := d.Metadata["error"].(string)
	return reason
}

// Chunk represents a contiguous slice of a document's text.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID int64

	// DocumentID links to the parent Document.
	DocumentID int64

	// Content is the text content of this chunk.
	Content string

	// ChunkIndex is the 0-based position within the document.
	ChunkIndex int

	// Metadata describes the chunk's origin and position.
	Metadata ChunkMetadata

	// CreatedAt is when the chunk was stored.
	CreatedAt time.Time
}

// Embedding is a vector bound to a chunk for one model.
// At most one embedding exists per (ChunkID, Model).
type Embedding struct {
	// ID is the row identifier.
	ID int64

	// ChunkID links to the owning chunk.
	ChunkID int64

	// Vector is the embedding values.
	Vector []float32

	// Model is the embedding model identifier.
	Model string

	// CreatedAt is when the embedding was stored.
	CreatedAt time.Time
}

// VectorEntry is the remote index representation of a chunk and its embedding.
type VectorEntry struct {
	// ID is the decimal string form of the chunk ID.
	ID string

	// Values is the embedding vector.
	Values []float32

	// Metadata is a flat superset including document_id, content and chunk_index.
	Metadata map[string]any
}

// Post is a CMS record that can be ingested as a document.
type Post struct {
	ID        int64
	Title     string
	Content   string
	PostType  string
	Permalink string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentStats aggregates store counts for observability.
type DocumentStats struct {
	Embeddings    int
	Chunks        int
	Documents     int
	AvgChunkSize  float64
	RemoteVectors int
}

package driven

import (
	"context"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// ChunkSource is normalised text ready for chunking.
type ChunkSource struct {
	// DocumentID is the owning document.
	DocumentID int64

	// Text is the full normalised text.
	Text string

	// Base is copied into every chunk's metadata before position fields are set.
	Base domain.ChunkMetadata
}

// PostProcessor processes document text to produce chunks.
// PostProcessors are chained in a pipeline (e.g., chunking, whitespace cleanup).
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process takes a source and returns chunks.
	// A processor that creates chunks receives nil; later processors receive and return chunks.
	Process(ctx context.Context, src *ChunkSource, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline chains multiple PostProcessors.
type PostProcessorPipeline interface {
	// Process runs the source through all processors in order.
	// Returns the final chunks after all processing.
	Process(ctx context.Context, src *ChunkSource) ([]domain.Chunk, error)
}

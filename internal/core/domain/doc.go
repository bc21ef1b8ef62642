// Package domain defines the core business entities for ragline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A unit of source content moving through ingestion
//   - Chunk: A contiguous slice of a document's text
//   - Embedding: A vector bound to a chunk for one model
//   - Conversation and Message: Chat state for a chatbot
//   - MigrationLock, MigrationReport: Vector migration bookkeeping
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain

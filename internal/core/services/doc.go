// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The retrieval path is DocumentLoader, IngestionService, EmbeddingsGenerator,
// VectorStore and Retriever. ChatService answers on top of the Retriever, and
// MigrationService moves vectors between the local store and a remote index.
//
// Services are pure Go with no CGO.
package services

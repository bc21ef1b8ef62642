// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - DocumentStore: Documents, chunks, embeddings and ownership links
//   - ConversationStore: Conversations and messages
//   - ChatbotStore: Chatbot configuration
//   - OptionStore: Named settings (migration lock and log)
//   - Cache: Grouped key-value cache with TTLs
//   - Normaliser, NormaliserRegistry: Text extraction per MIME type
//   - PostProcessorPipeline: Chunking
//   - ConfigStore, PromptStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LLMProvider: Completion, streaming and embeddings. Without it, ingestion and chat are disabled.
//   - RemoteVectorIndex: Pinecone. Without it, vectors live in the local store.
//   - HTTPFetcher: URL loading. Without it, URL documents fail with FetchError.
//   - PostSource: CMS posts. Without it, post documents fail with NotFoundError.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven

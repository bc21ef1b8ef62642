// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. It implements multiple store interfaces through a single database connection:
//
//   - DocumentStore: documents, chunks, embeddings and ownership links
//   - ConversationStore: conversations and messages
//   - ChatbotStore: chatbot configuration
//   - PostSource: the local mirror of CMS posts
//   - OptionStore: named settings such as the migration lock
//   - SchedulerStore: scheduled task state and run history
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Each .up.sql file records its own version.
//
// Vectors are stored as base64 text of little-endian float32 values.
//
// # Data Location
//
// By default, the database is stored at ~/.ragline/data/ragline.db
package sqlite

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/logger"
)

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, title, source_type, source_ref, mime_type, status, chatbot_id, metadata, created_at, updated_at`

// CreateDocument inserts a document and assigns its ID.
func (s *documentStore) CreateDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil {
		return domain.ErrInvalidInput
	}
	metadataJSON, err := marshalMap(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = domain.DocumentPending
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (title, source_type, source_ref, mime_type, status, chatbot_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.Title, string(doc.SourceType), doc.SourceRef, doc.MIMEType, string(doc.Status),
		doc.ChatbotID, metadataJSON, formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading document id: %w", err)
	}
	doc.ID = id
	return nil
}

// SaveDocument updates an existing document.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == 0 {
		return domain.ErrInvalidInput
	}
	metadataJSON, err := marshalMap(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}
	doc.UpdatedAt = time.Now().UTC()

	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET
			title = ?, source_type = ?, source_ref = ?, mime_type = ?,
			status = ?, chatbot_id = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`, doc.Title, string(doc.SourceType), doc.SourceRef, doc.MIMEType, string(doc.Status),
		doc.ChatbotID, metadataJSON, formatTime(doc.UpdatedAt), doc.ID)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id int64) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

// DocumentExists reports whether a document row exists.
func (s *documentStore) DocumentExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.store.db.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking document: %w", err)
	}
	return true, nil
}

// UpdateStatus moves a document to status, recording or clearing the failure reason.
func (s *documentStore) UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus, reason string) error {
	if !status.IsValid() {
		return fmt.Errorf("status %q: %w", status, domain.ErrInvalidInput)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var metadataJSON string
	if err := tx.QueryRowContext(ctx, "SELECT metadata FROM documents WHERE id = ?", id).Scan(&metadataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("reading document metadata: %w", err)
	}

	metadata, err := unmarshalMap(metadataJSON)
	if err != nil {
		return fmt.Errorf("unmarshalling metadata: %w", err)
	}
	if reason != "" {
		if metadata == nil {
			metadata = make(map[string]any)
		}
		metadata["error"] = reason
	} else {
		delete(metadata, "error")
	}
	if metadataJSON, err = marshalMap(metadata); err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET status = ?, metadata = ?, updated_at = ? WHERE id = ?
	`, string(status), metadataJSON, formatTime(time.Now()), id); err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListPending returns up to limit pending documents, oldest first.
func (s *documentStore) ListPending(ctx context.Context, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE status = ?
		ORDER BY created_at, id
		LIMIT ?
	`, string(domain.DocumentPending), limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending documents: %w", err)
	}
	return collectDocuments(rows)
}

// ListDocuments returns all documents, newest first.
func (s *documentStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	return collectDocuments(rows)
}

// DeleteDocument removes a document; chunks, embeddings and links cascade.
func (s *documentStore) DeleteDocument(ctx context.Context, id int64) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// SaveChunk inserts a chunk, or updates it when ID is set.
func (s *documentStore) SaveChunk(ctx context.Context, chunk *domain.Chunk) (int64, error) {
	if chunk == nil || chunk.DocumentID == 0 {
		return 0, domain.ErrInvalidInput
	}
	metadataJSON, err := marshalMap(chunk.Metadata.Sanitized())
	if err != nil {
		return 0, fmt.Errorf("marshalling chunk metadata: %w", err)
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}

	if chunk.ID != 0 {
		res, err := s.store.db.ExecContext(ctx, `
			UPDATE chunks SET document_id = ?, content = ?, chunk_index = ?, metadata = ?
			WHERE id = ?
		`, chunk.DocumentID, chunk.Content, chunk.ChunkIndex, metadataJSON, chunk.ID)
		if err != nil {
			return 0, fmt.Errorf("updating chunk: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return chunk.ID, nil
		}
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO chunks (id, document_id, content, chunk_index, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, nullID(chunk.ID), chunk.DocumentID, chunk.Content, chunk.ChunkIndex, metadataJSON, formatTime(chunk.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("saving chunk: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading chunk id: %w", err)
	}
	chunk.ID = id
	return id, nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *documentStore) GetChunk(ctx context.Context, id int64) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, content, chunk_index, metadata, created_at
		FROM chunks WHERE id = ?
	`, id)

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return chunk, err
}

// GetChunks retrieves all chunks for a document ordered by chunk index.
func (s *documentStore) GetChunks(ctx context.Context, documentID int64) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, content, chunk_index, metadata, created_at
		FROM chunks WHERE document_id = ?
		ORDER BY chunk_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	return collectChunks(rows)
}

// GetChunkRange retrieves chunks with fromIndex <= chunk_index <= toIndex.
func (s *documentStore) GetChunkRange(ctx context.Context, documentID int64, fromIndex, toIndex int) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, content, chunk_index, metadata, created_at
		FROM chunks WHERE document_id = ? AND chunk_index BETWEEN ? AND ?
		ORDER BY chunk_index
	`, documentID, fromIndex, toIndex)
	if err != nil {
		return nil, fmt.Errorf("querying chunk range: %w", err)
	}
	return collectChunks(rows)
}

// ListChunkIDs returns the IDs of every chunk owned by a document.
func (s *documentStore) ListChunkIDs(ctx context.Context, documentID int64) ([]int64, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT id FROM chunks WHERE document_id = ? ORDER BY chunk_index", documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []int64 //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk ids: %w", err)
	}
	return ids, nil
}

// ListChunks pages through chunks matching filter in ID order.
func (s *documentStore) ListChunks(ctx context.Context, filter driven.ChunkFilter) ([]domain.Chunk, error) {
	query := `
		SELECT c.id, c.document_id, c.content, c.chunk_index, c.metadata, c.created_at
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.id > ?`
	args := []any{filter.AfterID}

	if len(filter.DocumentIDs) > 0 {
		in, inArgs := inClause(filter.DocumentIDs)
		query += ` AND c.document_id IN (` + in + `)`
		args = append(args, inArgs...)
	}
	if len(filter.ContentTypes) > 0 {
		in, inArgs := inClause(filter.ContentTypes)
		query += ` AND (json_extract(c.metadata, '$.content_type') IN (` + in + `) OR d.source_type IN (` + in + `))`
		args = append(args, inArgs...)
		args = append(args, inArgs...)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY c.id LIMIT ?`
	args = append(args, limit)

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	return collectChunks(rows)
}

// DeleteChunks removes chunks by ID; their embeddings cascade.
func (s *documentStore) DeleteChunks(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in, args := inClause(ids)
	res, err := s.store.db.ExecContext(ctx, `DELETE FROM chunks WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SaveEmbedding inserts or replaces the embedding for (ChunkID, Model).
func (s *documentStore) SaveEmbedding(ctx context.Context, emb *domain.Embedding) error {
	if emb == nil || emb.ChunkID == 0 || len(emb.Vector) == 0 {
		return domain.ErrInvalidInput
	}
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now().UTC()
	}

	err := s.store.db.QueryRowContext(ctx, `
		INSERT INTO embeddings (chunk_id, vector, model, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id, model) DO UPDATE SET
			vector = excluded.vector,
			created_at = excluded.created_at
		RETURNING id
	`, emb.ChunkID, domain.EncodeVector(emb.Vector), emb.Model, formatTime(emb.CreatedAt)).Scan(&emb.ID)
	if err != nil {
		return fmt.Errorf("saving embedding: %w", err)
	}
	return nil
}

// GetEmbedding returns the embedding for a chunk. An empty model matches the newest.
func (s *documentStore) GetEmbedding(ctx context.Context, chunkID int64, model string) (*domain.Embedding, error) {
	query := `SELECT id, chunk_id, vector, model, created_at FROM embeddings WHERE chunk_id = ?`
	args := []any{chunkID}
	if model != "" {
		query += ` AND model = ?`
		args = append(args, model)
	}
	query += ` ORDER BY id DESC LIMIT 1`

	var emb domain.Embedding
	var vector, createdAt string
	err := s.store.db.QueryRowContext(ctx, query, args...).
		Scan(&emb.ID, &emb.ChunkID, &vector, &emb.Model, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning embedding: %w", err)
	}

	if emb.Vector, err = domain.DecodeVector(vector); err != nil {
		return nil, fmt.Errorf("decoding embedding %d: %w", emb.ID, err)
	}
	emb.CreatedAt = parseTime(createdAt)
	return &emb, nil
}

// DeleteEmbeddings removes all embeddings for the chunks.
func (s *documentStore) DeleteEmbeddings(ctx context.Context, chunkIDs []int64) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}
	in, args := inClause(chunkIDs)
	res, err := s.store.db.ExecContext(ctx, `DELETE FROM embeddings WHERE chunk_id IN (`+in+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting embeddings: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SimilarityCandidates loads chunks with embeddings for a local search.
// Filters are matched against the flat chunk metadata.
func (s *documentStore) SimilarityCandidates(
	ctx context.Context, ownerID int64, model string, filters domain.SearchFilters,
) ([]driven.Candidate, error) {
	query := `
		SELECT c.id, c.document_id, c.content, c.chunk_index, c.metadata, c.created_at, e.vector
		FROM chunks c
		JOIN embeddings e ON e.chunk_id = c.id`
	var args []any
	if ownerID != 0 {
		query += `
		JOIN content_relationships r ON r.document_id = c.document_id AND r.owner_id = ?`
		args = append(args, ownerID)
	}
	if model != "" {
		query += ` WHERE e.model = ?`
		args = append(args, model)
	} else {
		query += ` WHERE e.id = (SELECT MAX(id) FROM embeddings WHERE chunk_id = c.id)`
	}
	query += ` ORDER BY c.id`

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	var candidates []driven.Candidate //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		var metadataJSON, createdAt, vector string
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &chunk.ChunkIndex,
			&metadataJSON, &createdAt, &vector); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		if err := fillChunk(&chunk, metadataJSON, createdAt); err != nil {
			return nil, err
		}
		if !filters.Match(chunk.Metadata) {
			continue
		}
		values, err := domain.DecodeVector(vector)
		if err != nil {
			logger.Warn("skipping chunk %d: %v", chunk.ID, err)
			continue
		}
		candidates = append(candidates, driven.Candidate{Chunk: chunk, Vector: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}
	return candidates, nil
}

// LinkDocument records that ownerID owns documentID.
func (s *documentStore) LinkDocument(ctx context.Context, ownerID, documentID int64) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO content_relationships (owner_id, document_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(owner_id, document_id) DO NOTHING
	`, ownerID, documentID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("linking document: %w", err)
	}
	return nil
}

// Stats returns aggregate counts.
func (s *documentStore) Stats(ctx context.Context) (domain.DocumentStats, error) {
	var stats domain.DocumentStats
	err := s.store.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM embeddings),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM documents),
			(SELECT COALESCE(AVG(LENGTH(content)), 0) FROM chunks)
	`).Scan(&stats.Embeddings, &stats.Chunks, &stats.Documents, &stats.AvgChunkSize)
	if err != nil {
		return stats, fmt.Errorf("reading stats: %w", err)
	}
	return stats, nil
}

// Clear removes chunks and embeddings, and documents too when includeDocuments is set.
func (s *documentStore) Clear(ctx context.Context, includeDocuments bool) (map[string]int, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	tables := []string{"embeddings", "chunks"}
	if includeDocuments {
		tables = append(tables, "content_relationships", "documents")
	}

	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table)
		if err != nil {
			return nil, fmt.Errorf("clearing %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		counts[table] = int(n)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return counts, nil
}

// ==================== Document Helpers ====================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var sourceType, status, metadataJSON, createdAt, updatedAt string
	if err := row.Scan(&doc.ID, &doc.Title, &sourceType, &doc.SourceRef, &doc.MIMEType,
		&status, &doc.ChatbotID, &metadataJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	metadata, err := unmarshalMap(metadataJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling metadata: %w", err)
	}
	doc.SourceType = domain.SourceType(sourceType)
	doc.Status = domain.DocumentStatus(status)
	doc.Metadata = metadata
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var metadataJSON, createdAt string
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &chunk.ChunkIndex,
		&metadataJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	if err := fillChunk(&chunk, metadataJSON, createdAt); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// fillChunk decodes the metadata column and restores the column-backed fields.
func fillChunk(chunk *domain.Chunk, metadataJSON, createdAt string) error {
	flat, err := unmarshalMap(metadataJSON)
	if err != nil {
		return fmt.Errorf("unmarshalling chunk metadata: %w", err)
	}
	chunk.Metadata = domain.ChunkMetadataFromMap(flat)
	chunk.Metadata.DocumentID = chunk.DocumentID
	chunk.Metadata.ChunkIndex = chunk.ChunkIndex
	chunk.CreatedAt = parseTime(createdAt)
	return nil
}

func collectChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// nullID lets SQLite assign the row ID when id is zero.
func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

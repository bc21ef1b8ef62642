package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

type embeddingKey struct {
	chunkID int64
	model   string
}

// DocumentStore is an in-memory implementation of driven.DocumentStore.
type DocumentStore struct {
	mu         sync.RWMutex
	documents  map[int64]domain.Document
	chunks     map[int64]domain.Chunk
	embeddings map[embeddingKey]domain.Embedding
	links      map[int64]map[int64]bool // owner -> documents
	nextDocID  int64
	nextChunk  int64
	nextEmbID  int64
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents:  make(map[int64]domain.Document),
		chunks:     make(map[int64]domain.Chunk),
		embeddings: make(map[embeddingKey]domain.Embedding),
		links:      make(map[int64]map[int64]bool),
	}
}

// CreateDocument inserts a document and assigns its ID.
func (s *DocumentStore) CreateDocument(_ context.Context, doc *domain.Document) error {
	if doc == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextDocID++
	doc.ID = s.nextDocID
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = domain.DocumentPending
	}
	s.documents[doc.ID] = copyDocument(*doc)
	return nil
}

// SaveDocument updates an existing document.
func (s *DocumentStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	if doc == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[doc.ID]; !ok {
		return domain.ErrNotFound
	}
	doc.UpdatedAt = time.Now().UTC()
	s.documents[doc.ID] = copyDocument(*doc)
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id int64) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc = copyDocument(doc)
	return &doc, nil
}

// DocumentExists reports whether a document exists.
func (s *DocumentStore) DocumentExists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.documents[id]
	return ok, nil
}

// UpdateStatus moves a document to status, recording or clearing the failure reason.
func (s *DocumentStore) UpdateStatus(_ context.Context, id int64, status domain.DocumentStatus, reason string) error {
	if !status.IsValid() {
		return fmt.Errorf("status %q: %w", status, domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc = copyDocument(doc)
	doc.Status = status
	if reason != "" {
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]any)
		}
		doc.Metadata["error"] = reason
	} else {
		delete(doc.Metadata, "error")
	}
	doc.UpdatedAt = time.Now().UTC()
	s.documents[id] = doc
	return nil
}

// ListPending returns up to limit pending documents, oldest first.
func (s *DocumentStore) ListPending(_ context.Context, limit int) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []domain.Document
	for _, doc := range s.documents {
		if doc.Status == domain.DocumentPending {
			docs = append(docs, copyDocument(doc))
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// ListDocuments returns all documents, newest first.
func (s *DocumentStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]domain.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, copyDocument(doc))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID > docs[j].ID })
	return docs, nil
}

// DeleteDocument removes a document, its chunks, their embeddings and its links.
func (s *DocumentStore) DeleteDocument(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.documents, id)
	for chunkID, chunk := range s.chunks {
		if chunk.DocumentID == id {
			s.deleteChunkLocked(chunkID)
		}
	}
	for _, docs := range s.links {
		delete(docs, id)
	}
	return nil
}

// SaveChunk inserts a chunk, or updates it when ID is set.
func (s *DocumentStore) SaveChunk(_ context.Context, chunk *domain.Chunk) (int64, error) {
	if chunk == nil || chunk.DocumentID == 0 {
		return 0, domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[chunk.DocumentID]; !ok {
		return 0, fmt.Errorf("saving chunk: document %d: %w", chunk.DocumentID, domain.ErrNotFound)
	}
	if chunk.ID == 0 {
		s.nextChunk++
		chunk.ID = s.nextChunk
	} else if chunk.ID > s.nextChunk {
		s.nextChunk = chunk.ID
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}

	stored := *chunk
	stored.Metadata = domain.ChunkMetadataFromMap(chunk.Metadata.Sanitized())
	stored.Metadata.DocumentID = chunk.DocumentID
	stored.Metadata.ChunkIndex = chunk.ChunkIndex
	s.chunks[chunk.ID] = stored
	return chunk.ID, nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *DocumentStore) GetChunk(_ context.Context, id int64) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &chunk, nil
}

// GetChunks retrieves all chunks for a document ordered by chunk index.
func (s *DocumentStore) GetChunks(_ context.Context, documentID int64) ([]domain.Chunk, error) {
	return s.chunksWhere(func(c domain.Chunk) bool { return c.DocumentID == documentID }), nil
}

// GetChunkRange retrieves chunks with fromIndex <= chunk_index <= toIndex.
func (s *DocumentStore) GetChunkRange(_ context.Context, documentID int64, fromIndex, toIndex int) ([]domain.Chunk, error) {
	return s.chunksWhere(func(c domain.Chunk) bool {
		return c.DocumentID == documentID && c.ChunkIndex >= fromIndex && c.ChunkIndex <= toIndex
	}), nil
}

// ListChunkIDs returns the IDs of every chunk owned by a document.
func (s *DocumentStore) ListChunkIDs(ctx context.Context, documentID int64) ([]int64, error) {
	chunks, _ := s.GetChunks(ctx, documentID)
	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids, nil
}

// ListChunks pages through chunks matching filter in ID order.
func (s *DocumentStore) ListChunks(_ context.Context, filter driven.ChunkFilter) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Chunk
	for _, c := range s.chunks {
		if c.ID <= filter.AfterID {
			continue
		}
		if len(filter.DocumentIDs) > 0 && !containsInt64(filter.DocumentIDs, c.DocumentID) {
			continue
		}
		if len(filter.ContentTypes) > 0 {
			sourceType := string(s.documents[c.DocumentID].SourceType)
			if !containsString(filter.ContentTypes, c.Metadata.ContentType) && !containsString(filter.ContentTypes, sourceType) {
				continue
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeleteChunks removes chunks by ID and their embeddings.
func (s *DocumentStore) DeleteChunks(_ context.Context, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if _, ok := s.chunks[id]; ok {
			s.deleteChunkLocked(id)
			removed++
		}
	}
	return removed, nil
}

// SaveEmbedding inserts or replaces the embedding for (ChunkID, Model).
func (s *DocumentStore) SaveEmbedding(_ context.Context, emb *domain.Embedding) error {
	if emb == nil || emb.ChunkID == 0 || len(emb.Vector) == 0 {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chunks[emb.ChunkID]; !ok {
		return fmt.Errorf("saving embedding: chunk %d: %w", emb.ChunkID, domain.ErrNotFound)
	}
	key := embeddingKey{chunkID: emb.ChunkID, model: emb.Model}
	if existing, ok := s.embeddings[key]; ok {
		emb.ID = existing.ID
	} else {
		s.nextEmbID++
		emb.ID = s.nextEmbID
	}
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now().UTC()
	}
	stored := *emb
	stored.Vector = append([]float32(nil), emb.Vector...)
	s.embeddings[key] = stored
	return nil
}

// GetEmbedding returns the embedding for a chunk. An empty model matches the newest.
func (s *DocumentStore) GetEmbedding(_ context.Context, chunkID int64, model string) (*domain.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emb, ok := s.embeddingLocked(chunkID, model)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &emb, nil
}

// DeleteEmbeddings removes all embeddings for the chunks.
func (s *DocumentStore) DeleteEmbeddings(_ context.Context, chunkIDs []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.embeddings {
		if containsInt64(chunkIDs, key.chunkID) {
			delete(s.embeddings, key)
			removed++
		}
	}
	return removed, nil
}

// SimilarityCandidates loads chunks with embeddings for a local search.
func (s *DocumentStore) SimilarityCandidates(
	_ context.Context, ownerID int64, model string, filters domain.SearchFilters,
) ([]driven.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []driven.Candidate
	for _, c := range s.chunks {
		if ownerID != 0 && !s.links[ownerID][c.DocumentID] {
			continue
		}
		emb, ok := s.embeddingLocked(c.ID, model)
		if !ok || !filters.Match(c.Metadata) {
			continue
		}
		out = append(out, driven.Candidate{Chunk: c, Vector: append([]float32(nil), emb.Vector...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chunk.ID < out[j].Chunk.ID })
	return out, nil
}

// LinkDocument records that ownerID owns documentID.
func (s *DocumentStore) LinkDocument(_ context.Context, ownerID, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.links[ownerID] == nil {
		s.links[ownerID] = make(map[int64]bool)
	}
	s.links[ownerID][documentID] = true
	return nil
}

// Stats returns aggregate counts.
func (s *DocumentStore) Stats(_ context.Context) (domain.DocumentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DocumentStats{
		Embeddings: len(s.embeddings),
		Chunks:     len(s.chunks),
		Documents:  len(s.documents),
	}
	if len(s.chunks) > 0 {
		total := 0
		for _, c := range s.chunks {
			total += len(c.Content)
		}
		stats.AvgChunkSize = float64(total) / float64(len(s.chunks))
	}
	return stats, nil
}

// Clear removes chunks and embeddings, and documents too when includeDocuments is set.
func (s *DocumentStore) Clear(_ context.Context, includeDocuments bool) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[string]int{
		"embeddings": len(s.embeddings),
		"chunks":     len(s.chunks),
	}
	s.embeddings = make(map[embeddingKey]domain.Embedding)
	s.chunks = make(map[int64]domain.Chunk)

	if includeDocuments {
		links := 0
		for _, docs := range s.links {
			links += len(docs)
		}
		counts["content_relationships"] = links
		counts["documents"] = len(s.documents)
		s.links = make(map[int64]map[int64]bool)
		s.documents = make(map[int64]domain.Document)
	}
	return counts, nil
}

func (s *DocumentStore) chunksWhere(keep func(domain.Chunk) bool) []domain.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Chunk
	for _, c := range s.chunks {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

func (s *DocumentStore) embeddingLocked(chunkID int64, model string) (domain.Embedding, bool) {
	if model != "" {
		emb, ok := s.embeddings[embeddingKey{chunkID: chunkID, model: model}]
		return emb, ok
	}
	var newest domain.Embedding
	found := false
	for key, emb := range s.embeddings {
		if key.chunkID == chunkID && (!found || emb.ID > newest.ID) {
			newest, found = emb, true
		}
	}
	return newest, found
}

func (s *DocumentStore) deleteChunkLocked(id int64) {
	delete(s.chunks, id)
	for key := range s.embeddings {
		if key.chunkID == id {
			delete(s.embeddings, key)
		}
	}
}

func copyDocument(doc domain.Document) domain.Document {
	if doc.Metadata != nil {
		m := make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			m[k] = v
		}
		doc.Metadata = m
	}
	return doc
}

func containsInt64(values []int64, v int64) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

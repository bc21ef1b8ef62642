package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

func createDoc(t *testing.T, s *DocumentStore, ref string) *domain.Document {
	t.Helper()
	doc := &domain.Document{Title: ref, SourceType: domain.SourceFile, SourceRef: ref}
	require.NoError(t, s.CreateDocument(context.Background(), doc))
	return doc
}

func addChunk(t *testing.T, s *DocumentStore, docID int64, index int, content string, vector []float32) int64 {
	t.Helper()
	ctx := context.Background()
	chunk := &domain.Chunk{
		DocumentID: docID,
		ChunkIndex: index,
		Content:    content,
		Metadata:   domain.ChunkMetadata{ContentType: "page", Extra: map[string]any{"lang": "en"}},
	}
	id, err := s.SaveChunk(ctx, chunk)
	require.NoError(t, err)
	if vector != nil {
		require.NoError(t, s.SaveEmbedding(ctx, &domain.Embedding{ChunkID: id, Vector: vector, Model: "m1"}))
	}
	return id
}

func TestDocumentStore_CreateAndGet(t *testing.T) {
	s := NewDocumentStore()
	doc := createDoc(t, s, "/tmp/a.txt")

	assert.Equal(t, int64(1), doc.ID)
	assert.Equal(t, domain.DocumentPending, doc.Status)

	got, err := s.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.txt", got.SourceRef)

	_, err = s.GetDocument(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	exists, err := s.DocumentExists(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDocumentStore_SaveDocumentMissing(t *testing.T) {
	s := NewDocumentStore()
	err := s.SaveDocument(context.Background(), &domain.Document{ID: 5})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.CreateDocument(context.Background(), nil), domain.ErrInvalidInput)
}

func TestDocumentStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()
	doc := createDoc(t, s, "a")

	require.NoError(t, s.UpdateStatus(ctx, doc.ID, domain.DocumentFailed, "boom"))
	got, _ := s.GetDocument(ctx, doc.ID)
	assert.Equal(t, domain.DocumentFailed, got.Status)
	assert.Equal(t, "boom", got.FailureReason())

	require.NoError(t, s.UpdateStatus(ctx, doc.ID, domain.DocumentPending, ""))
	got, _ = s.GetDocument(ctx, doc.ID)
	assert.Empty(t, got.FailureReason())

	assert.ErrorIs(t, s.UpdateStatus(ctx, doc.ID, "bogus", ""), domain.ErrInvalidInput)
	assert.ErrorIs(t, s.UpdateStatus(ctx, 42, domain.DocumentCompleted, ""), domain.ErrNotFound)
}

func TestDocumentStore_ReturnedDocumentIsACopy(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()
	doc := &domain.Document{SourceType: domain.SourceURL, Metadata: map[string]any{"k": "v"}}
	require.NoError(t, s.CreateDocument(ctx, doc))

	got, _ := s.GetDocument(ctx, doc.ID)
	got.Metadata["k"] = "changed"

	again, _ := s.GetDocument(ctx, doc.ID)
	assert.Equal(t, "v", again.Metadata["k"])
}

func TestDocumentStore_ListPending(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()
	a := createDoc(t, s, "a")
	b := createDoc(t, s, "b")
	c := createDoc(t, s, "c")
	require.NoError(t, s.UpdateStatus(ctx, b.ID, domain.DocumentCompleted, ""))

	pending, err := s.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a.ID, pending[0].ID)
	assert.Equal(t, c.ID, pending[1].ID)

	pending, _ = s.ListPending(ctx, 1)
	assert.Len(t, pending, 1)

	all, _ := s.ListDocuments(ctx)
	require.Len(t, all, 3)
	assert.Equal(t, c.ID, all[0].ID)
}

func TestDocumentStore_Chunks(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()
	doc := createDoc(t, s, "a")
	for i := 0; i < 4; i++ {
		addChunk(t, s, doc.ID, i, "chunk", nil)
	}

	chunks, err := s.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, doc.ID, c.Metadata.DocumentID)
		assert.Equal(t, "en", c.Metadata.Extra["lang"])
	}

	window, err := s.GetChunkRange(ctx, doc.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, 1, window[0].ChunkIndex)

	ids, _ := s.ListChunkIDs(ctx, doc.ID)
	assert.Len(t, ids, 4)

	_, err = s.SaveChunk(ctx, &domain.Chunk{DocumentID: 77, Content: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_EmbeddingPerModel(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()
	doc := createDoc(t, s, "a")
	id := addChunk(t, s, doc.ID, 0, "text", []float32{1, 0})

	require.NoError(t, s.SaveEmbedding(ctx, &domain.Embedding{ChunkID: id, Vector: []float32{0, 1}, Model: "m1"}))
	require.NoError(t, s.SaveEmbedding(ctx, &domain.Embedding{ChunkID: id, Vector: []float32{0.5, 0.5}, Model: "m2"}))

	emb, err := s.GetEmbedding(ctx, id, "m1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, emb.Vector)

	newest, err := s.GetEmbedding(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, "m2", newest.Model)

	stats, _ := s.Stats(ctx)
	assert.Equal(t, 2, stats.Embeddings)

	removed, err := s.DeleteEmbeddings(ctx, []int64{id})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	_, err = s.GetEmbedding(ctx, id, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_SimilarityCandidates(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()
	owned := createDoc(t, s, "owned")
	other := createDoc(t, s, "other")
	addChunk(t, s, owned.ID, 0, "owned", []float32{1, 0})
	addChunk(t, s, other.ID, 0, "other", []float32{0, 1})
	addChunk(t, s, other.ID, 1, "no vector", nil)
	require.NoError(t, s.LinkDocument(ctx, 7, owned.ID))

	all, err := s.SimilarityCandidates(ctx, 0, "m1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := s.SimilarityCandidates(ctx, 7, "m1", nil)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "owned", scoped[0].Chunk.Content)

	filtered, err := s.SimilarityCandidates(ctx, 0, "", domain.SearchFilters{"lang": "fr"})
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestDocumentStore_ListChunks(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()
	doc := createDoc(t, s, "a")
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, addChunk(t, s, doc.ID, i, "c", nil))
	}

	page, err := s.ListChunks(ctx, driven.ChunkFilter{AfterID: ids[1], Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)

	byType, _ := s.ListChunks(ctx, driven.ChunkFilter{ContentTypes: []string{"file"}})
	assert.Len(t, byType, 5)

	none, _ := s.ListChunks(ctx, driven.ChunkFilter{ContentTypes: []string{"product"}})
	assert.Empty(t, none)
}

func TestDocumentStore_DeleteDocumentCascades(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()
	doc := createDoc(t, s, "a")
	addChunk(t, s, doc.ID, 0, "x", []float32{1})
	require.NoError(t, s.LinkDocument(ctx, 3, doc.ID))

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	stats, _ := s.Stats(ctx)
	assert.Equal(t, domain.DocumentStats{}, stats)
	candidates, _ := s.SimilarityCandidates(ctx, 3, "", nil)
	assert.Empty(t, candidates)
}

func TestDocumentStore_StatsAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStore()
	doc := createDoc(t, s, "a")
	addChunk(t, s, doc.ID, 0, "ab", []float32{1})
	addChunk(t, s, doc.ID, 1, "abcd", []float32{1})
	require.NoError(t, s.LinkDocument(ctx, 1, doc.ID))

	stats, _ := s.Stats(ctx)
	assert.Equal(t, 3.0, stats.AvgChunkSize)

	counts, err := s.Clear(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"embeddings": 2, "chunks": 2}, counts)

	exists, _ := s.DocumentExists(ctx, doc.ID)
	assert.True(t, exists)

	counts, err = s.Clear(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["documents"])
	assert.Equal(t, 1, counts["content_relationships"])
}

package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memcache "github.com/custodia-labs/ragline/internal/adapters/driven/cache/memory"
	memstore "github.com/custodia-labs/ragline/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/postprocessors"
)

type ingestionFixture struct {
	dir       string
	docs      *memstore.DocumentStore
	llm       *mockLLM
	remote    *mockRemoteIndex
	vectors   *VectorStore
	ingestion *IngestionService
	retriever *Retriever
}

func newIngestionFixture(t *testing.T, remote bool) *ingestionFixture {
	t.Helper()
	dir := t.TempDir()
	docs := memstore.NewDocumentStore()
	cache := memcache.New()
	llm := newMockLLM()

	f := &ingestionFixture{dir: dir, docs: docs, llm: llm}
	if remote {
		f.remote = newMockRemoteIndex()
		f.vectors = NewVectorStore(docs, f.remote, cache, time.Hour, false)
	} else {
		f.vectors = NewVectorStore(docs, nil, cache, time.Hour, false)
	}

	pipeline, err := postprocessors.DefaultPipeline(domain.ChunkingSettings{Size: 120, Overlap: 20})
	require.NoError(t, err)

	loader := NewDocumentLoader(domain.LoaderSettings{AllowedDirs: []string{dir}}, newTestRegistry(), &mockFetcher{}, memstore.NewPostStore())
	embedder := NewEmbeddingsGenerator(llm, cache, domain.EmbeddingSettings{
		ProviderSettings: domain.ProviderSettings{Model: "test-embed"},
		BatchSize:        4,
	}, time.Hour)

	f.ingestion = NewIngestionService(docs, loader, pipeline, embedder, f.vectors)
	f.retriever = NewRetriever(embedder, f.vectors, docs, cache, domain.RetrievalSettings{
		MaxResults:     3,
		MinSimilarity:  0.05,
		DedupThreshold: 0.95,
		ContextWindow:  1,
	}, time.Hour)
	return f
}

// handbook returns text long enough to produce several chunks.
func handbook() string {
	sections := []string{
		"Vacation policy: employees receive twenty five vacation days per year.",
		"Sick leave: notify your manager before ten in the morning.",
		"Expenses: submit receipts within thirty days through the portal.",
		"Equipment: laptops are replaced every three years.",
		"Remote work: up to three remote days per week are allowed.",
	}
	return strings.Join(sections, "\n\n")
}

func (f *ingestionFixture) enqueueFile(t *testing.T, name, content string, chatbotID int64) *domain.Document {
	t.Helper()
	path := writeFile(t, f.dir, name, content)
	doc, err := f.ingestion.Enqueue(context.Background(), domain.DocumentRequest{
		SourceType: domain.SourceFile,
		SourceRef:  path,
		ChatbotID:  chatbotID,
	})
	require.NoError(t, err)
	return doc
}

func TestIngestionService_Enqueue(t *testing.T) {
	f := newIngestionFixture(t, false)
	ctx := context.Background()

	doc, err := f.ingestion.Enqueue(ctx, domain.DocumentRequest{SourceType: domain.SourceURL, SourceRef: " https://example.com ", ChatbotID: 2})
	require.NoError(t, err)
	assert.NotZero(t, doc.ID)
	assert.Equal(t, domain.DocumentPending, doc.Status)
	assert.Equal(t, "https://example.com", doc.SourceRef)

	pending, err := f.docs.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = f.ingestion.Enqueue(ctx, domain.DocumentRequest{SourceType: "ftp", SourceRef: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.ingestion.Enqueue(ctx, domain.DocumentRequest{SourceType: domain.SourceFile, SourceRef: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIngestionService_ProcessDocument(t *testing.T) {
	f := newIngestionFixture(t, false)
	ctx := context.Background()
	doc := f.enqueueFile(t, "handbook.txt", handbook(), 0)

	result, err := f.ingestion.ProcessDocument(ctx, doc.SourceRef, doc.SourceType, doc.ID, domain.ProcessOptions{})
	require.NoError(t, err)
	assert.Greater(t, result.Chunks, 1)
	assert.Equal(t, result.Chunks, result.Embeddings)
	assert.False(t, result.Updated)

	stored, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentCompleted, stored.Status)
	assert.Equal(t, "text/plain", stored.MIMEType)
	assert.Equal(t, "handbook", stored.Title)
}

func TestIngestionService_ProcessDocument_ChunkOrdering(t *testing.T) {
	f := newIngestionFixture(t, false)
	ctx := context.Background()
	doc := f.enqueueFile(t, "handbook.txt", handbook(), 0)

	_, err := f.ingestion.ProcessDocument(ctx, doc.SourceRef, doc.SourceType, doc.ID, domain.ProcessOptions{})
	require.NoError(t, err)

	chunks, err := f.docs.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	text := handbook()
	lastPos := -1
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex, "indices are contiguous from zero")
		assert.Equal(t, len(chunks), c.Metadata.TotalChunks)

		head := strings.Fields(c.Content)[0]
		pos := strings.Index(text[max(lastPos, 0):], head)
		require.GreaterOrEqual(t, pos, 0, "chunk %d follows the previous one in the source", i)
		lastPos = max(lastPos, 0) + pos
	}
}

func TestIngestionService_ProcessDocument_Idempotent(t *testing.T) {
	f := newIngestionFixture(t, false)
	ctx := context.Background()
	doc := f.enqueueFile(t, "handbook.txt", handbook(), 0)

	first, err := f.ingestion.ProcessDocument(ctx, doc.SourceRef, doc.SourceType, doc.ID, domain.ProcessOptions{})
	require.NoError(t, err)
	before, err := f.docs.Stats(ctx)
	require.NoError(t, err)

	second, err := f.ingestion.ProcessDocument(ctx, doc.SourceRef, doc.SourceType, doc.ID, domain.ProcessOptions{})
	require.NoError(t, err)
	assert.True(t, second.Updated)
	assert.Equal(t, first.Chunks, second.Chunks)

	after, err := f.docs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Chunks, after.Chunks, "re-ingestion replaces chunks")
	assert.Equal(t, before.Embeddings, after.Embeddings, "re-ingestion replaces embeddings")

	chunks, err := f.docs.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, second.Chunks)
}

func TestIngestionService_ProcessDocument_IdempotentRemote(t *testing.T) {
	f := newIngestionFixture(t, true)
	ctx := context.Background()
	doc := f.enqueueFile(t, "handbook.txt", handbook(), 4)

	first, err := f.ingestion.ProcessDocument(ctx, doc.SourceRef, doc.SourceType, doc.ID, domain.ProcessOptions{})
	require.NoError(t, err)
	require.Equal(t, first.Chunks, f.remote.count())

	_, err = f.ingestion.ProcessDocument(ctx, doc.SourceRef, doc.SourceType, doc.ID, domain.ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.Chunks, f.remote.count(), "old remote vectors are deleted before re-upload")
}

func TestIngestionService_ProcessDocument_LoadFailure(t *testing.T) {
	f := newIngestionFixture(t, false)
	ctx := context.Background()
	doc, err := f.ingestion.Enqueue(ctx, domain.DocumentRequest{SourceType: domain.SourceFile, SourceRef: "/etc/hostname"})
	require.NoError(t, err)

	_, err = f.ingestion.ProcessDocument(ctx, doc.SourceRef, doc.SourceType, doc.ID, domain.ProcessOptions{})
	require.Error(t, err)

	stored, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentFailed, stored.Status)
	assert.NotEmpty(t, stored.FailureReason())
}

func TestIngestionService_ProcessDocument_EmbeddingFailure(t *testing.T) {
	f := newIngestionFixture(t, false)
	ctx := context.Background()
	doc := f.enqueueFile(t, "handbook.txt", handbook(), 0)
	f.llm.embedErr = errBoom

	_, err := f.ingestion.ProcessDocument(ctx, doc.SourceRef, doc.SourceType, doc.ID, domain.ProcessOptions{})
	var genErr *domain.EmbeddingGenerationError
	require.ErrorAs(t, err, &genErr)

	stored, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentFailed, stored.Status)

	ids, err := f.docs.ListChunkIDs(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIngestionService_ProcessQueue_IsolatesFailures(t *testing.T) {
	f := newIngestionFixture(t, false)
	ctx := context.Background()

	good := f.enqueueFile(t, "good.txt", handbook(), 0)
	bad := f.enqueueFile(t, "empty.txt", "   ", 0)
	also := f.enqueueFile(t, "also.txt", "Parking is free for visitors.", 0)

	result, err := f.ingestion.ProcessQueue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Errors, bad.ID)
	assert.NotContains(t, result.Errors, good.ID)
	assert.NotContains(t, result.Errors, also.ID)

	pending, err := f.docs.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	result, err = f.ingestion.ProcessQueue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
}

func TestIngestionService_ProcessQueue_RespectsLimit(t *testing.T) {
	f := newIngestionFixture(t, false)
	for i := 0; i < 4; i++ {
		f.enqueueFile(t, fmt.Sprintf("doc%d.txt", i), fmt.Sprintf("Document number %d content.", i), 0)
	}

	result, err := f.ingestion.ProcessQueue(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)

	pending, err := f.docs.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestIngestionService_Requeue(t *testing.T) {
	f := newIngestionFixture(t, false)
	ctx := context.Background()
	doc := f.enqueueFile(t, "empty.txt", "   ", 0)

	_, err := f.ingestion.ProcessDocument(ctx, doc.SourceRef, doc.SourceType, doc.ID, domain.ProcessOptions{})
	require.Error(t, err)

	require.NoError(t, f.ingestion.Requeue(ctx, doc.ID))

	stored, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentPending, stored.Status)
	assert.Empty(t, stored.FailureReason())

	pending, err := f.docs.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	assert.ErrorIs(t, f.ingestion.Requeue(ctx, 999), domain.ErrNotFound)
}

func TestIngestionService_DeleteDocument(t *testing.T) {
	f := newIngestionFixture(t, false)
	ctx := context.Background()
	doc := f.enqueueFile(t, "handbook.txt", handbook(), 0)
	_, err := f.ingestion.ProcessDocument(ctx, doc.SourceRef, doc.SourceType, doc.ID, domain.ProcessOptions{})
	require.NoError(t, err)

	require.NoError(t, f.ingestion.DeleteDocument(ctx, doc.ID))

	stats, err := f.ingestion.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)
	assert.Zero(t, stats.Embeddings)
	assert.Zero(t, stats.Documents)
}

func TestIngestThenFindContext(t *testing.T) {
	for _, remote := range []bool{false, true} {
		t.Run(fmt.Sprintf("remote=%v", remote), func(t *testing.T) {
			f := newIngestionFixture(t, remote)
			ctx := context.Background()
			doc := f.enqueueFile(t, "handbook.txt", handbook(), 5)

			_, err := f.ingestion.ProcessQueue(ctx, 5)
			require.NoError(t, err)

			results, err := f.retriever.FindContext(ctx, "how many vacation days do employees get", 5, domain.ContextOptions{})
			require.NoError(t, err)
			require.NotEmpty(t, results)

			top := results[0]
			assert.Contains(t, top.Content, "vacation")
			assert.Equal(t, "file://"+doc.SourceRef, top.Source)
			assert.Greater(t, top.Relevance, 0.0)
		})
	}
}

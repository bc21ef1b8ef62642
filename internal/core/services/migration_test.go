package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memcache "github.com/custodia-labs/ragline/internal/adapters/driven/cache/memory"
	memstore "github.com/custodia-labs/ragline/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragline/internal/core/domain"
)

type migrationFixture struct {
	docs    *memstore.DocumentStore
	remote  *mockRemoteIndex
	options *memstore.OptionStore
	svc     *MigrationService
	doc     *domain.Document
}

func newMigrationFixture(t *testing.T, settings domain.MigrationSettings) *migrationFixture {
	t.Helper()
	f := &migrationFixture{
		docs:    memstore.NewDocumentStore(),
		remote:  newMockRemoteIndex(),
		options: memstore.NewOptionStore(),
	}
	f.svc = NewMigrationService(f.docs, f.remote, f.options, memcache.New(), settings)
	f.doc = createDocument(t, f.docs, "/kb/doc.txt")
	return f
}

// seedRemote puts n vectors for documentID into the remote index with
// chunk ids starting at firstID.
func (f *migrationFixture) seedRemote(documentID int64, firstID, n int, contentType string) {
	for i := 0; i < n; i++ {
		content := fmt.Sprintf("remote chunk %d", i)
		meta := domain.ChunkMetadata{
			DocumentID:  documentID,
			ChunkIndex:  i,
			TotalChunks: n,
			SourceType:  domain.SourceFile,
			ContentType: contentType,
		}
		entry := remoteEntry(int64(firstID+i), content, bagOfWords(content), "test-embed", meta)
		f.remote.vectors[entry.ID] = entry
	}
}

func (f *migrationFixture) setLock(t *testing.T, startedAt time.Time) {
	t.Helper()
	data, err := json.Marshal(domain.MigrationLock{InProgress: true, StartedAt: startedAt, RunID: "previous"})
	require.NoError(t, err)
	require.NoError(t, f.options.SetOption(context.Background(), OptionMigrationLock, string(data)))
}

var toLocalAll = domain.MigrationOptions{Direction: domain.MigrateToLocal, Scope: domain.ScopeAll}

func TestMigrationService_ToLocal_CountsItemFailures(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{BatchSize: 3})
	ctx := context.Background()
	f.seedRemote(f.doc.ID, 1, 10, "")
	delete(f.remote.vectors["5"].Metadata, domain.MetaContent)

	report, err := f.svc.Start(ctx, toLocalAll)
	require.NotNil(t, report)
	var migErr *domain.MigrationError
	require.ErrorAs(t, err, &migErr)
	assert.Equal(t, 9, migErr.Migrated)
	assert.Equal(t, 1, migErr.Failed)
	assert.NoError(t, migErr.Err, "item failures do not abort the run")

	assert.Equal(t, 9, report.Summary.Migrated)
	assert.Equal(t, 1, report.Summary.Errors)
	assert.NotEmpty(t, report.RunID)

	var logged bool
	for _, entry := range report.Log {
		if entry.Level == domain.LogError && strings.Contains(entry.Message, "missing content") {
			logged = true
		}
	}
	assert.True(t, logged, "the failing vector is logged")

	stats, err := f.docs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, stats.Chunks)
	assert.Equal(t, 9, stats.Embeddings)

	chunk, err := f.docs.GetChunk(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "remote chunk 6", chunk.Content)
	assert.Equal(t, 6, chunk.ChunkIndex)
	assert.Equal(t, "remote", chunk.Metadata.Extra[MetaMigratedFrom])

	emb, err := f.docs.GetEmbedding(ctx, 7, "test-embed")
	require.NoError(t, err)
	assert.Equal(t, bagOfWords("remote chunk 6"), emb.Vector)

	lock, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, lock, "the lock is released after the run")

	last, err := f.svc.LastReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, last.RunID)
	assert.Equal(t, 9, last.Summary.Migrated)
}

func TestMigrationService_ToLocal_UnknownModelAndMissingDocument(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{})
	ctx := context.Background()

	entry := remoteEntry(1, "untagged", bagOfWords("untagged"), "", domain.ChunkMetadata{DocumentID: f.doc.ID})
	f.remote.vectors[entry.ID] = entry
	orphan := remoteEntry(2, "orphan", bagOfWords("orphan"), "m", domain.ChunkMetadata{DocumentID: 999})
	f.remote.vectors[orphan.ID] = orphan

	report, err := f.svc.Start(ctx, toLocalAll)
	require.Error(t, err)
	assert.Equal(t, 1, report.Summary.Migrated)
	assert.Equal(t, 1, report.Summary.Errors)

	emb, err := f.docs.GetEmbedding(ctx, 1, unknownModel)
	require.NoError(t, err)
	assert.NotEmpty(t, emb.Vector)
}

func TestMigrationService_ToLocal_ScopeByType(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{})
	f.seedRemote(f.doc.ID, 1, 3, "page")
	f.seedRemote(f.doc.ID, 10, 2, "post")

	report, err := f.svc.Start(context.Background(), domain.MigrationOptions{
		Direction:    domain.MigrateToLocal,
		Scope:        domain.ScopeByType,
		ContentTypes: []string{"post"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.Migrated)
	assert.Equal(t, 3, report.Summary.Skipped)
}

func TestMigrationService_ToRemote(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{BatchSize: 2})
	ctx := context.Background()

	vectors := NewVectorStore(f.docs, nil, nil, 0, false)
	_, err := vectors.StoreEmbeddings(ctx, embedded(f.doc.ID, "alpha one", "beta two", "gamma three"))
	require.NoError(t, err)
	_, err = f.docs.SaveChunk(ctx, &domain.Chunk{DocumentID: f.doc.ID, Content: "no vector", ChunkIndex: 3})
	require.NoError(t, err)

	report, err := f.svc.Start(ctx, domain.MigrationOptions{Direction: domain.MigrateToRemote, Scope: domain.ScopeAll})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Summary.Migrated)
	assert.Equal(t, 1, report.Summary.Skipped)
	assert.Zero(t, report.Summary.Errors)
	require.Equal(t, 3, f.remote.count())

	for _, v := range f.remote.vectors {
		assert.NotEmpty(t, v.Metadata[domain.MetaContent])
		assert.Equal(t, f.doc.ID, domain.AsInt64(v.Metadata[domain.MetaDocumentID]))
		assert.Equal(t, "local", v.Metadata[MetaMigratedFrom])
		assert.Equal(t, "test-embed", v.Metadata[MetaEmbeddingModel])
	}
}

func TestMigrationService_ToRemote_PrefersConfiguredModel(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{})
	f.svc.SetEmbeddingModel("test-embed")
	ctx := context.Background()

	vectors := NewVectorStore(f.docs, nil, nil, 0, false)
	stored, err := vectors.StoreEmbeddings(ctx, embedded(f.doc.ID, "alpha one", "beta two"))
	require.NoError(t, err)

	// A newer embedding from another model must not replace the configured one.
	newer := bagOfWords("something else entirely")
	require.NoError(t, f.docs.SaveEmbedding(ctx, &domain.Embedding{ChunkID: stored.ChunkIDs[0], Vector: newer, Model: "other-model"}))

	// A chunk with only a foreign-model vector still migrates with that vector.
	only, err := f.docs.SaveChunk(ctx, &domain.Chunk{DocumentID: f.doc.ID, Content: "gamma three", ChunkIndex: 2})
	require.NoError(t, err)
	require.NoError(t, f.docs.SaveEmbedding(ctx, &domain.Embedding{ChunkID: only, Vector: bagOfWords("gamma three"), Model: "legacy"}))

	report, err := f.svc.Start(ctx, domain.MigrationOptions{Direction: domain.MigrateToRemote, Scope: domain.ScopeAll})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Summary.Migrated)

	first := f.remote.vectors[fmt.Sprint(stored.ChunkIDs[0])]
	assert.Equal(t, "test-embed", first.Metadata[MetaEmbeddingModel])
	assert.Equal(t, bagOfWords("alpha one"), first.Values)

	fallback := f.remote.vectors[fmt.Sprint(only)]
	assert.Equal(t, "legacy", fallback.Metadata[MetaEmbeddingModel])
}

func TestMigrationService_ToRemote_ScopeSelectedAndFailures(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{})
	ctx := context.Background()
	other := createDocument(t, f.docs, "/kb/other.txt")

	vectors := NewVectorStore(f.docs, nil, nil, 0, false)
	_, err := vectors.StoreEmbeddings(ctx, embedded(f.doc.ID, "first doc chunk"))
	require.NoError(t, err)
	stored, err := vectors.StoreEmbeddings(ctx, embedded(other.ID, "second doc chunk", "second doc more"))
	require.NoError(t, err)
	f.remote.upsertErr[fmt.Sprint(stored.ChunkIDs[1])] = errBoom

	report, err := f.svc.Start(ctx, domain.MigrationOptions{
		Direction:   domain.MigrateToRemote,
		Scope:       domain.ScopeSelected,
		DocumentIDs: []int64{other.ID},
	})
	var migErr *domain.MigrationError
	require.ErrorAs(t, err, &migErr)
	assert.Equal(t, 1, report.Summary.Migrated)
	assert.Equal(t, 1, report.Summary.Errors)
	assert.Equal(t, 1, f.remote.count())
}

func TestMigrationService_StaleLockIsCleared(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{LockTimeout: 5 * time.Minute})
	f.setLock(t, time.Now().Add(-10*time.Minute))

	report, err := f.svc.Start(context.Background(), toLocalAll)
	require.NoError(t, err)

	require.NotEmpty(t, report.Log)
	assert.Equal(t, domain.LogWarning, report.Log[0].Level)
	assert.Contains(t, report.Log[0].Message, "stale")

	lock, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, lock)
}

func TestMigrationService_LiveLockRejects(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{LockTimeout: 5 * time.Minute})
	f.setLock(t, time.Now().Add(-time.Minute))
	f.seedRemote(f.doc.ID, 1, 2, "")

	report, err := f.svc.Start(context.Background(), toLocalAll)
	assert.Nil(t, report)
	assert.True(t, IsInProgress(err))

	lock, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "previous", lock.RunID, "the running migration keeps its lock")

	stats, err := f.docs.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)
}

func TestMigrationService_ConcurrentStartsAreExclusive(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{BatchSize: 1})
	f.seedRemote(f.doc.ID, 1, 20, "")

	// Hold the lock the way a running migration does, then race two starts.
	f.setLock(t, time.Now())
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Start(context.Background(), toLocalAll)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.True(t, IsInProgress(err))
	}
}

func TestMigrationService_TimeBudget(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{BatchSize: 2, TimeBudget: 3 * time.Minute})
	f.seedRemote(f.doc.ID, 1, 10, "")

	clock := time.Now()
	f.svc.now = func() time.Time {
		clock = clock.Add(30 * time.Second)
		return clock
	}

	report, err := f.svc.Start(context.Background(), toLocalAll)
	require.NoError(t, err)
	assert.True(t, report.Summary.TimedOut)
	assert.Positive(t, report.Summary.Migrated)
	assert.Less(t, report.Summary.Migrated, 10)
}

func TestMigrationService_TimeBudget_ResumesToLocal(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{BatchSize: 2, TimeBudget: 3 * time.Minute})
	f.seedRemote(f.doc.ID, 1, 10, "")
	ctx := context.Background()

	clock := time.Now()
	f.svc.now = func() time.Time {
		clock = clock.Add(30 * time.Second)
		return clock
	}

	total := 0
	var report *domain.MigrationReport
	for run := 0; run < 10; run++ {
		var err error
		report, err = f.svc.Start(ctx, toLocalAll)
		require.NoError(t, err)
		total += report.Summary.Migrated
		if !report.Summary.TimedOut {
			break
		}
		assert.NotEmpty(t, report.Cursor)
	}

	require.False(t, report.Summary.TimedOut)
	assert.Empty(t, report.Cursor)
	assert.Equal(t, 10, total)

	stats, err := f.docs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Chunks)

	// A finished run leaves nothing to resume.
	f.svc.now = time.Now
	again, err := f.svc.Start(ctx, toLocalAll)
	require.NoError(t, err)
	assert.Equal(t, 10, again.Summary.Migrated)
}

func TestMigrationService_TimeBudget_ResumesToRemote(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{BatchSize: 2, TimeBudget: 3 * time.Minute})
	ctx := context.Background()

	contents := make([]string, 9)
	for i := range contents {
		contents[i] = fmt.Sprintf("local chunk number %d", i)
	}
	vectors := NewVectorStore(f.docs, nil, nil, 0, false)
	_, err := vectors.StoreEmbeddings(ctx, embedded(f.doc.ID, contents...))
	require.NoError(t, err)

	clock := time.Now()
	f.svc.now = func() time.Time {
		clock = clock.Add(30 * time.Second)
		return clock
	}

	toRemote := domain.MigrationOptions{Direction: domain.MigrateToRemote, Scope: domain.ScopeAll}
	total, runs := 0, 0
	for ; runs < 10; runs++ {
		report, err := f.svc.Start(ctx, toRemote)
		require.NoError(t, err)
		total += report.Summary.Migrated
		if !report.Summary.TimedOut {
			break
		}
	}

	assert.Positive(t, runs, "the budget stops the first run early")
	assert.Equal(t, 9, total, "each chunk is migrated once across runs")
	assert.Equal(t, 9, f.remote.count())
}

func TestMigrationService_CursorIgnoredForOtherTarget(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{BatchSize: 2})
	f.seedRemote(f.doc.ID, 1, 4, "")
	ctx := context.Background()

	data, err := json.Marshal(domain.MigrationReport{
		RunID:   "earlier",
		Options: domain.MigrationOptions{Direction: domain.MigrateToRemote, Scope: domain.ScopeAll},
		Summary: domain.MigrationSummary{TimedOut: true},
		Cursor:  "2",
	})
	require.NoError(t, err)
	require.NoError(t, f.options.SetOption(ctx, OptionMigrationReport, string(data)))

	report, err := f.svc.Start(ctx, toLocalAll)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Summary.Migrated)
	for _, entry := range report.Log {
		assert.NotContains(t, entry.Message, "Resuming")
	}
}

func TestMigrationService_InvalidOptions(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{})
	ctx := context.Background()

	tests := []struct {
		name string
		opts domain.MigrationOptions
	}{
		{"unknown direction", domain.MigrationOptions{Direction: "sideways", Scope: domain.ScopeAll}},
		{"missing scope", domain.MigrationOptions{Direction: domain.MigrateToLocal}},
		{"by type without types", domain.MigrationOptions{Direction: domain.MigrateToLocal, Scope: domain.ScopeByType}},
		{"selected without ids", domain.MigrationOptions{Direction: domain.MigrateToRemote, Scope: domain.ScopeSelected}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Start(ctx, tt.opts)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestMigrationService_NoRemote(t *testing.T) {
	svc := NewMigrationService(memstore.NewDocumentStore(), nil, memstore.NewOptionStore(), nil, domain.MigrationSettings{})
	_, err := svc.Start(context.Background(), toLocalAll)
	assert.ErrorIs(t, err, domain.ErrRemoteIndexUnavailable)

	_, err = svc.ClearDatabase(context.Background(), domain.ClearRemote)
	assert.ErrorIs(t, err, domain.ErrRemoteIndexUnavailable)
}

func TestMigrationService_LastReportMissing(t *testing.T) {
	f := newMigrationFixture(t, domain.MigrationSettings{})
	_, err := f.svc.LastReport(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMigrationService_ClearDatabase(t *testing.T) {
	ctx := context.Background()
	seed := func(t *testing.T) *migrationFixture {
		f := newMigrationFixture(t, domain.MigrationSettings{})
		vectors := NewVectorStore(f.docs, nil, nil, 0, false)
		_, err := vectors.StoreEmbeddings(ctx, embedded(f.doc.ID, "one", "two"))
		require.NoError(t, err)
		require.NoError(t, f.docs.LinkDocument(ctx, 3, f.doc.ID))
		f.seedRemote(f.doc.ID, 100, 4, "")
		return f
	}

	t.Run("local", func(t *testing.T) {
		f := seed(t)
		counts, err := f.svc.ClearDatabase(ctx, domain.ClearLocal)
		require.NoError(t, err)
		assert.Equal(t, 2, counts["chunks"])
		assert.Equal(t, 2, counts["embeddings"])

		stats, err := f.docs.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Chunks)
		assert.Equal(t, 1, stats.Documents)
		assert.Equal(t, 4, f.remote.count())
	})

	t.Run("knowledge base", func(t *testing.T) {
		f := seed(t)
		counts, err := f.svc.ClearDatabase(ctx, domain.ClearKnowledgeBase)
		require.NoError(t, err)
		assert.Equal(t, 1, counts["documents"])
		assert.Equal(t, 1, counts["content_relationships"])

		stats, err := f.docs.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Documents)
	})

	t.Run("remote", func(t *testing.T) {
		f := seed(t)
		counts, err := f.svc.ClearDatabase(ctx, domain.ClearRemote)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"remote_vectors": 4}, counts)
		assert.Zero(t, f.remote.count())
	})

	t.Run("unknown", func(t *testing.T) {
		f := seed(t)
		_, err := f.svc.ClearDatabase(ctx, "everything")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memcache "github.com/custodia-labs/ragline/internal/adapters/driven/cache/memory"
	"github.com/custodia-labs/ragline/internal/core/domain"
)

func newTestGenerator(llm *mockLLM, batchSize int) *EmbeddingsGenerator {
	return NewEmbeddingsGenerator(llm, memcache.New(), domain.EmbeddingSettings{
		ProviderSettings: domain.ProviderSettings{Model: "test-embed"},
		BatchSize:        batchSize,
	}, time.Hour)
}

func inputs(texts ...string) []domain.EmbeddingInput {
	out := make([]domain.EmbeddingInput, len(texts))
	for i, t := range texts {
		out[i] = domain.EmbeddingInput{Content: t, Metadata: domain.ChunkMetadata{DocumentID: 1, ChunkIndex: i}}
	}
	return out
}

func TestEmbeddingsGenerator_SetBatchSize(t *testing.T) {
	g := newTestGenerator(newMockLLM(), 0)
	assert.Equal(t, DefaultEmbeddingBatchSize, g.BatchSize())

	g.SetBatchSize(-4)
	assert.Equal(t, MinEmbeddingBatchSize, g.BatchSize())

	g.SetBatchSize(1000)
	assert.Equal(t, MaxEmbeddingBatchSize, g.BatchSize())

	g.SetBatchSize(7)
	assert.Equal(t, 7, g.BatchSize())
}

func TestEmbeddingsGenerator_Generate_PreservesOrder(t *testing.T) {
	llm := newMockLLM()
	g := newTestGenerator(llm, 2)

	texts := []string{"alpha one", "beta two", "gamma three", "delta four", "epsilon five"}
	out, err := g.Generate(context.Background(), inputs(texts...), "")
	require.NoError(t, err)
	require.Len(t, out, len(texts))

	for i, emb := range out {
		assert.Equal(t, texts[i], emb.Content)
		assert.Equal(t, bagOfWords(texts[i]), emb.Vector)
		assert.Equal(t, i, emb.Metadata.ChunkIndex)
		assert.Equal(t, "test-embed", emb.Model)
		assert.False(t, emb.Cached)
	}
	assert.Equal(t, 3, llm.embedCallCount(), "five inputs in batches of two")
}

func TestEmbeddingsGenerator_Generate_UsesCache(t *testing.T) {
	llm := newMockLLM()
	g := newTestGenerator(llm, 10)
	ctx := context.Background()

	_, err := g.Generate(ctx, inputs("cached text"), "")
	require.NoError(t, err)
	require.Equal(t, 1, llm.embedCallCount())

	in := []domain.EmbeddingInput{{Content: "cached text", Metadata: domain.ChunkMetadata{DocumentID: 9, ChunkIndex: 4}}}
	out, err := g.Generate(ctx, in, "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Cached)
	assert.Equal(t, int64(9), out[0].Metadata.DocumentID, "cache hits carry the caller's metadata")
	assert.Equal(t, 1, llm.embedCallCount(), "provider not called on a hit")

	_, err = g.Generate(ctx, inputs("cached text"), "other-model")
	require.NoError(t, err)
	assert.Equal(t, 2, llm.embedCallCount(), "cache key includes the model")
}

func TestEmbeddingsGenerator_Generate_MixedHitsAndMisses(t *testing.T) {
	llm := newMockLLM()
	g := newTestGenerator(llm, 10)
	ctx := context.Background()

	_, err := g.Generate(ctx, inputs("second"), "")
	require.NoError(t, err)

	out, err := g.Generate(ctx, inputs("first", "second", "third"), "")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.False(t, out[0].Cached)
	assert.True(t, out[1].Cached)
	assert.False(t, out[2].Cached)
	assert.Equal(t, []string{"first", "third"}, llm.embedCalls[1])
}

func TestEmbeddingsGenerator_Generate_ProviderError(t *testing.T) {
	llm := newMockLLM()
	llm.embedErr = errBoom
	g := newTestGenerator(llm, 10)

	_, err := g.Generate(context.Background(), inputs("a", "b"), "")
	require.Error(t, err)

	var genErr *domain.EmbeddingGenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 1, genErr.Batch)
	assert.Equal(t, "test-embed", genErr.Model)
	assert.ErrorIs(t, err, errBoom)

	// Nothing was cached, so a retry reaches the provider again.
	llm.embedErr = nil
	out, err := g.Generate(context.Background(), inputs("a", "b"), "")
	require.NoError(t, err)
	assert.False(t, out[0].Cached)
}

func TestEmbeddingsGenerator_Generate_VectorCountMismatch(t *testing.T) {
	llm := newMockLLM()
	llm.shortBy = 1
	g := newTestGenerator(llm, 10)

	_, err := g.Generate(context.Background(), inputs("a", "b", "c"), "")
	var genErr *domain.EmbeddingGenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Contains(t, err.Error(), "2 vectors for 3 texts")
}

func TestEmbeddingsGenerator_Generate_NoProvider(t *testing.T) {
	g := NewEmbeddingsGenerator(nil, nil, domain.EmbeddingSettings{}, 0)
	assert.False(t, g.Available())

	_, err := g.Generate(context.Background(), inputs("x"), "")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestEmbeddingsGenerator_Generate_Empty(t *testing.T) {
	llm := newMockLLM()
	out, err := newTestGenerator(llm, 5).Generate(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, llm.embedCallCount())
}

func TestEmbeddingsGenerator_Generate_PacesBatches(t *testing.T) {
	llm := newMockLLM()
	g := NewEmbeddingsGenerator(llm, nil, domain.EmbeddingSettings{BatchSize: 1, BatchPause: 20 * time.Millisecond}, 0)

	texts := make([]string, 4)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}
	start := time.Now()
	_, err := g.Generate(context.Background(), inputs(texts...), "m")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 4, llm.embedCallCount())
}

func TestEmbeddingsGenerator_EmbedQuery(t *testing.T) {
	g := newTestGenerator(newMockLLM(), 5)
	vec, err := g.EmbedQuery(context.Background(), "opening hours")
	require.NoError(t, err)
	assert.Equal(t, bagOfWords("opening hours"), vec)
}

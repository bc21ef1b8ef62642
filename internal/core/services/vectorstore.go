package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/logger"
)

// MetaEmbeddingModel is the remote metadata key recording which model produced a vector.
const MetaEmbeddingModel = "embedding_model"

// VectorStore persists chunks with their vectors and answers similarity
// queries, against the remote index when one is configured and the local
// store otherwise.
type VectorStore struct {
	docs             driven.DocumentStore
	remote           driven.RemoteVectorIndex
	cache            driven.Cache
	searchTTL        time.Duration
	unscopedFallback bool
}

// NewVectorStore creates a vector store. remote and cache may be nil.
func NewVectorStore(
	docs driven.DocumentStore,
	remote driven.RemoteVectorIndex,
	cache driven.Cache,
	searchTTL time.Duration,
	unscopedFallback bool,
) *VectorStore {
	return &VectorStore{
		docs:             docs,
		remote:           remote,
		cache:            cache,
		searchTTL:        searchTTL,
		unscopedFallback: unscopedFallback,
	}
}

// RemoteEnabled reports whether vectors go to the remote index.
func (s *VectorStore) RemoteEnabled() bool {
	return s.remote != nil
}

// StoreEmbeddings writes each chunk row and then its vector. A vector the
// remote index rejects is saved locally instead. Failures are counted and
// the first one is returned as a StorageError; earlier writes are not
// rolled back.
func (s *VectorStore) StoreEmbeddings(ctx context.Context, embeddings []domain.GeneratedEmbedding) (*domain.StoreResult, error) {
	result := &domain.StoreResult{ChunkIDs: make([]int64, 0, len(embeddings))}
	var firstErr error
	fail := func(op string, err error) {
		result.Failed++
		if firstErr == nil {
			firstErr = &domain.StorageError{Op: op, Err: err}
		}
		logger.Warn("storage %s: %v", op, err)
	}

	for _, emb := range embeddings {
		meta := emb.Metadata
		if meta.Size == 0 {
			meta.Size = len(emb.Content)
		}
		chunk := &domain.Chunk{
			DocumentID: meta.DocumentID,
			Content:    emb.Content,
			ChunkIndex: meta.ChunkIndex,
			Metadata:   meta,
		}
		if chunk.DocumentID == 0 {
			fail("save chunk", fmt.Errorf("chunk %d has no document: %w", meta.ChunkIndex, domain.ErrInvalidInput))
			continue
		}

		id, err := s.docs.SaveChunk(ctx, chunk)
		if err != nil {
			fail("save chunk", err)
			continue
		}

		local := s.remote == nil
		if !local {
			err = s.remote.Upsert(ctx, []domain.VectorEntry{remoteEntry(id, emb.Content, emb.Vector, emb.Model, meta)})
			if err != nil {
				logger.Warn("Remote upsert of chunk %d failed, keeping the vector locally until the next migration: %v", id, err)
				local = true
				result.LocalFallback++
			}
		}
		if local {
			err = s.docs.SaveEmbedding(ctx, &domain.Embedding{ChunkID: id, Vector: emb.Vector, Model: emb.Model})
			if err != nil {
				fail("save embedding", err)
				continue
			}
		}

		result.ChunkIDs = append(result.ChunkIDs, id)
		result.Stored++
	}

	if result.Stored > 0 {
		s.invalidate(ctx)
	}
	return result, firstErr
}

// FindSimilar returns the chunks nearest to query, best first.
func (s *VectorStore) FindSimilar(
	ctx context.Context,
	ownerID int64,
	query []float32,
	limit int,
	minSimilarity float64,
	filters domain.SearchFilters,
) ([]domain.SimilarChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	key := hashKey("find_similar", ownerID, domain.EncodeVector(query), limit, minSimilarity, filters, s.remote != nil)
	var cached []domain.SimilarChunk
	if cacheGetJSON(ctx, s.cache, driven.CacheGroupSearch, key, &cached) {
		logger.Debug("Similarity search cache hit")
		return cached, nil
	}

	var (
		results []domain.SimilarChunk
		err     error
	)
	if s.remote != nil {
		results, err = s.findRemote(ctx, ownerID, query, limit, minSimilarity, filters)
	} else {
		results, err = s.findLocal(ctx, ownerID, query, limit, minSimilarity, filters)
	}
	if err != nil {
		return nil, err
	}

	cacheSetJSON(ctx, s.cache, driven.CacheGroupSearch, key, results, s.searchTTL)
	return results, nil
}

func (s *VectorStore) findRemote(
	ctx context.Context, ownerID int64, query []float32, limit int, minSimilarity float64, filters domain.SearchFilters,
) ([]domain.SimilarChunk, error) {
	matches, err := s.remote.Query(ctx, query, limit, remoteFilter(ownerID, filters))
	if err != nil {
		return nil, &domain.StorageError{Op: "query remote index", Err: err}
	}

	results := make([]domain.SimilarChunk, 0, len(matches))
	for _, m := range matches {
		if m.Score < minSimilarity {
			continue
		}
		id, err := strconv.ParseInt(m.ID, 10, 64)
		if err != nil {
			logger.Warn("Skipping remote match with non-numeric id %q", m.ID)
			continue
		}
		results = append(results, domain.SimilarChunk{
			ChunkID:    id,
			Content:    domain.AsString(m.Metadata[domain.MetaContent]),
			Similarity: m.Score,
			Metadata:   domain.ChunkMetadataFromMap(m.Metadata),
		})
	}
	return results, nil
}

func (s *VectorStore) findLocal(
	ctx context.Context, ownerID int64, query []float32, limit int, minSimilarity float64, filters domain.SearchFilters,
) ([]domain.SimilarChunk, error) {
	candidates, err := s.docs.SimilarityCandidates(ctx, ownerID, "", filters)
	if err != nil {
		return nil, &domain.StorageError{Op: "load candidates", Err: err}
	}
	if len(candidates) == 0 && ownerID != 0 && s.unscopedFallback {
		logger.Warn("No chunks linked to owner %d; falling back to an unscoped search", ownerID)
		candidates, err = s.docs.SimilarityCandidates(ctx, 0, "", filters)
		if err != nil {
			return nil, &domain.StorageError{Op: "load candidates", Err: err}
		}
	}

	results := make([]domain.SimilarChunk, 0, len(candidates))
	for _, c := range candidates {
		sim := CosineSimilarity(query, c.Vector)
		if sim < minSimilarity {
			continue
		}
		meta := c.Chunk.Metadata
		meta.DocumentID = c.Chunk.DocumentID
		meta.ChunkIndex = c.Chunk.ChunkIndex
		results = append(results, domain.SimilarChunk{
			ChunkID:    c.Chunk.ID,
			Content:    c.Chunk.Content,
			Similarity: sim,
			Metadata:   meta,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	logger.Debug("Local similarity search: %d candidates, %d results", len(candidates), len(results))
	return results, nil
}

// DeleteDocumentEmbeddings removes a document's vectors and chunk rows.
func (s *VectorStore) DeleteDocumentEmbeddings(ctx context.Context, documentID int64) (domain.DeleteResult, error) {
	var result domain.DeleteResult

	ids, err := s.docs.ListChunkIDs(ctx, documentID)
	if err != nil {
		return result, &domain.StorageError{Op: "list chunks", Err: err}
	}
	if len(ids) == 0 {
		return result, nil
	}

	if s.remote != nil {
		remoteIDs := make([]string, len(ids))
		for i, id := range ids {
			remoteIDs[i] = strconv.FormatInt(id, 10)
		}
		if err := s.remote.Delete(ctx, remoteIDs); err != nil {
			return result, &domain.StorageError{Op: "delete remote vectors", Err: err}
		}
		result.Embeddings += len(remoteIDs)
	}

	n, err := s.docs.DeleteEmbeddings(ctx, ids)
	if err != nil {
		return result, &domain.StorageError{Op: "delete embeddings", Err: err}
	}
	result.Embeddings += n

	n, err = s.docs.DeleteChunks(ctx, ids)
	if err != nil {
		return result, &domain.StorageError{Op: "delete chunks", Err: err}
	}
	result.Chunks = n

	s.invalidate(ctx)
	return result, nil
}

// Stats returns local counts and, when configured, the remote vector count.
func (s *VectorStore) Stats(ctx context.Context) (domain.DocumentStats, error) {
	stats, err := s.docs.Stats(ctx)
	if err != nil {
		return stats, &domain.StorageError{Op: "stats", Err: err}
	}
	if s.remote != nil {
		remote, err := s.remote.DescribeStats(ctx)
		if err != nil {
			logger.Warn("Remote index stats unavailable: %v", err)
		} else {
			stats.RemoteVectors = remote.TotalVectors
		}
	}
	return stats, nil
}

func (s *VectorStore) invalidate(ctx context.Context) {
	invalidateGroups(ctx, s.cache, driven.CacheGroupSearch, driven.CacheGroupContext)
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when the vectors differ
// in length or either has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp rounding error so self-similarity never exceeds 1.
	return math.Max(-1, math.Min(1, sim))
}

// remoteEntry builds the flat remote representation of a chunk.
func remoteEntry(id int64, content string, vector []float32, model string, meta domain.ChunkMetadata) domain.VectorEntry {
	flat := meta.Flatten()
	flat[domain.MetaContent] = content
	if model != "" {
		flat[MetaEmbeddingModel] = model
	}
	return domain.VectorEntry{
		ID:       strconv.FormatInt(id, 10),
		Values:   vector,
		Metadata: flat,
	}
}

// remoteFilter scopes a remote query to an owner and the given filters.
// Slice values become $in clauses; scalars use implicit equality.
func remoteFilter(ownerID int64, filters domain.SearchFilters) map[string]any {
	if ownerID == 0 && len(filters) == 0 {
		return nil
	}
	out := make(map[string]any, len(filters)+1)
	for k, v := range filters {
		switch vv := v.(type) {
		case []string:
			out[k] = map[string]any{"$in": vv}
		case []any:
			out[k] = map[string]any{"$in": vv}
		default:
			out[k] = v
		}
	}
	if ownerID != 0 {
		out[domain.MetaChatbotID] = ownerID
	}
	return out
}

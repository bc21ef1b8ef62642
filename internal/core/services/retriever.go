package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
	"github.com/custodia-labs/ragline/internal/logger"
)

// Ensure Retriever implements the interface.
var _ driving.RetrievalService = (*Retriever)(nil)

// recencyWindow is how long the recency boost takes to decay to nothing.
const recencyWindow = 30 * 24 * time.Hour

// contentTypeBoost weights content types above plain posts.
var contentTypeBoost = map[string]float64{
	"page":    1.2,
	"product": 1.15,
	"course":  1.1,
	"post":    1.0,
}

// Retriever turns a query into ranked, deduplicated, context-expanded passages.
type Retriever struct {
	embedder *EmbeddingsGenerator
	vectors  *VectorStore
	docs     driven.DocumentStore
	cache    driven.Cache
	ttl      time.Duration
	settings domain.RetrievalSettings
	now      func() time.Time
}

// NewRetriever creates a retriever.
func NewRetriever(
	embedder *EmbeddingsGenerator,
	vectors *VectorStore,
	docs driven.DocumentStore,
	cache driven.Cache,
	settings domain.RetrievalSettings,
	ttl time.Duration,
) *Retriever {
	return &Retriever{
		embedder: embedder,
		vectors:  vectors,
		docs:     docs,
		cache:    cache,
		ttl:      ttl,
		settings: settings,
		now:      time.Now,
	}
}

// FindContext embeds query, searches the owner's chunks and post-processes
// the matches. Any failure is wrapped in a RetrievalError.
func (r *Retriever) FindContext(
	ctx context.Context, query string, ownerID int64, opts domain.ContextOptions,
) ([]domain.ContextResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.ContextResult{}, nil
	}
	opts = r.resolve(opts)

	key := hashKey("find_context", query, ownerID, opts)
	var cached []domain.ContextResult
	if cacheGetJSON(ctx, r.cache, driven.CacheGroupContext, key, &cached) {
		logger.Debug("Context cache hit for %q", query)
		return cached, nil
	}

	logger.Section("Context Retrieval")
	logger.Debug("Query: %q owner=%d max=%d min=%.2f", query, ownerID, opts.MaxResults, *opts.MinSimilarity)

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &domain.RetrievalError{Err: err}
	}

	// Over-fetch so deduplication does not starve the result set.
	similar, err := r.vectors.FindSimilar(ctx, ownerID, vector, opts.MaxResults*2, *opts.MinSimilarity, opts.Filters)
	if err != nil {
		return nil, &domain.RetrievalError{Err: err}
	}

	scored := deduplicate(similar, opts.DedupThreshold)
	if *opts.Rerank {
		r.rerank(scored)
	}
	if len(scored) > opts.MaxResults {
		scored = scored[:opts.MaxResults]
	}

	results := make([]domain.ContextResult, 0, len(scored))
	for _, sc := range scored {
		result := domain.ContextResult{
			ChunkID:   sc.chunk.ChunkID,
			Content:   sc.chunk.Content,
			Metadata:  sc.chunk.Metadata.Flatten(),
			Relevance: sc.score,
			Source:    sourceOf(sc.chunk.Metadata),
		}
		if opts.ContextWindow > 0 {
			if err := r.expand(ctx, &result, sc.chunk.Metadata, opts.ContextWindow); err != nil {
				return nil, &domain.RetrievalError{Err: err}
			}
		}
		results = append(results, result)
	}

	logger.Debug("Context: %d matches, %d after dedup, %d returned", len(similar), len(scored), len(results))
	cacheSetJSON(ctx, r.cache, driven.CacheGroupContext, key, results, r.ttl)
	return results, nil
}

// resolve fills unset options from settings.
func (r *Retriever) resolve(opts domain.ContextOptions) domain.ContextOptions {
	if opts.MaxResults <= 0 {
		opts.MaxResults = r.settings.MaxResults
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if opts.MinSimilarity == nil {
		minSimilarity := r.settings.MinSimilarity
		opts.MinSimilarity = &minSimilarity
	}
	if opts.DedupThreshold <= 0 {
		opts.DedupThreshold = r.settings.DedupThreshold
	}
	if opts.DedupThreshold <= 0 {
		opts.DedupThreshold = 0.95
	}
	if opts.Rerank == nil {
		rerank := r.settings.Rerank
		opts.Rerank = &rerank
	}
	if opts.ContextWindow == 0 {
		opts.ContextWindow = r.settings.ContextWindow
	}
	return opts
}

type scoredChunk struct {
	chunk domain.SimilarChunk
	score float64
	words map[string]struct{}
}

// deduplicate keeps matches in order, dropping any whose word-set Jaccard
// similarity to an accepted match reaches threshold.
func deduplicate(similar []domain.SimilarChunk, threshold float64) []scoredChunk {
	accepted := make([]scoredChunk, 0, len(similar))
	for _, s := range similar {
		words := wordSet(s.Content)
		duplicate := false
		for _, a := range accepted {
			if Jaccard(words, a.words) >= threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		accepted = append(accepted, scoredChunk{chunk: s, score: s.Similarity, words: words})
	}
	return accepted
}

// rerank applies recency and content-type boosts, then sorts by score.
func (r *Retriever) rerank(chunks []scoredChunk) {
	now := r.now()
	for i := range chunks {
		chunks[i].score = chunks[i].chunk.Similarity * RerankBoost(chunks[i].chunk.Metadata, now)
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].score > chunks[j].score
	})
}

// RerankBoost is the multiplier applied to a match's similarity.
func RerankBoost(meta domain.ChunkMetadata, now time.Time) float64 {
	boost := 1.0
	if !meta.CreatedAt.IsZero() {
		age := now.Sub(meta.CreatedAt)
		fresh := 1 - float64(age)/float64(recencyWindow)
		if fresh > 1 {
			fresh = 1
		}
		if fresh > 0 {
			boost *= 1 + 0.1*fresh
		}
	}

	contentType := strings.ToLower(meta.ContentType)
	if contentType == "" {
		contentType = string(meta.SourceType)
	}
	if m, ok := contentTypeBoost[contentType]; ok {
		boost *= m
	}
	return boost
}

// expand attaches up to window neighbouring chunks on each side.
func (r *Retriever) expand(ctx context.Context, result *domain.ContextResult, meta domain.ChunkMetadata, window int) error {
	if meta.DocumentID == 0 {
		return nil
	}
	from := meta.ChunkIndex - window
	if from < 0 {
		from = 0
	}
	chunks, err := r.docs.GetChunkRange(ctx, meta.DocumentID, from, meta.ChunkIndex+window)
	if err != nil {
		return fmt.Errorf("expand context for document %d: %w", meta.DocumentID, err)
	}
	for _, c := range chunks {
		neighbour := domain.ContextChunk{ChunkID: c.ID, ChunkIndex: c.ChunkIndex, Content: c.Content}
		switch {
		case c.ChunkIndex < meta.ChunkIndex:
			result.Before = append(result.Before, neighbour)
		case c.ChunkIndex > meta.ChunkIndex:
			result.After = append(result.After, neighbour)
		}
	}
	return nil
}

// sourceOf resolves a human-readable origin for a chunk.
func sourceOf(meta domain.ChunkMetadata) string {
	switch {
	case meta.Permalink != "":
		return meta.Permalink
	case meta.SourceType == domain.SourceFile && meta.SourceRef != "":
		if strings.HasPrefix(meta.SourceRef, "/") {
			return "file://" + meta.SourceRef
		}
		return meta.SourceRef
	case meta.SourceRef != "":
		return meta.SourceRef
	default:
		return meta.Title
	}
}

// FormatContext renders results as the context block of a system prompt.
func FormatContext(results []domain.ContextResult) string {
	var b strings.Builder
	for i, res := range results {
		title := domain.AsString(res.Metadata[domain.MetaTitle])
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, title)
		if res.Source != "" && res.Source != title {
			fmt.Fprintf(&b, " (%s)", res.Source)
		}
		b.WriteString("\n")
		for _, c := range res.Before {
			b.WriteString(c.Content)
			b.WriteString("\n")
		}
		b.WriteString(res.Content)
		b.WriteString("\n")
		for _, c := range res.After {
			b.WriteString(c.Content)
			b.WriteString("\n")
		}
		if i < len(results)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Jaccard returns |a∩b| / |a∪b| for two word sets. Two empty sets are identical.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

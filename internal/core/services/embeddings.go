package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/logger"
)

// Batch size bounds for embedding requests.
const (
	DefaultEmbeddingBatchSize = 20
	MinEmbeddingBatchSize     = 1
	MaxEmbeddingBatchSize     = 100
)

// EmbeddingsGenerator turns chunks into vectors in cached batches.
type EmbeddingsGenerator struct {
	provider driven.LLMProvider
	cache    driven.Cache
	ttl      time.Duration
	pause    time.Duration

	mu           sync.RWMutex
	batchSize    int
	defaultModel string
}

// NewEmbeddingsGenerator creates a generator. provider may be nil, in which
// case Generate returns domain.ErrEmbeddingUnavailable.
func NewEmbeddingsGenerator(
	provider driven.LLMProvider,
	cache driven.Cache,
	settings domain.EmbeddingSettings,
	ttl time.Duration,
) *EmbeddingsGenerator {
	g := &EmbeddingsGenerator{
		provider:     provider,
		cache:        cache,
		ttl:          ttl,
		pause:        settings.BatchPause,
		defaultModel: settings.Model,
	}
	g.SetBatchSize(settings.BatchSize)
	return g
}

// SetBatchSize sets the batch size, clamped to 1-100. Zero restores the default.
func (g *EmbeddingsGenerator) SetBatchSize(size int) {
	switch {
	case size == 0:
		size = DefaultEmbeddingBatchSize
	case size < MinEmbeddingBatchSize:
		size = MinEmbeddingBatchSize
	case size > MaxEmbeddingBatchSize:
		size = MaxEmbeddingBatchSize
	}
	g.mu.Lock()
	g.batchSize = size
	g.mu.Unlock()
}

// BatchSize returns the current batch size.
func (g *EmbeddingsGenerator) BatchSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.batchSize
}

// SetDefaultModel sets the model used when Generate is called without one.
func (g *EmbeddingsGenerator) SetDefaultModel(model string) {
	g.mu.Lock()
	g.defaultModel = model
	g.mu.Unlock()
}

// DefaultModel returns the default embedding model.
func (g *EmbeddingsGenerator) DefaultModel() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.defaultModel
}

// Available reports whether an embedding provider is configured.
func (g *EmbeddingsGenerator) Available() bool {
	return g.provider != nil
}

// Generate returns one embedding per input, in input order.
// Cached vectors are reused with the input's current metadata. A provider
// failure aborts the call and nothing from the failing batch is cached.
func (g *EmbeddingsGenerator) Generate(
	ctx context.Context, inputs []domain.EmbeddingInput, model string,
) ([]domain.GeneratedEmbedding, error) {
	if g.provider == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if model == "" {
		model = g.DefaultModel()
	}
	if len(inputs) == 0 {
		return []domain.GeneratedEmbedding{}, nil
	}

	batchSize := g.BatchSize()
	results := make([]domain.GeneratedEmbedding, len(inputs))

	// Pacing only applies when the work spans more than one batch.
	var limiter *rate.Limiter
	if len(inputs) > batchSize && g.pause > 0 {
		limiter = rate.NewLimiter(rate.Every(g.pause), 1)
	}

	var (
		pending []int
		keys    []string
		batchNo int
		hits    int
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		batchNo++
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return &domain.EmbeddingGenerationError{Model: model, Batch: batchNo, Err: err}
			}
		}

		texts := make([]string, len(pending))
		for i, idx := range pending {
			texts[i] = inputs[idx].Content
		}

		logger.Debug("Embedding batch %d: %d chunks with %s", batchNo, len(texts), model)
		vectors, err := g.provider.Embed(ctx, texts, model)
		if err != nil {
			return &domain.EmbeddingGenerationError{Model: model, Batch: batchNo, Err: err}
		}
		if len(vectors) != len(texts) {
			return &domain.EmbeddingGenerationError{
				Model: model,
				Batch: batchNo,
				Err:   fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts)),
			}
		}

		for i, idx := range pending {
			results[idx] = domain.GeneratedEmbedding{
				Content:  inputs[idx].Content,
				Vector:   vectors[i],
				Model:    model,
				Metadata: inputs[idx].Metadata,
			}
			g.cacheVector(ctx, keys[i], vectors[i])
		}
		pending = pending[:0]
		keys = keys[:0]
		return nil
	}

	for i, in := range inputs {
		key := hashKey(in.Content, model)
		if vec, ok := g.cachedVector(ctx, key); ok {
			results[i] = domain.GeneratedEmbedding{
				Content:  in.Content,
				Vector:   vec,
				Model:    model,
				Metadata: in.Metadata,
				Cached:   true,
			}
			hits++
		} else {
			pending = append(pending, i)
			keys = append(keys, key)
		}

		if len(pending) == batchSize || (i == len(inputs)-1 && len(pending) > 0) {
			if err := flush(); err != nil {
				logger.Error("Embedding generation failed: %v", err)
				return nil, err
			}
		}
	}

	logger.Debug("Generated %d embeddings (%d cached, %d batches)", len(results), hits, batchNo)
	return results, nil
}

// EmbedQuery embeds a single query string through the cache.
func (g *EmbeddingsGenerator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := g.Generate(ctx, []domain.EmbeddingInput{{Content: text}}, "")
	if err != nil {
		return nil, err
	}
	return out[0].Vector, nil
}

func (g *EmbeddingsGenerator) cachedVector(ctx context.Context, key string) ([]float32, bool) {
	var encoded string
	if !cacheGetJSON(ctx, g.cache, driven.CacheGroupEmbeddings, key, &encoded) {
		return nil, false
	}
	vec, err := domain.DecodeVector(encoded)
	if err != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

func (g *EmbeddingsGenerator) cacheVector(ctx context.Context, key string, vec []float32) {
	cacheSetJSON(ctx, g.cache, driven.CacheGroupEmbeddings, key, domain.EncodeVector(vec), g.ttl)
}

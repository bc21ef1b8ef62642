package postprocessors

import (
	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/postprocessors/chunker"
	"github.com/custodia-labs/ragline/internal/postprocessors/whitespace"
)

// RegisterDefaults registers all built-in processors with the registry.
// Call this during application initialisation to enable standard processors.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker)
	r.Register("whitespace", func(map[string]any) (driven.PostProcessor, error) {
		return whitespace.New(), nil
	})
}

// DefaultPipeline builds the chunker + whitespace pipeline from chunking settings.
func DefaultPipeline(settings domain.ChunkingSettings) (*Pipeline, error) {
	r := NewRegistry()
	RegisterDefaults(r)

	chunk, err := r.Build("chunker", map[string]any{
		"chunk_size": settings.Size,
		"overlap":    settings.Overlap,
	})
	if err != nil {
		return nil, err
	}
	ws, err := r.Build("whitespace", nil)
	if err != nil {
		return nil, err
	}

	return NewPipeline(chunk, ws), nil
}

// buildChunker creates a chunker processor from generic config.
// Supported config keys:
//   - chunk_size (int): Characters per chunk (default: 1000)
//   - overlap (int): Overlapping characters between chunks (default: 200)
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if cfg != nil {
		if size := getIntFromConfig(cfg, "chunk_size"); size > 0 {
			opts = append(opts, chunker.WithChunkSize(size))
		}
		if _, ok := cfg["overlap"]; ok {
			opts = append(opts, chunker.WithOverlap(getIntFromConfig(cfg, "overlap")))
		}
	}

	return chunker.New(opts...), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

package domain

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector packs a vector as little-endian float32 and wraps it in base64.
func EncodeVector(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeVector reverses EncodeVector.
func DecodeVector(s string) ([]float32, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("decode vector: %d bytes is not a multiple of 4: %w", len(data), ErrInvalidInput)
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}

// EmbeddingInput is a chunk awaiting an embedding.
type EmbeddingInput struct {
	Content  string
	Metadata ChunkMetadata
}

// GeneratedEmbedding is a chunk paired with its vector.
type GeneratedEmbedding struct {
	Content  string
	Vector   []float32
	Model    string
	Metadata ChunkMetadata
	// Cached is set when the vector came from the embedding cache.
	Cached bool
}

// StoreResult reports a StoreEmbeddings call. Prior writes are kept on failure.
type StoreResult struct {
	ChunkIDs []int64
	Stored   int
	Failed   int
	// LocalFallback counts vectors kept locally because the remote upsert
	// failed. They reach the remote index on the next to_remote migration.
	LocalFallback int
}

// DeleteResult counts rows removed for one document.
type DeleteResult struct {
	Embeddings int
	Chunks     int
}

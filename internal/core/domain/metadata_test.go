package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkMetadata_FlattenRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := ChunkMetadata{
		DocumentID:     7,
		ChunkIndex:     2,
		TotalChunks:    5,
		SourceType:     SourcePost,
		SourceRef:      "42",
		MIMEType:       "text/html",
		ContentType:    "page",
		Title:          "About us",
		Permalink:      "https://example.com/about",
		HasPrevious:    true,
		HasNext:        true,
		HasOverlapPrev: true,
		HasOverlapNext: true,
		Size:           812,
		CreatedAt:      created,
		ChatbotID:      3,
		Extra:          map[string]any{"migrated_from": "local"},
	}

	flat := meta.Flatten()
	assert.Equal(t, "page", flat[MetaContentType])
	assert.Equal(t, "local", flat["migrated_from"])

	// Simulate the JSON hop through the remote index.
	data, err := json.Marshal(flat)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	got := ChunkMetadataFromMap(decoded)
	assert.Equal(t, meta, got)
}

func TestChunkMetadata_Sanitized(t *testing.T) {
	meta := ChunkMetadata{DocumentID: 1, ChunkIndex: 3, SourceType: SourceFile, Extra: map[string]any{"content": "x"}}

	out := meta.Sanitized()

	assert.NotContains(t, out, MetaContent)
	assert.NotContains(t, out, MetaDocumentID)
	assert.NotContains(t, out, MetaChunkIndex)
	assert.Equal(t, "file", out[MetaSourceType])
}

func TestChunkMetadataFromMap_DropsContent(t *testing.T) {
	meta := ChunkMetadataFromMap(map[string]any{
		MetaContent:    "the text",
		MetaDocumentID: "12",
		MetaHasNext:    "true",
	})

	assert.Equal(t, int64(12), meta.DocumentID)
	assert.True(t, meta.HasNext)
	assert.Nil(t, meta.Extra)
}

func TestAsInt64(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int64
	}{
		{"int", 5, 5},
		{"int64", int64(6), 6},
		{"float64", float64(7), 7},
		{"json number", json.Number("8"), 8},
		{"string", "9", 9},
		{"bad string", "x", 0},
		{"nil", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AsInt64(tt.in))
		})
	}
}

package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Flat metadata keys shared by the local store and the remote index.
const (
	MetaContent        = "content"
	MetaDocumentID     = "document_id"
	MetaChunkIndex     = "chunk_index"
	MetaTotalChunks    = "total_chunks"
	MetaSourceType     = "source_type"
	MetaSourceRef      = "source_ref"
	MetaMIMEType       = "mime_type"
	MetaContentType    = "content_type"
	MetaTitle          = "title"
	MetaPermalink      = "permalink"
	MetaHasPrevious    = "has_previous"
	MetaHasNext        = "has_next"
	MetaHasOverlapPrev = "has_overlap_prev"
	MetaHasOverlapNext = "has_overlap_next"
	MetaSize           = "size"
	MetaCreatedAt      = "created_at"
	MetaChatbotID      = "chatbot_id"
)

// ChunkMetadata is the structured metadata carried by every chunk.
// Fields every component depends on are named; anything else lives in Extra.
type ChunkMetadata struct {
	DocumentID     int64
	ChunkIndex     int
	TotalChunks    int
	SourceType     SourceType
	SourceRef      string
	MIMEType       string
	ContentType    string
	Title          string
	Permalink      string
	HasPrevious    bool
	HasNext        bool
	HasOverlapPrev bool
	HasOverlapNext bool
	Size           int
	CreatedAt      time.Time
	ChatbotID      int64

	// Extra holds provider or migration specific keys.
	Extra map[string]any
}

// Flatten converts the metadata to the flat map used by the remote index.
// Empty optional strings are omitted.
func (m ChunkMetadata) Flatten() map[string]any {
	out := make(map[string]any, 16+len(m.Extra))
	for k, v := range m.Extra {
		out[k] = v
	}

	out[MetaDocumentID] = m.DocumentID
	out[MetaChunkIndex] = m.ChunkIndex
	out[MetaTotalChunks] = m.TotalChunks
	out[MetaHasPrevious] = m.HasPrevious
	out[MetaHasNext] = m.HasNext
	out[MetaHasOverlapPrev] = m.HasOverlapPrev
	out[MetaHasOverlapNext] = m.HasOverlapNext
	out[MetaSize] = m.Size

	setString(out, MetaSourceType, string(m.SourceType))
	setString(out, MetaSourceRef, m.SourceRef)
	setString(out, MetaMIMEType, m.MIMEType)
	setString(out, MetaContentType, m.ContentType)
	setString(out, MetaTitle, m.Title)
	setString(out, MetaPermalink, m.Permalink)
	if !m.CreatedAt.IsZero() {
		out[MetaCreatedAt] = m.CreatedAt.UTC().Format(time.RFC3339)
	}
	if m.ChatbotID != 0 {
		out[MetaChatbotID] = m.ChatbotID
	}
	return out
}

// Sanitized returns the flat map without the keys stored as columns.
func (m ChunkMetadata) Sanitized() map[string]any {
	out := m.Flatten()
	delete(out, MetaContent)
	delete(out, MetaDocumentID)
	delete(out, MetaChunkIndex)
	return out
}

// ChunkMetadataFromMap rebuilds structured metadata from a flat map.
// Unknown keys are preserved in Extra; content is dropped.
func ChunkMetadataFromMap(in map[string]any) ChunkMetadata {
	var m ChunkMetadata
	for k, v := range in {
		switch k {
		case MetaContent:
		case MetaDocumentID:
			m.DocumentID = AsInt64(v)
		case MetaChunkIndex:
			m.ChunkIndex = int(AsInt64(v))
		case MetaTotalChunks:
			m.TotalChunks = int(AsInt64(v))
		case MetaSourceType:
			m.SourceType = SourceType(AsString(v))
		case MetaSourceRef:
			m.SourceRef = AsString(v)
		case MetaMIMEType:
			m.MIMEType = AsString(v)
		case MetaContentType:
			m.ContentType = AsString(v)
		case MetaTitle:
			m.Title = AsString(v)
		case MetaPermalink:
			m.Permalink = AsString(v)
		case MetaHasPrevious:
			m.HasPrevious = AsBool(v)
		case MetaHasNext:
			m.HasNext = AsBool(v)
		case MetaHasOverlapPrev:
			m.HasOverlapPrev = AsBool(v)
		case MetaHasOverlapNext:
			m.HasOverlapNext = AsBool(v)
		case MetaSize:
			m.Size = int(AsInt64(v))
		case MetaCreatedAt:
			if t, err := time.Parse(time.RFC3339, AsString(v)); err == nil {
				m.CreatedAt = t
			}
		case MetaChatbotID:
			m.ChatbotID = AsInt64(v)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}
	return m
}

func setString(out map[string]any, key, val string) {
	if val != "" {
		out[key] = val
	}
}

// AsInt64 converts JSON and TOML number representations to int64.
func AsInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float32:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, _ := n.Float64()
			return int64(f)
		}
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

// AsString returns v if it is a string, otherwise "".
func AsString(v any) string {
	s, _ := v.(string)
	return s
}

// AsBool converts bools and "true"/"1" strings.
func AsBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "1"
	case float64:
		return b != 0
	default:
		return false
	}
}

package domain

import (
	"fmt"
	"strings"
)

// SimilarChunk is a normalised nearest-neighbour match.
type SimilarChunk struct {
	ChunkID    int64
	Content    string
	Similarity float64
	Metadata   ChunkMetadata
}

// SearchFilters narrows a similarity search. Keys match flat metadata keys.
type SearchFilters map[string]any

// Match reports whether every filter key is present in the flattened
// metadata with an equal value. Values compare by string form, case
// insensitively; a slice value matches any of its elements.
func (f SearchFilters) Match(meta ChunkMetadata) bool {
	if len(f) == 0 {
		return true
	}
	flat := meta.Flatten()
	for key, want := range f {
		got, ok := flat[key]
		if !ok || !valueMatches(got, want) {
			return false
		}
	}
	return true
}

func valueMatches(got, want any) bool {
	switch w := want.(type) {
	case []string:
		for _, v := range w {
			if valueMatches(got, v) {
				return true
			}
		}
		return false
	case []any:
		for _, v := range w {
			if valueMatches(got, v) {
				return true
			}
		}
		return false
	}
	return strings.EqualFold(fmt.Sprint(got), fmt.Sprint(want))
}

// ContextOptions configures a FindContext call.
// Zero values fall back to the retrieval settings.
type ContextOptions struct {
	MaxResults int
	// MinSimilarity overrides the configured threshold when set; zero is a
	// valid threshold.
	MinSimilarity *float64
	Filters       SearchFilters
	Rerank        *bool
	// ContextWindow is the number of neighbours fetched on each side.
	// A negative value disables expansion.
	ContextWindow  int
	DedupThreshold float64
}

// ContextChunk is a neighbouring chunk attached to a match.
type ContextChunk struct {
	ChunkID    int64  `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

// ContextResult is one formatted retrieval result.
type ContextResult struct {
	ChunkID   int64          `json:"chunk_id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Relevance float64        `json:"relevance"`
	Source    string         `json:"source"`
	Before    []ContextChunk `json:"before,omitempty"`
	After     []ContextChunk `json:"after,omitempty"`
}

// ProcessOptions configures ingestion of one document.
type ProcessOptions struct {
	Model     string
	ChatbotID int64
}

// ProcessResult reports the outcome of ingesting one document.
type ProcessResult struct {
	DocumentID int64
	Chunks     int
	Embeddings int
	Failed     int
	Updated    bool
}

// QueueResult reports one queue-processing pass.
type QueueResult struct {
	Processed int
	Succeeded int
	Failed    int
	Results   []ProcessResult
	Errors    map[int64]string
}

// DocumentRequest asks for a document to be queued for ingestion.
type DocumentRequest struct {
	Title      string
	SourceType SourceType
	SourceRef  string
	ChatbotID  int64
}

// ChatRequest is one chat turn.
type ChatRequest struct {
	Message        string
	ConversationID int64
	ChatbotID      int64
	Identity       Identity
}

// ResponseMetadata describes how a response was produced.
type ResponseMetadata struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Model            string  `json:"model"`
	ProcessingTime   float64 `json:"processing_time"`
	ChunkCount       int     `json:"chunk_count"`
	Greeting         bool    `json:"greeting,omitempty"`
	Fallback         bool    `json:"fallback,omitempty"`
}

// ChatResponse is the result of a chat turn.
type ChatResponse struct {
	Response       string           `json:"response"`
	ConversationID int64            `json:"conversation_id"`
	Context        []ContextResult  `json:"context"`
	Metadata       ResponseMetadata `json:"metadata"`
}

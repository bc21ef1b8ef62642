package driven

import (
	"context"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// Normaliser extracts plain text from raw content.
// Each normaliser handles specific MIME types (e.g., PDF, Markdown).
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Generic MIME normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise extracts text and a title from a raw document.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
}

// NormaliseResult contains the output of normalisation.
// Chunking is handled by the PostProcessor pipeline.
type NormaliseResult struct {
	// Title is the extracted or derived title.
	Title string

	// Content is the plain text.
	Content string

	// Metadata carries format details such as mime_type and page_count.
	Metadata map[string]any
}

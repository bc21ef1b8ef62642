package plaintext

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/csv",
		"text/tab-separated-values",
		"text/x-log",
		"text/yaml",
		"text/xml",
		"application/json",
		"application/xml",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise passes text through, dropping invalid UTF-8 and NUL bytes.
// Chunking is handled by the PostProcessor pipeline.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := strings.ToValidUTF8(string(raw.Content), "")
	content = strings.ReplaceAll(content, "\x00", "")

	metadata := copyMetadata(raw.Metadata)
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["mime_type"] = raw.MIMEType

	return &driven.NormaliseResult{
		Title:    extractTitleFromMetadataOrURI(raw),
		Content:  content,
		Metadata: metadata,
	}, nil
}

// extractTitleFromMetadataOrURI checks metadata for title first, then falls back to URI.
func extractTitleFromMetadataOrURI(raw *domain.RawDocument) string {
	if raw.Metadata != nil {
		if title, ok := raw.Metadata["title"].(string); ok && title != "" {
			return title
		}
	}
	return extractTitle(raw.URI)
}

// extractTitle extracts a human-readable title from a URI.
func extractTitle(uri string) string {
	filename := filepath.Base(uri)

	ext := filepath.Ext(filename)
	if ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}

	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")

	return filename
}

// copyMetadata creates a shallow copy of metadata.
func copyMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

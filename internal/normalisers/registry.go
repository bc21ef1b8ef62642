package normalisers

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/normalisers/docx"
	"github.com/custodia-labs/ragline/internal/normalisers/eml"
	"github.com/custodia-labs/ragline/internal/normalisers/html"
	"github.com/custodia-labs/ragline/internal/normalisers/markdown"
	"github.com/custodia-labs/ragline/internal/normalisers/pdf"
	"github.com/custodia-labs/ragline/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry dispatches raw documents to the highest priority normaliser
// registered for their MIME type.
type Registry struct {
	mu     sync.RWMutex
	byMIME map[string][]driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byMIME: make(map[string][]driven.Normaliser)}
}

// Register adds a normaliser under each of its MIME types.
func (r *Registry) Register(normaliser driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mimeType := range normaliser.SupportedMIMETypes() {
		list := append(r.byMIME[mimeType], normaliser)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		r.byMIME[mimeType] = list
	}
}

// Normalise runs the best matching normaliser.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, fmt.Errorf("raw document is nil: %w", domain.ErrInvalidInput)
	}

	n := r.lookup(raw.MIMEType)
	if n == nil {
		return nil, &domain.UnsupportedFormatError{Format: raw.MIMEType}
	}
	return n.Normalise(ctx, raw)
}

// SupportedMIMETypes returns all registered MIME types, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.byMIME))
	for mimeType := range r.byMIME {
		types = append(types, mimeType)
	}
	sort.Strings(types)
	return types
}

// DetectMIMEType resolves a file's MIME type from its extension.
func (r *Registry) DetectMIMEType(path string) string {
	return MIMETypeForPath(path)
}

func (r *Registry) lookup(mimeType string) driven.Normaliser {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = mimeType
	}
	base = strings.ToLower(strings.TrimSpace(base))

	r.mu.RLock()
	defer r.mu.RUnlock()
	if list := r.byMIME[base]; len(list) > 0 {
		return list[0]
	}
	return nil
}

// RegisterDefaults registers the built-in normalisers.
// DOCX support is opt-in through loader settings.
func RegisterDefaults(r *Registry, settings domain.LoaderSettings) {
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
	r.Register(pdf.New().WithTempDir(settings.TempDir))
	r.Register(eml.New())
	if settings.EnableDocx {
		r.Register(docx.New())
	}
}

// extensionTypes maps file extensions to the MIME types normalisers accept.
var extensionTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/x-log",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
	".json":     "application/json",
	".xml":      "application/xml",
	".yaml":     "text/yaml",
	".yml":      "text/yaml",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
	".xhtml":    "application/xhtml+xml",
	".pdf":      "application/pdf",
	".docx":     docx.MIMEType,
	".doc":      "application/msword",
	".odt":      "application/vnd.oasis.opendocument.text",
	".eml":      eml.MIMEType,
}

// MIMETypeForPath resolves a file's MIME type from its extension.
// Unknown extensions fall back to the system table, then to octet-stream.
func MIMETypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if base, _, err := mime.ParseMediaType(t); err == nil {
			return base
		}
		return t
	}
	return "application/octet-stream"
}

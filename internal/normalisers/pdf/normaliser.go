// Package pdf provides a Normaliser for PDF documents.
// Text comes from pdftotext; page metadata comes from pdfcpu.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/logger"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// maxTitleLength bounds a first line that is used as the title.
const maxTitleLength = 200

var disableConfigDir sync.Once

// Normaliser handles PDF documents.
type Normaliser struct {
	runner  driven.CommandRunner
	tempDir string
}

// New creates a PDF normaliser that shells out to pdftotext.
func New() *Normaliser {
	return NewWithRunner(execRunner{})
}

// NewWithRunner creates a PDF normaliser with a custom command runner.
func NewWithRunner(runner driven.CommandRunner) *Normaliser {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Normaliser{runner: runner}
}

// WithTempDir sets where PDFs are staged for extraction.
func (n *Normaliser) WithTempDir(dir string) *Normaliser {
	n.tempDir = dir
	return n
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"application/pdf"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser
}

// Normalise extracts and repairs the text layer of a PDF.
func (n *Normaliser) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	if !bytes.HasPrefix(bytes.TrimLeft(raw.Content, " \t\r\n"), []byte("%PDF")) {
		return nil, &domain.ParseError{Source: raw.URI, Err: errors.New("not a PDF file")}
	}

	tmp, err := os.CreateTemp(n.tempDir, "ragline-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("stage pdf: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(raw.Content); err != nil {
		tmp.Close() //nolint:errcheck
		return nil, fmt.Errorf("stage pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("stage pdf: %w", err)
	}

	out, err := n.runner.Run(ctx, "pdftotext", "-enc", "UTF-8", "-q", tmp.Name(), "-")
	if err != nil {
		if errors.Is(err, ErrPDFToolNotFound) {
			logger.Warn("%s", InstallInstructions())
			return nil, &domain.UnsupportedFormatError{Format: "application/pdf (pdftotext not installed)"}
		}
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}

	content := RepairEncoding(string(out))

	metadata := copyMetadata(raw.Metadata)
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["mime_type"] = raw.MIMEType
	metadata["format"] = "pdf"
	if pages, encrypted, ok := pageInfo(tmp.Name()); ok {
		metadata["page_count"] = pages
		metadata["encrypted"] = encrypted
	}

	title := ""
	if t, ok := raw.Metadata["title"].(string); ok {
		title = strings.TrimSpace(t)
	}
	if title == "" {
		title = extractTitle(content, raw.URI)
	}

	return &driven.NormaliseResult{
		Title:    title,
		Content:  content,
		Metadata: metadata,
	}, nil
}

// pageInfo reads page count and encryption state with pdfcpu.
// Damaged files that pdftotext can still read are not treated as errors.
func pageInfo(path string) (pages int, encrypted bool, ok bool) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		logger.Debug("pdf: read context %s: %v", filepath.Base(path), err)
		return 0, false, false
	}
	return pdfCtx.PageCount, pdfCtx.Encrypt != nil, true
}

// extractTitle uses the first short non-empty line or falls back to filename.
func extractTitle(content, uri string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && len(line) <= maxTitleLength {
			return line
		}
	}

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

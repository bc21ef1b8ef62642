// Package docx provides a Normaliser for Word OOXML documents.
// It is registered only when loader.enable_docx is set.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// MIMEType is the OOXML word-processing document type.
const MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const (
	documentPart = "word/document.xml"
	corePart     = "docProps/core.xml"
)

// Normaliser handles DOCX documents.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{MIMEType}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser
}

// Normalise extracts paragraph and table text from a DOCX archive.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	reader, err := zip.NewReader(bytes.NewReader(raw.Content), int64(len(raw.Content)))
	if err != nil {
		return nil, &domain.ParseError{Source: raw.URI, Err: fmt.Errorf("open archive: %w", err)}
	}

	body, err := readPart(reader, documentPart)
	if err != nil {
		return nil, &domain.ParseError{Source: raw.URI, Err: err}
	}

	content, err := documentText(body)
	if err != nil {
		return nil, &domain.ParseError{Source: raw.URI, Err: err}
	}

	metadata := copyMetadata(raw.Metadata)
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["mime_type"] = raw.MIMEType
	metadata["format"] = "docx"

	return &driven.NormaliseResult{
		Title:    title(reader, raw),
		Content:  content,
		Metadata: metadata,
	}, nil
}

// readPart returns the bytes of a named archive member.
func readPart(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close() //nolint:errcheck

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("missing %s", name)
}

// documentText walks word/document.xml token by token. Paragraphs become
// lines, table cells are tab separated and explicit breaks are kept.
func documentText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		out    strings.Builder
		line   strings.Builder
		inText bool
		inCell bool
	)
	flush := func() {
		text := strings.TrimRight(line.String(), " \t")
		line.Reset()
		if text == "" {
			return
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(text)
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode document: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				line.WriteByte('\t')
			case "br", "cr":
				if !inCell {
					flush()
				} else {
					line.WriteByte(' ')
				}
			case "tc":
				inCell = true
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				if inCell {
					line.WriteByte(' ')
				} else {
					flush()
				}
			case "tc":
				inCell = false
				trimmed := strings.TrimRight(line.String(), " ")
				line.Reset()
				line.WriteString(trimmed)
				line.WriteByte('\t')
			case "tr":
				flush()
			}
		case xml.CharData:
			if inText {
				line.Write(el)
			}
		}
	}
	flush()

	return strings.TrimSpace(out.String()), nil
}

type coreProperties struct {
	Title string `xml:"title"`
}

// title prefers caller metadata, then docProps/core.xml, then the filename.
func title(reader *zip.Reader, raw *domain.RawDocument) string {
	if t, ok := raw.Metadata["title"].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}

	if data, err := readPart(reader, corePart); err == nil {
		var core coreProperties
		if err := xml.Unmarshal(data, &core); err == nil && strings.TrimSpace(core.Title) != "" {
			return strings.TrimSpace(core.Title)
		}
	}

	filename := filepath.Base(raw.URI)
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))
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

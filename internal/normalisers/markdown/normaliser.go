package markdown

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise converts a markdown document to plain text.
// Chunking is handled by the PostProcessor pipeline.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	heading, content := PlainText(raw.Content)

	title := titleFromMetadata(raw.Metadata)
	if title == "" {
		title = heading
	}
	if title == "" {
		title = titleFromURI(raw.URI)
	}

	metadata := copyMetadata(raw.Metadata)
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["mime_type"] = raw.MIMEType
	metadata["format"] = "markdown"

	return &driven.NormaliseResult{
		Title:    title,
		Content:  content,
		Metadata: metadata,
	}, nil
}

var multiNewlines = regexp.MustCompile(`\n{3,}`)

// PlainText renders markdown source as plain text.
// It also returns the text of the first level-one heading, if any.
func PlainText(source []byte) (title, content string) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
	doc := md.Parser().Parse(text.NewReader(source))

	w := &textWriter{source: source}
	_ = ast.Walk(doc, w.walk)

	content = multiNewlines.ReplaceAllString(w.buf.String(), "\n\n")
	return w.title, strings.TrimSpace(content)
}

// textWriter accumulates the text of a markdown AST.
type textWriter struct {
	source  []byte
	buf     strings.Builder
	title   string
	heading *strings.Builder
}

func (w *textWriter) write(s string) {
	w.buf.WriteString(s)
	if w.heading != nil {
		w.heading.WriteString(s)
	}
}

func (w *textWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Text:
		if entering {
			w.write(string(node.Segment.Value(w.source)))
			if node.SoftLineBreak() || node.HardLineBreak() {
				w.write("\n")
			}
		}
	case *ast.String:
		if entering {
			w.write(string(node.Value))
		}
	case *ast.AutoLink:
		if entering {
			w.write(string(node.Label(w.source)))
		}
	case *ast.Image, *ast.HTMLBlock, *ast.RawHTML:
		return ast.WalkSkipChildren, nil
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				w.write(string(seg.Value(w.source)))
			}
			w.write("\n")
		}
		return ast.WalkSkipChildren, nil
	case *ast.Heading:
		if entering {
			if node.Level == 1 && w.title == "" {
				w.heading = &strings.Builder{}
			}
			return ast.WalkContinue, nil
		}
		if w.heading != nil {
			w.title = strings.TrimSpace(w.heading.String())
			w.heading = nil
		}
		w.write("\n\n")
	case *extast.TableCell:
		if !entering {
			w.write(" ")
		}
	case *extast.TableRow, *extast.TableHeader:
		if !entering {
			w.write("\n")
		}
	case *ast.Paragraph, *ast.Blockquote, *ast.List, *ast.ThematicBreak:
		if !entering {
			w.write("\n\n")
		}
	case *ast.TextBlock:
		if !entering {
			w.write("\n")
		}
	}
	return ast.WalkContinue, nil
}

func titleFromMetadata(metadata map[string]any) string {
	if title, ok := metadata["title"].(string); ok {
		return strings.TrimSpace(title)
	}
	return ""
}

// titleFromURI derives a human-readable title from a file name.
func titleFromURI(uri string) string {
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

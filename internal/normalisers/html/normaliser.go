package html

import (
	"bytes"
	"context"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/logger"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct {
	converter *md.Converter
}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{
		converter: md.NewConverter("", true, nil),
	}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise extracts the readable text of an HTML document.
// Chunking is handled by the PostProcessor pipeline.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	metadata := copyMetadata(raw.Metadata)
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["mime_type"] = raw.MIMEType
	metadata["format"] = "html"

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, &domain.ParseError{Source: raw.URI, Err: err}
	}

	title := titleFromMetadata(raw.Metadata)
	if title == "" {
		title = extractHTMLTitle(doc, raw.URI)
	}

	return &driven.NormaliseResult{
		Title:    title,
		Content:  n.readableText(doc),
		Metadata: metadata,
	}, nil
}

// boilerplate matches page furniture that never carries article content.
var boilerplate = strings.Join([]string{
	"script", "style", "noscript", "template", "svg", "iframe", "form",
	"nav", "header", "footer", "aside",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]", "[aria-hidden=true]",
	".sidebar", ".menu", ".nav", ".navbar", ".breadcrumb", ".breadcrumbs",
	".advertisement", ".ads", ".cookie-banner", ".share", ".social",
	"#comments", ".comments", "#sidebar",
}, ", ")

// contentSelectors are candidate containers for the main content.
var contentSelectors = strings.Join([]string{
	"article", "main", "[role=main]",
	"#content", ".content", ".post-content", ".entry-content", ".article-body",
}, ", ")

// readableText removes boilerplate, picks the richest content container
// and renders it as text.
func (n *Normaliser) readableText(doc *goquery.Document) string {
	doc.Find(boilerplate).Remove()

	selection := doc.Find("body")
	if selection.Length() == 0 {
		selection = doc.Selection
	}

	best := 0
	doc.Find(contentSelectors).Each(func(_ int, s *goquery.Selection) {
		if l := len(strings.TrimSpace(s.Text())); l > best {
			selection, best = s, l
		}
	})

	fragment, err := goquery.OuterHtml(selection)
	if err != nil {
		logger.Debug("html: render selection: %v", err)
		return stripHTML(selection.Text())
	}

	markdown, err := n.converter.ConvertString(fragment)
	if err != nil {
		logger.Debug("html: markdown conversion failed, stripping tags: %v", err)
		return stripHTML(fragment)
	}
	return cleanMarkdown(markdown)
}

// extractHTMLTitle extracts a title from the page or falls back to filename.
func extractHTMLTitle(doc *goquery.Document, uri string) string {
	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
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

func titleFromMetadata(metadata map[string]any) string {
	if title, ok := metadata["title"].(string); ok {
		return strings.TrimSpace(title)
	}
	return ""
}

// Pre-compiled regular expressions for markdown cleanup.
var (
	mdImages      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinks       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdHeadings    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdStrong      = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	mdEmphasis    = regexp.MustCompile(`(?:^|\b)_([^_\n]+)_(?:\b|$)`)
	mdStar        = regexp.MustCompile(`\*([^*\n]+)\*`)
	mdListMarkers = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	mdQuotes      = regexp.MustCompile(`(?m)^>\s?`)
	mdFences      = regexp.MustCompile("(?m)^```[a-zA-Z0-9_-]*\\s*$")
	mdRules       = regexp.MustCompile(`(?m)^\s*(?:[-*_]\s*){3,}$`)
	mdEscapes     = regexp.MustCompile("\\\\([\\\\`*_{}\\[\\]()#+\\-.!<>|~=])")
)

// escapeBase is a private-use rune range holding escaped characters
// while emphasis markers are stripped.
const escapeBase = 0xE000

// cleanMarkdown reduces converter output to plain text.
func cleanMarkdown(content string) string {
	content = mdEscapes.ReplaceAllStringFunc(content, func(m string) string {
		return string(rune(escapeBase + int(m[1])))
	})

	content = mdImages.ReplaceAllString(content, "")
	content = mdLinks.ReplaceAllString(content, "$1")
	content = mdFences.ReplaceAllString(content, "")
	content = mdRules.ReplaceAllString(content, "")
	content = mdHeadings.ReplaceAllString(content, "")
	content = mdQuotes.ReplaceAllString(content, "")
	content = mdListMarkers.ReplaceAllString(content, "")
	content = mdStrong.ReplaceAllString(content, "$1")
	content = mdStar.ReplaceAllString(content, "$1")
	content = mdEmphasis.ReplaceAllString(content, "$1")
	content = strings.Map(func(r rune) rune {
		if r >= escapeBase && r < escapeBase+128 {
			return r - escapeBase
		}
		return r
	}, content)
	return tidyLines(content)
}

// Pre-compiled regular expressions for the tag-stripping fallback.
var (
	titleTag          = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptTag         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag       = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag           = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag            = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|br|hr|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	brTags            = regexp.MustCompile(`(?i)<br\s*/?>`)
	hrTags            = regexp.MustCompile(`(?i)<hr\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
	multiSpaces       = regexp.MustCompile(`[ \t]+`)
	multiNewlines     = regexp.MustCompile(`\n{3,}`)
)

// StripTags removes markup from an HTML fragment with no readability pass.
// CMS post bodies use it since they have no page furniture to remove.
func StripTags(content string) string {
	return stripHTML(content)
}

// stripHTML removes HTML tags and extracts readable text content.
func stripHTML(content string) string {
	// Remove script, style, noscript, head, and svg tags entirely
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = titleTag.ReplaceAllString(content, "")
	content = svgTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")

	// Block elements become line breaks
	content = openBlockElements.ReplaceAllString(content, "\n")
	content = blockElements.ReplaceAllString(content, "\n")
	content = brTags.ReplaceAllString(content, "\n")
	content = hrTags.ReplaceAllString(content, "\n")

	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)

	return tidyLines(content)
}

// tidyLines collapses spaces, trims each line and drops empty lines.
func tidyLines(content string) string {
	content = multiSpaces.ReplaceAllString(content, " ")
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
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

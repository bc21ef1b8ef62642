// Package eml extracts the text of saved email messages.
package eml

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/normalisers/html"
)

// MIMEType is the content type of .eml files.
const MIMEType = "message/rfc822"

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles RFC 822 messages. HTML bodies go through the HTML normaliser.
type Normaliser struct {
	html *html.Normaliser
}

// New creates a new EML normaliser.
func New() *Normaliser {
	return &Normaliser{html: html.New()}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{MIMEType}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise renders the headers that matter for retrieval followed by the body.
func (n *Normaliser) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, &domain.ParseError{Source: raw.URI, Err: err}
	}

	subject, _ := mr.Header.Subject()
	from, _ := mr.Header.Text("From")
	to, _ := mr.Header.Text("To")
	date := mr.Header.Get("Date")

	body, err := n.body(ctx, mr)
	if err != nil {
		return nil, &domain.ParseError{Source: raw.URI, Err: err}
	}

	var content strings.Builder
	for _, h := range []struct{ name, value string }{
		{"From", from}, {"To", to}, {"Date", date}, {"Subject", subject},
	} {
		if h.value != "" {
			content.WriteString(h.name + ": " + h.value + "\n")
		}
	}
	content.WriteString("\n")
	content.WriteString(body)

	metadata := make(map[string]any, len(raw.Metadata)+5)
	for k, v := range raw.Metadata {
		metadata[k] = v
	}
	metadata["mime_type"] = raw.MIMEType
	metadata["format"] = "eml"
	for k, v := range map[string]string{"from": from, "to": to, "date": date} {
		if v != "" {
			metadata[k] = v
		}
	}

	title := subject
	if t, ok := raw.Metadata["title"].(string); ok && t != "" {
		title = t
	}
	if title == "" {
		title = titleFromURI(raw.URI)
	}

	return &driven.NormaliseResult{
		Title:    title,
		Content:  strings.TrimSpace(content.String()),
		Metadata: metadata,
	}, nil
}

// body walks every inline part, nested multiparts included. Plain text is
// preferred over HTML and attachments are skipped.
func (n *Normaliser) body(ctx context.Context, mr *mail.Reader) (string, error) {
	var text, htmlParts []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := h.ContentType()
		if err != nil || contentType == "" {
			contentType = "text/plain"
		}
		if contentType != "text/plain" && contentType != "text/html" {
			continue
		}

		data, err := io.ReadAll(p.Body)
		if err != nil {
			return "", err
		}
		if contentType == "text/html" {
			out, err := n.renderHTML(ctx, data)
			if err != nil || strings.TrimSpace(out) == "" {
				continue
			}
			htmlParts = append(htmlParts, out)
			continue
		}
		if strings.TrimSpace(string(data)) != "" {
			text = append(text, string(data))
		}
	}

	if len(text) > 0 {
		return strings.Join(text, "\n"), nil
	}
	return strings.Join(htmlParts, "\n"), nil
}

func (n *Normaliser) renderHTML(ctx context.Context, data []byte) (string, error) {
	res, err := n.html.Normalise(ctx, &domain.RawDocument{MIMEType: "text/html", Content: data})
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

func titleFromURI(uri string) string {
	name := filepath.Base(uri)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}

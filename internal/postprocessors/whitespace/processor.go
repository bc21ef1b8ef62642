// Package whitespace provides a processor that tidies chunk whitespace.
package whitespace

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
	"github.com/custodia-labs/ragline/internal/postprocessors/chunker"
)

// Verify interface compliance.
var _ driven.PostProcessor = (*Processor)(nil)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// Processor collapses runs of spaces and blank lines inside chunks
// and drops chunks left empty.
type Processor struct{}

// New creates a whitespace processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "whitespace"
}

// Process normalises whitespace and re-sequences the surviving chunks.
func (p *Processor) Process(_ context.Context, _ *driven.ChunkSource, chunks []domain.Chunk) ([]domain.Chunk, error) {
	out := chunks[:0]
	for _, c := range chunks {
		c.Content = Clean(c.Content)
		if c.Content == "" {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, nil
	}

	chunker.Sequence(out)
	return out, nil
}

// Clean collapses horizontal whitespace, limits blank lines to one and trims the result.
func Clean(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(s, "\n\n"))
}

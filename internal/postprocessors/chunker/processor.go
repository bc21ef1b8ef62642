// Package chunker provides a word-boundary aware text chunking processor.
package chunker

import (
	"context"
	"strings"
	"unicode"

	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Verify interface compliance.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor splits text into overlapping character windows.
// Window ends snap back to the last whitespace so words are not split.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// span is a half-open rune range of the source text.
type span struct {
	start, end int
}

// Process splits the source text into chunks.
// Input chunks are ignored; this processor creates new chunks from the source.
func (p *Processor) Process(_ context.Context, src *driven.ChunkSource, _ []domain.Chunk) ([]domain.Chunk, error) {
	if src == nil || strings.TrimSpace(src.Text) == "" {
		return nil, nil
	}

	text := []rune(src.Text)
	spans := p.split(text)

	chunks := make([]domain.Chunk, 0, len(spans))
	for i, s := range spans {
		meta := src.Base
		meta.Extra = copyExtra(src.Base.Extra)
		meta.HasOverlapPrev = i > 0 && s.start < spans[i-1].end
		meta.HasOverlapNext = i < len(spans)-1 && spans[i+1].start < s.end

		chunks = append(chunks, domain.Chunk{
			DocumentID: src.DocumentID,
			Content:    strings.TrimSpace(string(text[s.start:s.end])),
			Metadata:   meta,
		})
	}

	Sequence(chunks)
	return chunks, nil
}

// split computes window boundaries over text.
func (p *Processor) split(text []rune) []span {
	n := len(text)
	var spans []span //nolint:prealloc // size depends on whitespace positions

	start := skipSpace(text, 0)
	for start < n {
		end := start + p.chunkSize
		if end >= n {
			spans = append(spans, span{start, n})
			break
		}

		// Snap back to a word boundary, but never shrink below half a window.
		if cut := lastSpace(text, start+p.chunkSize/2, end); cut > start {
			end = cut
		}
		spans = append(spans, span{start, end})

		next := end - p.overlap
		if next <= start {
			next = end
		}
		// Start overlapping windows on a word.
		if next < end && next > 0 && !unicode.IsSpace(text[next-1]) {
			if i := nextSpace(text, next, end); i < end {
				next = i
			}
		}
		start = skipSpace(text, next)
	}

	return spans
}

// Sequence assigns contiguous indexes and position flags to chunks in order.
// Overlap flags are kept but cleared at the ends of the sequence.
func Sequence(chunks []domain.Chunk) {
	total := len(chunks)
	for i := range chunks {
		m := &chunks[i].Metadata
		chunks[i].ChunkIndex = i
		m.DocumentID = chunks[i].DocumentID
		m.ChunkIndex = i
		m.TotalChunks = total
		m.HasPrevious = i > 0
		m.HasNext = i < total-1
		m.HasOverlapPrev = m.HasOverlapPrev && m.HasPrevious
		m.HasOverlapNext = m.HasOverlapNext && m.HasNext
		m.Size = len([]rune(chunks[i].Content))
	}
}

func skipSpace(text []rune, i int) int {
	for i < len(text) && unicode.IsSpace(text[i]) {
		i++
	}
	return i
}

// lastSpace returns the index of the last whitespace rune in [from, to), or -1.
func lastSpace(text []rune, from, to int) int {
	for i := to - 1; i >= from && i >= 0; i-- {
		if unicode.IsSpace(text[i]) {
			return i
		}
	}
	return -1
}

// nextSpace returns the index of the first whitespace rune in [from, to), or to.
func nextSpace(text []rune, from, to int) int {
	for i := from; i < to; i++ {
		if unicode.IsSpace(text[i]) {
			return i
		}
	}
	return to
}

func copyExtra(extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Package chunker splits normalized document text into overlapping windows
// for LLM extraction. Chunking is deterministic for a given (text, size,
// overlap), so a resumed run re-slices the document and skips already
// processed indices instead of persisting chunk text.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/faultgraph/faultgraph/pkg/types"
)

const (
	// DefaultSize is the default chunk size in characters.
	DefaultSize = 800
	// DefaultOverlap is the default overlap between consecutive chunks.
	DefaultOverlap = 100

	// boundaryTolerance is the fraction of the chunk size searched backwards
	// from the hard cut for a sentence or paragraph boundary.
	boundaryTolerance = 0.15
)

// ErrEmptyDocument is returned when the input text contains nothing to chunk.
var ErrEmptyDocument = errors.New("document text is empty")

// Boundary delimiters in preference order. Paragraph breaks beat sentence
// ends beat line breaks beat plain spaces.
var boundaries = []string{"\n\n", ". ", "\n", " "}

// Chunker produces overlapping character windows over a document.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Requires 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, size), got overlap=%d size=%d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk splits text into overlapping windows. Consecutive windows overlap by
// exactly the configured overlap; the final window may be shorter than size.
// Whitespace-only windows are dropped. Offsets are in runes.
func (c *Chunker) Chunk(text string) ([]types.Chunk, error) {
	runes := []rune(text)
	if len(strings.TrimSpace(text)) == 0 {
		return nil, ErrEmptyDocument
	}

	var chunks []types.Chunk
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.splitPoint(runes, start, end)
		}

		window := string(runes[start:end])
		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, types.Chunk{
				Index:     len(chunks),
				Text:      window,
				CharStart: start,
				CharEnd:   end,
			})
		}

		if end == len(runes) {
			break
		}
		start = end - c.overlap
	}

	return chunks, nil
}

// splitPoint searches backwards from the hard cut for a natural boundary
// within the tolerance window. Falls back to the hard character cut, and the
// chosen point always clears the overlap so the next window makes progress.
func (c *Chunker) splitPoint(runes []rune, start, hardEnd int) int {
	tol := int(float64(c.size) * boundaryTolerance)
	windowStart := hardEnd - tol
	if windowStart <= start+c.overlap {
		windowStart = start + c.overlap + 1
	}
	if windowStart >= hardEnd {
		return hardEnd
	}

	window := string(runes[windowStart:hardEnd])
	for _, delim := range boundaries {
		if idx := strings.LastIndex(window, delim); idx >= 0 {
			// Cut after the delimiter so the boundary stays with this chunk.
			cut := windowStart + len([]rune(window[:idx+len(delim)]))
			if cut > start+c.overlap {
				return cut
			}
		}
	}
	return hardEnd
}

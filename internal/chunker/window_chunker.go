package chunker

import (
	"fmt"
	"unicode"

	"speakdocs/internal/domain"
)

const (
	defaultSize    = 1000
	defaultOverlap = 200
)

// WindowChunker splits text into character windows with a fixed overlap.
// Each window ends on a structural boundary where one exists (paragraph
// break, then sentence end, then word break), falling back to a hard cut.
// The next window always starts exactly `overlap` characters before the
// previous window's end, so stripping the overlap from every chunk after
// the first reconstructs the input.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker creates a chunker with the given window size and
// overlap, measured in runes. Zero values select the defaults (1000/200).
func NewWindowChunker(size, overlap int) *WindowChunker {
	if size == 0 {
		size = defaultSize
		if overlap == 0 {
			overlap = defaultOverlap
		}
	}
	return &WindowChunker{size: size, overlap: overlap}
}

// Chunk splits text into ordered chunks. Empty input yields no chunks.
// An overlap that is negative or not smaller than the window size is a
// configuration error reported here rather than clamped.
func (c *WindowChunker) Chunk(text string) ([]string, error) {
	if c.size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfig, c.size)
	}
	if c.overlap < 0 || c.overlap >= c.size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", domain.ErrConfig, c.overlap, c.size)
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}
	var chunks []string
	start := 0
	for {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks, nil
		}
		cut := c.cutPoint(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - c.overlap
	}
}

// cutPoint picks where to end the window starting at start. It scans
// backwards from the hard limit for a paragraph break, then a sentence
// end, then any whitespace. The cut never retreats past start+overlap,
// otherwise the next window would make no progress.
func (c *WindowChunker) cutPoint(runes []rune, start, end int) int {
	lo := start + c.overlap + 1
	for i := end; i > lo; i-- {
		if runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := end; i > lo; i-- {
		r := runes[i-2]
		if (r == '.' || r == '!' || r == '?') && unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	for i := end; i > lo; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

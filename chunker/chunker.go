// Package chunker splits raw content into bounded, overlapping chunks
// suitable for retrieval granularity. Splitting is a pure function of its
// input: no I/O, no side effects, stable positional ordering.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/poiesic/retrievit/core"
)

const (
	// DefaultMaxLen is the default maximum chunk length in bytes.
	DefaultMaxLen = 1000
	// DefaultOverlap is the default number of bytes shared between adjacent
	// chunks so context at boundaries is not lost.
	DefaultOverlap = 200

	// boundaryWindow is how far back from the hard cut a semantic boundary
	// is searched for.
	boundaryWindow = 100
)

// Boundary delimiters in preference order: paragraph breaks, sentence
// endings, then any line or clause break.
var boundaryDelims = []string{"\n\n", ". ", "\n", "!", "?", ";"}

// Chunker splits text into chunks of bounded length.
type Chunker struct {
	maxLen  int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxLen sets the maximum chunk length in bytes.
// Default is DefaultMaxLen.
func WithMaxLen(maxLen int) Option {
	return func(c *Chunker) {
		c.maxLen = maxLen
	}
}

// WithOverlap sets the overlap between adjacent chunks in bytes.
// Default is DefaultOverlap.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

// New creates a Chunker. Configuration is validated up front: a non-positive
// max length or an overlap that is negative or >= max length is a setup
// error, not something discovered at split time.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		maxLen:  DefaultMaxLen,
		overlap: DefaultOverlap,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.maxLen <= 0 {
		return nil, ErrInvalidMaxLen
	}
	if c.overlap < 0 || c.overlap >= c.maxLen {
		return nil, ErrOverlapTooLarge
	}

	return c, nil
}

// Split cuts content into ordered chunks for the given source owner.
// Positions increase monotonically from 0 so a re-chunk of the same source
// can be diffed against prior chunks by position. Returned chunks carry no
// ID, state, or embedding; the store assigns those.
//
// Boundaries are preferred over hard cuts: within the trailing window of a
// full-length chunk the splitter looks for a paragraph break, then a sentence
// ending, then any line or clause break, and only cuts mid-text (at a rune
// boundary) when none is found.
func (c *Chunker) Split(owner, content string, kind core.ChunkKind) []core.Chunk {
	pieces := c.split(content)

	chunks := make([]core.Chunk, 0, len(pieces))
	for _, text := range pieces {
		chunks = append(chunks, core.Chunk{
			Source: core.SourceRef{Owner: owner, Position: len(chunks)},
			Text:   text,
			Kind:   kind,
		})
	}
	return chunks
}

func (c *Chunker) split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) <= c.maxLen {
		return []string{trimmed}
	}

	var pieces []string
	start := 0
	for start < len(trimmed) {
		end := start + c.maxLen
		if end >= len(trimmed) {
			end = len(trimmed)
		} else {
			end = c.cutPoint(trimmed, start, end)
		}

		piece := strings.TrimSpace(trimmed[start:end])
		if piece != "" {
			pieces = append(pieces, piece)
		}

		if end >= len(trimmed) {
			break
		}

		next := end - c.overlap
		if next <= start {
			// Overlap would stall on a short boundary piece; advance
			// without overlap to guarantee progress.
			next = end
		}
		start = next
	}

	return pieces
}

// cutPoint finds where to end a full-length chunk starting at start, with end
// being the hard limit. It searches the trailing window for a boundary and
// falls back to the nearest rune start at the limit.
func (c *Chunker) cutPoint(text string, start, end int) int {
	windowStart := end - boundaryWindow
	if windowStart < start {
		windowStart = start
	}

	for _, delim := range boundaryDelims {
		if i := strings.LastIndex(text[windowStart:end], delim); i >= 0 {
			cut := windowStart + i + len(delim)
			if cut > start {
				return cut
			}
		}
	}

	// Hard cut: back off to a rune boundary so multi-byte characters are
	// never split.
	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	return end
}

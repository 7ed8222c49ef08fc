// Package chunker splits corpus documents into bounded-size segments that fit
// a single model invocation.
//
// Chunks are contiguous and never overlap: concatenating every chunk of a
// document yields the document unchanged. Sizes are measured in runes so a
// multi-byte character is never split.
package chunker

import (
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChars is the default upper bound on chunk length in runes.
	DefaultMaxChars = 4000
	// DefaultMinContent is the shortest trimmed document treated as content.
	DefaultMinContent = 500
)

// separators are tried in order when looking for a natural break point.
var separators = [][]rune{
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune("\n"),
	[]rune(" "),
}

// Chunker produces deterministic chunk sequences for documents.
type Chunker struct {
	maxChars   int
	minContent int
	boundaries bool
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithBoundaries toggles breaking at sentence or word boundaries inside the
// size window. When disabled, chunks are fixed-size slices.
func WithBoundaries(enabled bool) Option {
	return func(c *Chunker) {
		c.boundaries = enabled
	}
}

// New creates a chunker. maxChars must be positive; minContent may be zero to
// accept every non-empty document.
func New(maxChars, minContent int, opts ...Option) (*Chunker, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("max chunk size must be positive, got %d", maxChars)
	}
	if minContent < 0 {
		return nil, fmt.Errorf("min content threshold cannot be negative, got %d", minContent)
	}
	c := &Chunker{
		maxChars:   maxChars,
		minContent: minContent,
		boundaries: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MaxChars returns the configured chunk size bound.
func (c *Chunker) MaxChars() int {
	return c.maxChars
}

// IsContent reports whether doc is long enough to be processed at all.
func (c *Chunker) IsContent(doc string) bool {
	trimmed := strings.TrimSpace(doc)
	if trimmed == "" {
		return false
	}
	return utf8.RuneCountInString(trimmed) >= c.minContent
}

// Chunks returns the lazy sequence of (index, chunk) pairs for doc.
// The sequence can be ranged over any number of times and always yields
// the same chunks. Non-content documents yield nothing.
func (c *Chunker) Chunks(doc string) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		if !c.IsContent(doc) {
			return
		}
		runes := []rune(doc)
		for i, start := 0, 0; start < len(runes); i++ {
			end := c.cut(runes, start)
			if !yield(i, string(runes[start:end])) {
				return
			}
			start = end
		}
	}
}

// Count returns the number of chunks Chunks would yield for doc.
func (c *Chunker) Count(doc string) int {
	n := 0
	for range c.Chunks(doc) {
		n++
	}
	return n
}

// cut returns the exclusive end of the chunk starting at start.
func (c *Chunker) cut(runes []rune, start int) int {
	end := start + c.maxChars
	if end >= len(runes) {
		return len(runes)
	}
	if !c.boundaries {
		return end
	}

	// Avoid tiny fragments: a break point must leave at least a third of the window.
	minChunk := c.maxChars / 3
	window := runes[start:end]
	for _, sep := range separators {
		if idx := lastIndex(window, sep); idx > minChunk {
			return start + idx + len(sep)
		}
	}
	return end
}

func lastIndex(haystack, needle []rune) int {
	for i := len(haystack) - len(needle); i >= 0; i-- {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

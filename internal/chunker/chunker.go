// Package chunker splits document bodies into overlapping, size-bounded
// chunks for embedding and retrieval.
package chunker

import (
	"regexp"
	"strings"
)

const (
	DefaultMaxSize      = 2000
	DefaultOverlapWords = 20
	DefaultMinSize      = 100
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?]+\s+`)
)

// Chunk is one retrievable slice of a document body.
type Chunk struct {
	Index        int
	Text         string
	OverlapWords int // leading words repeated from the previous chunk
}

// Chunker holds the size policy. The zero value is not usable; call New.
type Chunker struct {
	maxSize      int
	overlapWords int
	minSize      int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxSize sets the target maximum chunk length in bytes.
func WithMaxSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithOverlapWords sets how many trailing words seed the next chunk.
func WithOverlapWords(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlapWords = n
		}
	}
}

// WithMinSize sets the length below which a chunk is not closed early.
func WithMinSize(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minSize = n
		}
	}
}

// New creates a Chunker with defaults overridden by opts.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxSize:      DefaultMaxSize,
		overlapWords: DefaultOverlapWords,
		minSize:      DefaultMinSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.minSize >= c.maxSize {
		c.minSize = c.maxSize / 2
	}
	return c
}

// MaxSize returns the configured maximum chunk size.
func (c *Chunker) MaxSize() int { return c.maxSize }

// unit is the smallest piece the chunker accumulates: a paragraph, a
// sentence, or a run of words. sep joins it to the preceding text.
type unit struct {
	text string
	sep  string
}

// Chunk splits body. An empty body yields no chunks; a body no longer than
// the maximum size yields exactly one chunk equal to the trimmed body.
func (c *Chunker) Chunk(body string) []Chunk {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) <= c.maxSize {
		return []Chunk{{Index: 0, Text: trimmed}}
	}

	var (
		chunks  []Chunk
		buf     string
		overlap int
	)
	for _, u := range c.units(trimmed) {
		if buf == "" {
			buf = u.text
			continue
		}
		if len(buf)+len(u.sep)+len(u.text) <= c.maxSize || len(buf) < c.minSize {
			buf += u.sep + u.text
			continue
		}

		chunks = append(chunks, Chunk{Index: len(chunks), Text: buf, OverlapWords: overlap})

		tail := lastWords(buf, c.overlapWords)
		for len(tail) > 0 && len(strings.Join(tail, " "))+1+len(u.text) > c.maxSize {
			tail = tail[1:]
		}
		overlap = len(tail)
		if overlap > 0 {
			buf = strings.Join(tail, " ") + " " + u.text
		} else {
			buf = u.text
		}
	}
	if buf != "" {
		chunks = append(chunks, Chunk{Index: len(chunks), Text: buf, OverlapWords: overlap})
	}
	return chunks
}

// units breaks text into paragraphs, splitting any paragraph over the
// maximum size into sentences and any sentence over it into word runs.
func (c *Chunker) units(text string) []unit {
	var out []unit
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= c.maxSize {
			out = append(out, unit{text: para, sep: "\n\n"})
			continue
		}
		sep := "\n\n"
		for _, sentence := range splitSentences(para) {
			if len(sentence) <= c.maxSize {
				out = append(out, unit{text: sentence, sep: sep})
				sep = " "
				continue
			}
			for _, run := range splitWords(sentence, c.maxSize) {
				out = append(out, unit{text: run, sep: sep})
				sep = " "
			}
		}
	}
	return out
}

// splitSentences cuts after runs of '.', '!' or '?' that are followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// splitWords packs words greedily into runs of at most maxSize bytes. A
// single word longer than maxSize becomes its own run.
func splitWords(text string, maxSize int) []string {
	var (
		out []string
		cur string
	)
	for _, w := range strings.Fields(text) {
		switch {
		case cur == "":
			cur = w
		case len(cur)+1+len(w) <= maxSize:
			cur += " " + w
		default:
			out = append(out, cur)
			cur = w
		}
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func lastWords(text string, n int) []string {
	if n <= 0 {
		return nil
	}
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return words
}

// Package chunk splits text into pieces small enough for a single synthesis
// call while keeping sentence, clause and word boundaries intact.
package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxChunkSize is the largest chunk, in characters, sent in one synthesis call.
const MaxChunkSize = 4500

// Chunker splits text into ordered chunks of at most maxSize characters.
type Chunker struct {
	maxSize       int
	packSentences bool
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSentencePacking makes the chunker join whole sentences into one chunk
// as long as the result stays within the size limit.
func WithSentencePacking(pack bool) Option {
	return func(c *Chunker) {
		c.packSentences = pack
	}
}

// New creates a chunker. A non-positive maxSize uses MaxChunkSize.
func New(maxSize int, opts ...Option) *Chunker {
	if maxSize <= 0 {
		maxSize = MaxChunkSize
	}
	c := &Chunker{maxSize: maxSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split splits text using the default chunker.
func Split(text string) []string {
	return New(MaxChunkSize).Split(text)
}

// MaxSize returns the configured size limit.
func (c *Chunker) MaxSize() int {
	return c.maxSize
}

// Split returns the chunks of text in reading order. Empty or whitespace-only
// input yields no chunks. A single word longer than the limit is returned as
// its own chunk rather than being cut.
func (c *Chunker) Split(text string) []string {
	sentences := splitAfter(text, isSentenceTerminator)
	if len(sentences) == 0 {
		return nil
	}

	units := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		if c.fits(sentence) {
			units = append(units, sentence)
			continue
		}
		units = append(units, c.splitSentence(sentence)...)
	}

	if c.packSentences {
		return c.pack(units)
	}
	return units
}

// splitSentence breaks an oversized sentence on clause boundaries, falling
// back to words for clauses that are still too long.
func (c *Chunker) splitSentence(sentence string) []string {
	clauses := splitAfter(sentence, isClauseSeparator)

	units := make([]string, 0, len(clauses))
	for _, clause := range clauses {
		if c.fits(clause) {
			units = append(units, clause)
			continue
		}
		units = append(units, c.pack(strings.Fields(clause))...)
	}
	return c.pack(units)
}

// pack greedily joins adjacent units with a single space while the running
// chunk stays within the limit.
func (c *Chunker) pack(units []string) []string {
	var (
		chunks  []string
		current strings.Builder
		length  int
	)

	for _, unit := range units {
		n := utf8.RuneCountInString(unit)
		switch {
		case length == 0:
			current.WriteString(unit)
			length = n
		case length+1+n <= c.maxSize:
			current.WriteByte(' ')
			current.WriteString(unit)
			length += 1 + n
		default:
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(unit)
			length = n
		}
	}

	if length > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func (c *Chunker) fits(s string) bool {
	return utf8.RuneCountInString(s) <= c.maxSize
}

// splitAfter cuts text after every run of separator runes that is followed by
// whitespace or the end of the text. Separators stay attached to the piece
// they end, and pieces are trimmed; empty pieces are dropped.
func splitAfter(text string, isSep func(rune) bool) []string {
	var (
		pieces  []string
		current strings.Builder
	)

	flush := func() {
		if piece := strings.TrimSpace(current.String()); piece != "" {
			pieces = append(pieces, piece)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if !isSep(runes[i]) {
			continue
		}

		// Keep runs like "?!" or "..." together.
		for i+1 < len(runes) && isSep(runes[i+1]) {
			i++
			current.WriteRune(runes[i])
		}

		// Closing quotes and brackets belong to the sentence they close.
		for i+1 < len(runes) && isCloser(runes[i+1]) {
			i++
			current.WriteRune(runes[i])
		}

		if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
			flush()
		}
	}
	flush()

	return pieces
}

func isSentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', ':':
		return true
	}
	return false
}

func isClauseSeparator(r rune) bool {
	return r == ',' || r == ';'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '»', '”', '’':
		return true
	}
	return false
}

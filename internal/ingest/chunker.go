package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/legalsift/legalsift/internal/contract"
)

// DefaultSeparators is the split cascade for legal text: paragraph breaks
// first, then sentence and clause punctuation, then words, then characters.
var DefaultSeparators = []string{"\n\n\n", "\n\n", "\n", ". ", "; ", ", ", " ", ""}

// Chunker splits cleaned text into overlapping chunks and assigns ordinal
// chunk IDs. IDs are assigned once here and never reused.
type Chunker struct {
	Size       int
	Overlap    int
	Separators []string
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	return &Chunker{Size: size, Overlap: overlap, Separators: DefaultSeparators}
}

// Chunk splits text and wraps the pieces as ordered contract chunks.
func (c *Chunker) Chunk(text string) []contract.Chunk {
	pieces := c.Split(text)
	chunks := make([]contract.Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, contract.Chunk{ID: i, Text: p})
	}
	return chunks
}

// Split breaks text into pieces no longer than Size, preferring the earliest
// separator in the cascade that keeps fragments intact, then merging adjacent
// fragments with Overlap characters of carry-over between chunks.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	frags := c.fragment(text, c.Separators)
	return c.merge(frags)
}

// fragment recursively cuts text into fragments each at most Size long.
func (c *Chunker) fragment(text string, seps []string) []string {
	if len(text) <= c.Size {
		return []string{text}
	}

	sep := ""
	rest := seps
	for i, s := range seps {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		// character-level fallback, cutting on rune boundaries
		for len(text) > c.Size {
			cut := c.Size
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = c.Size
			}
			parts = append(parts, text[:cut])
			text = text[cut:]
		}
		if text != "" {
			parts = append(parts, text)
		}
		return parts
	}

	for _, piece := range strings.SplitAfter(text, sep) {
		if piece == "" {
			continue
		}
		if len(piece) > c.Size {
			parts = append(parts, c.fragment(piece, rest)...)
		} else {
			parts = append(parts, piece)
		}
	}
	return parts
}

// merge packs fragments into chunks up to Size, seeding each new chunk with
// the tail of the previous one for context continuity.
func (c *Chunker) merge(frags []string) []string {
	var out []string
	var cur strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(cur.String())
		if chunk != "" {
			out = append(out, chunk)
		}
		cur.Reset()
	}

	for _, f := range frags {
		if cur.Len() > 0 && cur.Len()+len(f) > c.Size {
			prev := cur.String()
			flush()
			if c.Overlap > 0 && len(prev) > c.Overlap {
				carry := len(prev) - c.Overlap
				for carry < len(prev) && !utf8.RuneStart(prev[carry]) {
					carry++
				}
				cur.WriteString(prev[carry:])
			}
		}
		cur.WriteString(f)
	}
	flush()
	return out
}

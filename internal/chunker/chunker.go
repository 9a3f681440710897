// Package chunker splits ingested text into overlapping fixed-size chunks.
package chunker

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

// DefaultChunkSize is the default number of bytes per chunk.
const DefaultChunkSize = 4096

// DefaultOverlap is the default number of overlapping bytes.
const DefaultOverlap = 200

// Chunker produces a lazy, finite, restartable sequence of chunks.
// Each chunk's start offset equals the previous chunk's end offset minus
// the overlap; the final chunk may be shorter than the target size.
type Chunker struct {
	chunkSize int
	overlap   int
}

// New creates a chunker for the given target size and overlap, both in
// bytes. Overlap must be smaller than the chunk size.
func New(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d",
			domain.ErrInvalidConfiguration, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)",
			domain.ErrInvalidConfiguration, overlap, chunkSize)
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// ChunkSize returns the configured target size in bytes.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap in bytes.
func (c *Chunker) Overlap() int { return c.overlap }

// Cursor iterates over the chunks of one source text. A cursor can be
// restarted with Reset; it holds no resources beyond the source string.
type Cursor struct {
	chunker *Chunker
	text    string
	opts    domain.IngestOptions
	start   int
	prevEnd int
	first   bool
}

// Split returns a cursor over the chunks of text.
func (c *Chunker) Split(text string, opts domain.IngestOptions) *Cursor {
	return &Cursor{chunker: c, text: text, opts: opts, first: true}
}

// Reset rewinds the cursor to the first chunk.
func (cur *Cursor) Reset() {
	cur.start = 0
	cur.prevEnd = 0
	cur.first = true
}

// Next returns the next chunk, or false when the sequence is exhausted.
func (cur *Cursor) Next() (domain.Chunk, bool) {
	if cur.start >= len(cur.text) {
		return domain.Chunk{}, false
	}

	end := cur.start + cur.chunker.chunkSize
	if end > len(cur.text) {
		end = len(cur.text)
	} else {
		// Do not split a multi-byte rune across chunks.
		for end > cur.start && !utf8.RuneStart(cur.text[end]) {
			end--
		}
		// A rune wider than the chunk size must still move the cursor
		// forward, so it is emitted whole instead of stalling.
		if end == cur.start {
			_, n := utf8.DecodeRuneInString(cur.text[cur.start:])
			end = cur.start + n
		}
	}

	// Actual overlap with the preceding chunk; zero for the first chunk
	// and possibly off by a few bytes where a rune boundary was honoured.
	overlap := 0
	if !cur.first {
		overlap = cur.prevEnd - cur.start
	}

	tags := make(map[string]string, len(cur.opts.Tags))
	for k, v := range cur.opts.Tags {
		tags[k] = v
	}

	chunk := domain.Chunk{
		ID:        uuid.New().String(),
		URI:       cur.opts.URI,
		Title:     cur.opts.Title,
		Text:      cur.text[cur.start:end],
		Tags:      tags,
		Length:    end - cur.start,
		Offset:    cur.start,
		Overlap:   overlap,
		CreatedAt: time.Now().UTC(),
	}

	cur.first = false
	cur.prevEnd = end
	if end == len(cur.text) {
		cur.start = len(cur.text)
	} else {
		next := end - cur.chunker.overlap
		for next > 0 && !utf8.RuneStart(cur.text[next]) {
			next--
		}
		// Rune alignment can eat the whole step; forgo the overlap
		// rather than re-emit the same window.
		if next <= cur.start {
			next = end
		}
		cur.start = next
	}

	return chunk, true
}

// All materialises the remaining chunks. Convenience for ingestion.
func (cur *Cursor) All() []domain.Chunk {
	var chunks []domain.Chunk
	for {
		chunk, ok := cur.Next()
		if !ok {
			return chunks
		}
		chunks = append(chunks, chunk)
	}
}

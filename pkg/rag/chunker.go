package rag

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	defaultChunkTokens   = 300
	defaultOverlapTokens = 40
	chunkerEncoding      = "cl100k_base"
)

// Chunker splits document text into bounded, overlapping windows. Sizes
// are measured in tokens when the tiktoken encoding is available and in
// words otherwise; the boundary policy is a tunable, not an invariant.
type Chunker struct {
	enc     *tiktoken.Tiktoken
	size    int
	overlap int
}

// NewChunker builds a chunker with the given window size and overlap.
// Non-positive values fall back to the defaults; overlap is clamped below
// size so windows always advance.
func NewChunker(size, overlap int) *Chunker {
	enc, err := tiktoken.GetEncoding(chunkerEncoding)
	if err != nil {
		enc = nil
	}
	return newChunker(enc, size, overlap)
}

func newChunker(enc *tiktoken.Tiktoken, size, overlap int) *Chunker {
	if size <= 0 {
		size = defaultChunkTokens
	}
	if overlap < 0 {
		overlap = defaultOverlapTokens
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{enc: enc, size: size, overlap: overlap}
}

// Split cuts text into chunk windows. Empty and whitespace-only input
// yields no chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if c.enc == nil {
		return c.splitWords(text)
	}
	return c.splitTokens(text)
}

func (c *Chunker) splitTokens(text string) []string {
	ids := c.enc.Encode(text, nil, nil)
	if len(ids) <= c.size {
		return []string{text}
	}
	step := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(ids); start += step {
		end := start + c.size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, c.enc.Decode(ids[start:end]))
		if end == len(ids) {
			break
		}
	}
	return chunks
}

func (c *Chunker) splitWords(text string) []string {
	words := strings.Fields(text)
	if len(words) <= c.size {
		return []string{strings.Join(words, " ")}
	}
	step := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

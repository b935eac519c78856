package text

import "strings"

// Chunker splits long full-text documents into overlapping word-count windows
// so each window can be embedded independently.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker builds a chunker with the given window size and overlap, both in
// words. Overlap is clamped below size so the window always advances.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split returns the overlapping chunks of text. Short texts come back as a
// single chunk; empty input yields no chunks.
func (c *Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(words) {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))

		if end == len(words) {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

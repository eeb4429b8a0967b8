// Package splitter implements the two TextSplitter strategies: a
// fixed-size character window and a token-budgeted sentence-aware packer.
package splitter

import (
	rag "github.com/yanqian/ragserver/internal/domain/rag"
)

// Fixed splits text into fixed-size, overlapping code-point windows.
type Fixed struct {
	ChunkSize    int
	ChunkOverlap int
}

// NewFixed constructs a Fixed splitter. When overlap >= size the stride
// degrades to size (no overlap) so the walk always terminates.
func NewFixed(chunkSize, chunkOverlap int) *Fixed {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &Fixed{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}
}

// Split implements rag.TextSplitter.
func (f *Fixed) Split(text string, _ rag.DocumentID) ([]rag.ChunkCandidate, error) {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	stride := f.ChunkSize - f.ChunkOverlap
	if stride <= 0 {
		stride = f.ChunkSize
	}

	var out []rag.ChunkCandidate
	for start := 0; start < len(runes); start += stride {
		end := start + f.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, rag.ChunkCandidate{
			Text:   string(runes[start:end]),
			Offset: start,
		})
	}
	return out, nil
}

var _ rag.TextSplitter = (*Fixed)(nil)

package embedder

import (
	"context"
	"hash/fnv"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// Deterministic produces reproducible, content-derived embeddings with no
// external dependency, for local development and tests where a real
// embedding model is unavailable.
type Deterministic struct {
	dimensions int
}

// NewDeterministic constructs a Deterministic embedder with the given
// dimensionality.
func NewDeterministic(dimensions int) *Deterministic {
	if dimensions <= 0 {
		dimensions = 16
	}
	return &Deterministic{dimensions: dimensions}
}

// Dimensions reports the configured width.
func (d *Deterministic) Dimensions() int { return d.dimensions }

// Embed hashes text into a fixed-width pseudo-embedding. Equal text always
// produces equal vectors; unrelated text produces near-orthogonal ones.
func (d *Deterministic) Embed(ctx context.Context, text string) (rag.Embedding, error) {
	vec := make(rag.Embedding, d.dimensions)
	h := fnv.New64a()
	for i := range vec {
		h.Reset()
		h.Write([]byte(text))
		h.Write([]byte{byte(i)})
		sum := h.Sum64()
		vec[i] = float32(sum%2000)/1000.0 - 1.0
	}
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (d *Deterministic) EmbedBatch(ctx context.Context, texts []string) ([]rag.Embedding, error) {
	out := make([]rag.Embedding, len(texts))
	for i, t := range texts {
		emb, err := d.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

var _ rag.Embedder = (*Deterministic)(nil)

// Package embedder provides rag.Embedder adapters.
package embedder

import (
	"context"
	"fmt"

	"github.com/yanqian/ragserver/internal/domain/rag"
	"github.com/yanqian/ragserver/internal/domain/rag/splitter"
	"github.com/yanqian/ragserver/internal/infra/llm/chatgpt"
)

// maxBatchTokens bounds a single embeddings request so a large EmbedBatch
// call doesn't exceed the upstream per-request token limit.
const maxBatchTokens = 200_000

// ChatGPTEmbedder adapts chatgpt.Client to rag.Embedder, splitting
// EmbedBatch calls into token-budgeted sub-batches.
type ChatGPTEmbedder struct {
	client     *chatgpt.Client
	model      string
	dimensions int
}

// NewChatGPTEmbedder constructs the adapter. dimensions is the known output
// width of model, used for the startup dimensional-mismatch check without
// an extra round trip.
func NewChatGPTEmbedder(client *chatgpt.Client, model string, dimensions int) *ChatGPTEmbedder {
	return &ChatGPTEmbedder{client: client, model: model, dimensions: dimensions}
}

// Dimensions reports the configured embedding width.
func (e *ChatGPTEmbedder) Dimensions() int { return e.dimensions }

// Embed embeds a single string.
func (e *ChatGPTEmbedder) Embed(ctx context.Context, text string) (rag.Embedding, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("chatgpt embedder: expected 1 embedding, got %d", len(embeddings))
	}
	return embeddings[0], nil
}

// EmbedBatch embeds many strings, splitting into sub-batches that stay
// under maxBatchTokens so one slow caller can't build a request the
// upstream API will reject outright.
func (e *ChatGPTEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]rag.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([]rag.Embedding, 0, len(texts))
	start := 0
	for start < len(texts) {
		end := start
		tokens := 0
		for end < len(texts) {
			t := splitter.CountTokens(texts[end])
			if end > start && tokens+t > maxBatchTokens {
				break
			}
			tokens += t
			end++
		}
		batch, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
		start = end
	}
	return results, nil
}

func (e *ChatGPTEmbedder) embedChunk(ctx context.Context, texts []string) ([]rag.Embedding, error) {
	resp, err := e.client.CreateEmbedding(ctx, chatgpt.EmbeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("chatgpt embedder: requested %d embeddings, got %d", len(texts), len(resp.Data))
	}
	out := make([]rag.Embedding, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("chatgpt embedder: embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

var _ rag.Embedder = (*ChatGPTEmbedder)(nil)

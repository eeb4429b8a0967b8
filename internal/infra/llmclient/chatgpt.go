// Package llmclient adapts internal/infra/llm/chatgpt to rag.LlmClient.
package llmclient

import (
	"context"
	"errors"
	"io"

	"github.com/yanqian/ragserver/internal/domain/rag"
	"github.com/yanqian/ragserver/internal/infra/llm/chatgpt"
)

// ChatGPTAdapter turns a chatgpt.Client into a rag.LlmClient bound to one
// model and temperature.
type ChatGPTAdapter struct {
	client      *chatgpt.Client
	model       string
	temperature float32
}

// NewChatGPTAdapter constructs the adapter.
func NewChatGPTAdapter(client *chatgpt.Client, model string, temperature float32) *ChatGPTAdapter {
	return &ChatGPTAdapter{client: client, model: model, temperature: temperature}
}

func (a *ChatGPTAdapter) toMessages(messages []rag.LlmMessage) []chatgpt.Message {
	out := make([]chatgpt.Message, len(messages))
	for i, m := range messages {
		out[i] = chatgpt.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// Complete performs a single non-streaming completion.
func (a *ChatGPTAdapter) Complete(ctx context.Context, messages []rag.LlmMessage) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, chatgpt.ChatCompletionRequest{
		Model:       a.model,
		Messages:    a.toMessages(messages),
		Temperature: a.temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chatgpt: completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream starts a streaming completion and relays deltas onto the
// returned channel, closing it when the upstream stream ends. A mid-stream
// error is delivered as the final StreamToken before the channel closes, so
// the caller can distinguish a clean end from a truncated one.
func (a *ChatGPTAdapter) CompleteStream(ctx context.Context, messages []rag.LlmMessage) (<-chan rag.StreamToken, error) {
	stream, err := a.client.CreateChatCompletionStream(ctx, chatgpt.ChatCompletionRequest{
		Model:       a.model,
		Messages:    a.toMessages(messages),
		Temperature: a.temperature,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan rag.StreamToken)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			chunk, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					select {
					case out <- rag.StreamToken{Err: err}:
					case <-ctx.Done():
					}
				}
				return
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case out <- rag.StreamToken{Text: choice.Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var _ rag.LlmClient = (*ChatGPTAdapter)(nil)

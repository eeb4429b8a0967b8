package rag

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	dims int
	vec  Embedding
	err  error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) (Embedding, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	out := make([]Embedding, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, s.err
}

func (s *stubEmbedder) Dimensions() int { return s.dims }

type stubVectorStore struct {
	results []SearchResult
	err     error
}

func (s *stubVectorStore) CreateCollection(ctx context.Context, cfg CollectionConfig) error { return nil }
func (s *stubVectorStore) CollectionExists(ctx context.Context) (bool, error)               { return true, nil }
func (s *stubVectorStore) CollectionVectorSize(ctx context.Context) (int, error)             { return 0, nil }
func (s *stubVectorStore) DeleteCollection(ctx context.Context) error                        { return nil }
func (s *stubVectorStore) Upsert(ctx context.Context, records []VectorRecord) error          { return nil }
func (s *stubVectorStore) Delete(ctx context.Context, ids []ChunkID) error                   { return nil }

func (s *stubVectorStore) Search(ctx context.Context, embedding Embedding, topK int) ([]SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type stubLlm struct {
	answer string
	err    error
}

func (s *stubLlm) Complete(ctx context.Context, messages []LlmMessage) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func (s *stubLlm) CompleteStream(ctx context.Context, messages []LlmMessage) (<-chan StreamToken, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan StreamToken, 1)
	ch <- StreamToken{Text: s.answer}
	close(ch)
	return ch, nil
}

type memoryConversations struct {
	messages map[ConversationID][]Message
}

func newMemoryConversations() *memoryConversations {
	return &memoryConversations{messages: map[ConversationID][]Message{}}
}

func (m *memoryConversations) EnsureConversation(ctx context.Context, id ConversationID) error {
	if _, ok := m.messages[id]; !ok {
		m.messages[id] = nil
	}
	return nil
}

func (m *memoryConversations) AppendMessage(ctx context.Context, msg Message) error {
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	return nil
}

func (m *memoryConversations) ListMessages(ctx context.Context, id ConversationID) ([]Message, error) {
	return m.messages[id], nil
}

func baseConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:                5,
		SimilarityThreshold: 0.5,
		MaxContextTokens:    1000,
		FallbackMessage:     "I don't have enough information to answer that.",
	}
}

func TestQueryFallsBackOnEmptySearch(t *testing.T) {
	svc := NewRetrievalService(baseConfig(), &stubEmbedder{vec: Embedding{0.1}}, &stubVectorStore{}, &stubLlm{answer: "should not be used"}, newMemoryConversations(), nil)
	answer, err := svc.Query(context.Background(), "what is the capital?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Text != baseConfig().FallbackMessage {
		t.Fatalf("expected fallback message, got %q", answer.Text)
	}
}

func TestQueryFallsBackBelowSimilarityThreshold(t *testing.T) {
	store := &stubVectorStore{results: []SearchResult{
		{Chunk: Chunk{Text: "weak match"}, Score: 0.2},
	}}
	svc := NewRetrievalService(baseConfig(), &stubEmbedder{vec: Embedding{0.1}}, store, &stubLlm{answer: "should not be used"}, newMemoryConversations(), nil)
	answer, err := svc.Query(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Text != baseConfig().FallbackMessage {
		t.Fatalf("expected fallback message, got %q", answer.Text)
	}
}

func TestQueryAdmitsDescendingScoresUntilTokenBudgetOverflows(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxContextTokens = 2
	store := &stubVectorStore{results: []SearchResult{
		{Chunk: Chunk{Text: "a"}, Score: 0.9},
		{Chunk: Chunk{Text: "b"}, Score: 0.8},
		{Chunk: Chunk{Text: "c"}, Score: 0.7},
	}}
	svc := NewRetrievalService(cfg, &stubEmbedder{vec: Embedding{0.1}}, store, &stubLlm{answer: "ok"}, newMemoryConversations(), nil)
	answer, err := svc.Query(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("expected admission to stop at the budget with 2 sources, got %d", len(answer.Sources))
	}
	if answer.Sources[0].Chunk.Text != "a" || answer.Sources[1].Chunk.Text != "b" {
		t.Fatalf("expected sources a then b, got %q then %q", answer.Sources[0].Chunk.Text, answer.Sources[1].Chunk.Text)
	}
}

func TestQueryPersistsConversationTurn(t *testing.T) {
	store := &stubVectorStore{results: []SearchResult{
		{Chunk: Chunk{Text: "relevant context"}, Score: 0.9},
	}}
	convos := newMemoryConversations()
	svc := NewRetrievalService(baseConfig(), &stubEmbedder{vec: Embedding{0.1}}, store, &stubLlm{answer: "the answer"}, convos, nil)
	id := NewConversationID()
	answer, err := svc.Query(context.Background(), "question", &id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Text != "the answer" {
		t.Fatalf("unexpected answer: %q", answer.Text)
	}
	msgs := convos.messages[id]
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(msgs))
	}
	if msgs[0].Role != MessageRoleUser || msgs[1].Role != MessageRoleAssistant {
		t.Fatalf("unexpected message roles: %+v", msgs)
	}
}

func TestQueryWrapsEmbeddingFailure(t *testing.T) {
	svc := NewRetrievalService(baseConfig(), &stubEmbedder{err: errors.New("boom")}, &stubVectorStore{}, &stubLlm{}, newMemoryConversations(), nil)
	_, err := svc.Query(context.Background(), "question", nil)
	var retrievalErr *RetrievalError
	if !errors.As(err, &retrievalErr) {
		t.Fatalf("expected *RetrievalError, got %v", err)
	}
	if retrievalErr.Stage != RetrievalStageEmbedding {
		t.Fatalf("expected embedding stage, got %s", retrievalErr.Stage)
	}
}

func TestQueryStreamFallbackEmitsOnlyFallbackMessage(t *testing.T) {
	svc := NewRetrievalService(baseConfig(), &stubEmbedder{vec: Embedding{0.1}}, &stubVectorStore{}, &stubLlm{answer: "should not stream"}, newMemoryConversations(), nil)
	stream, err := svc.QueryStream(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []string
	for tok := range stream.Tokens {
		got = append(got, tok.Text)
	}
	if len(got) != 1 || got[0] != baseConfig().FallbackMessage {
		t.Fatalf("expected exactly the fallback message, got %+v", got)
	}
}

package rag

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yanqian/ragserver/internal/domain/rag/splitter"
	"github.com/yanqian/ragserver/pkg/metrics"
	"github.com/yanqian/ragserver/pkg/util"
)

// RetrievalConfig parameterizes the Retrieval Service.
type RetrievalConfig struct {
	TopK              int
	SimilarityThreshold float64
	MaxContextTokens  int
	FallbackMessage   string
}

// RetrievalService embeds a question, searches the vector store, gates the
// result by similarity and token budget, and streams or returns a
// completion from the upstream LLM.
type RetrievalService struct {
	cfg      RetrievalConfig
	embedder Embedder
	store    VectorStore
	llm      LlmClient
	convos   ConversationRepository
	logger   *slog.Logger
}

// NewRetrievalService constructs a RetrievalService.
func NewRetrievalService(cfg RetrievalConfig, embedder Embedder, store VectorStore, llm LlmClient, convos ConversationRepository, logger *slog.Logger) *RetrievalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalService{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		llm:      llm,
		convos:   convos,
		logger:   logger.With("component", "rag.retrieval"),
	}
}

// Answer is the result of a non-streaming Query.
type Answer struct {
	Text    string
	Sources []SearchResult
	Usage   metrics.TokenUsage
}

// usageFor derives prompt/completion token accounting from the same
// cl100k_base counter the context-budget admission gate uses. The prompt
// count covers the whole prompt text passed in, so it is larger than the
// chunk tokens charged against MaxContextTokens.
func usageFor(promptText, completionText string) metrics.TokenUsage {
	prompt := splitter.CountTokens(promptText)
	completion := splitter.CountTokens(completionText)
	return metrics.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// admit applies the similarity threshold and token-budget gate described in
// §4.3: drop sub-threshold candidates, then walk the (already
// descending-score) remainder admitting chunks until the next one would
// overflow the context budget, stopping at the first overflow rather than
// packing smaller later candidates.
func (s *RetrievalService) admit(results []SearchResult) []SearchResult {
	var admitted []SearchResult
	budget := 0
	for _, r := range results {
		if r.Score < s.cfg.SimilarityThreshold {
			continue
		}
		tokens := splitter.CountTokens(r.Chunk.Text)
		if budget+tokens > s.cfg.MaxContextTokens {
			break
		}
		admitted = append(admitted, r)
		budget += tokens
	}
	return admitted
}

func buildContext(results []SearchResult) string {
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, sanitizeForPrompt(r.Chunk.Text))
	}
	return strings.Join(texts, "\n\n")
}

// sanitizeForPrompt strips control characters and collapses excess
// whitespace before a chunk is concatenated into the LLM context.
func sanitizeForPrompt(text string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range text {
		if r == '\n' || r == '\t' {
			r = ' '
		} else if r < 0x20 {
			continue
		}
		if r == ' ' {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
		} else {
			lastWasSpace = false
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func systemPrompt(context string) string {
	const template = "You are a helpful assistant. Answer the user's question using only the following context. If the context does not contain the answer, say so.\n\nContext:\n{context}"
	return strings.Replace(template, "{context}", context, 1)
}

// Query performs the non-streaming retrieval/answer flow of §4.3.
func (s *RetrievalService) Query(ctx context.Context, question string, conversationID *ConversationID) (Answer, error) {
	if s.cfg.TopK <= 0 {
		return Answer{Text: s.cfg.FallbackMessage}, nil
	}

	embedding, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return Answer{}, NewRetrievalError(RetrievalStageEmbedding, err)
	}

	results, err := s.store.Search(ctx, embedding, s.cfg.TopK)
	if err != nil {
		return Answer{}, NewRetrievalError(RetrievalStageSearch, err)
	}
	if len(results) == 0 || results[0].Score < s.cfg.SimilarityThreshold {
		return Answer{Text: s.cfg.FallbackMessage}, s.persistTurn(ctx, conversationID, question, s.cfg.FallbackMessage)
	}

	admitted := s.admit(results)
	prompt := systemPrompt(buildContext(admitted))
	messages := []LlmMessage{
		{Role: "system", Content: prompt},
		{Role: "user", Content: question},
	}
	answer, err := s.llm.Complete(ctx, messages)
	if err != nil {
		return Answer{}, NewRetrievalError(RetrievalStageCompletion, err)
	}

	if err := s.persistTurn(ctx, conversationID, question, answer); err != nil {
		return Answer{}, err
	}
	return Answer{Text: answer, Sources: admitted, Usage: usageFor(prompt+question, answer)}, nil
}

// StreamAnswer is the result of a streaming Query: tokens plus the sources
// and conversation id the caller needs for downstream persistence.
type StreamAnswer struct {
	Tokens         <-chan StreamToken
	Sources        []SearchResult
	ConversationID *ConversationID
}

// QueryStream performs the same retrieval and admission logic as Query but
// returns a token stream. The fallback path emits exactly the fallback
// message and terminates without calling the LLM.
func (s *RetrievalService) QueryStream(ctx context.Context, question string, conversationID *ConversationID) (StreamAnswer, error) {
	if s.cfg.TopK <= 0 {
		return StreamAnswer{Tokens: fallbackStream(s.cfg.FallbackMessage), ConversationID: conversationID}, nil
	}

	embedding, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return StreamAnswer{}, NewRetrievalError(RetrievalStageEmbedding, err)
	}

	results, err := s.store.Search(ctx, embedding, s.cfg.TopK)
	if err != nil {
		return StreamAnswer{}, NewRetrievalError(RetrievalStageSearch, err)
	}
	if len(results) == 0 || results[0].Score < s.cfg.SimilarityThreshold {
		return StreamAnswer{Tokens: fallbackStream(s.cfg.FallbackMessage), ConversationID: conversationID}, nil
	}

	admitted := s.admit(results)
	messages := []LlmMessage{
		{Role: "system", Content: systemPrompt(buildContext(admitted))},
		{Role: "user", Content: question},
	}
	tokens, err := s.llm.CompleteStream(ctx, messages)
	if err != nil {
		return StreamAnswer{}, NewRetrievalError(RetrievalStageCompletion, err)
	}
	return StreamAnswer{Tokens: tokens, Sources: admitted, ConversationID: conversationID}, nil
}

func fallbackStream(message string) <-chan StreamToken {
	ch := make(chan StreamToken, 1)
	ch <- StreamToken{Text: message}
	close(ch)
	return ch
}

func (s *RetrievalService) persistTurn(ctx context.Context, conversationID *ConversationID, question, answer string) error {
	if conversationID == nil || s.convos == nil {
		return nil
	}
	if err := s.convos.EnsureConversation(ctx, *conversationID); err != nil {
		return NewRetrievalError(RetrievalStageRepository, err)
	}
	userMsg := Message{ID: NewMessageID(), ConversationID: *conversationID, Role: MessageRoleUser, Content: question, CreatedAt: util.NowUTC()}
	if err := s.convos.AppendMessage(ctx, userMsg); err != nil {
		return NewRetrievalError(RetrievalStageRepository, err)
	}
	assistantMsg := Message{ID: NewMessageID(), ConversationID: *conversationID, Role: MessageRoleAssistant, Content: answer, CreatedAt: util.NowUTC()}
	if err := s.convos.AppendMessage(ctx, assistantMsg); err != nil {
		return NewRetrievalError(RetrievalStageRepository, err)
	}
	return nil
}

// PersistTruncated records a partial assistant turn truncated by a
// mid-stream upstream error, per the SSE error-handling contract.
func (s *RetrievalService) PersistTruncated(ctx context.Context, conversationID *ConversationID, question, partial string) error {
	if conversationID == nil || s.convos == nil {
		return nil
	}
	return s.persistTurn(ctx, conversationID, question, partial+" [TRUNCATED DUE TO ERROR]")
}

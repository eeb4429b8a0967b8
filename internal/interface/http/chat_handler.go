package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

const sseKeepAliveInterval = 15 * time.Second

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages" binding:"required"`
	Stream         bool          `json:"stream"`
	ConversationID *string       `json:"conversation_id"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	Message      *chatMessage `json:"message,omitempty"`
	Delta        *chatMessage `json:"delta,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

type chatCompletionChunk struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func lastUserQuestion(messages []chatMessage) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" && strings.TrimSpace(messages[i].Content) != "" {
			return messages[i].Content, true
		}
	}
	return "", false
}

func stopReason() *string {
	s := "stop"
	return &s
}

// ChatCompletions serves the OpenAI-compatible /v1/chat/completions surface,
// routing the last user turn through the retrieval service and rendering
// either a single JSON response or a Server-Sent-Events stream.
func (h *Handler) ChatCompletions(c *gin.Context) {
	var req chatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithChatError(c, http.StatusBadRequest, errMessage(err))
		return
	}

	question, ok := lastUserQuestion(req.Messages)
	if !ok {
		abortWithChatError(c, http.StatusBadRequest, "no user message found in request")
		return
	}

	convID, convOK := parseOptionalConversationID(c, req.ConversationID)
	if !convOK {
		return
	}

	if req.Stream {
		h.streamChatCompletion(c, question, convID)
		return
	}
	h.completeChatCompletion(c, question, convID)
}

func (h *Handler) completeChatCompletion(c *gin.Context, question string, convID *rag.ConversationID) {
	answer, err := h.retrieval.Query(c.Request.Context(), question, convID)
	if err != nil {
		abortWithError(c, retrievalHTTPError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      "chatcmpl-" + rag.NewMessageID().String(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   modelID,
		"choices": []chatChoice{
			{
				Index:        0,
				Message:      &chatMessage{Role: "assistant", Content: answer.Text},
				FinishReason: stopReason(),
			},
		},
		"usage": chatUsage{
			PromptTokens:     answer.Usage.PromptTokens,
			CompletionTokens: answer.Usage.CompletionTokens,
			TotalTokens:      answer.Usage.TotalTokens,
		},
	})
}

func (h *Handler) streamChatCompletion(c *gin.Context, question string, convID *rag.ConversationID) {
	stream, err := h.retrieval.QueryStream(c.Request.Context(), question, convID)
	if err != nil {
		abortWithError(c, retrievalHTTPError(err))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "stream_unsupported", "streaming not supported", nil))
		return
	}

	id := "chatcmpl-" + rag.NewMessageID().String()
	created := time.Now().Unix()

	writeChunk(c, flusher, chatCompletionChunk{
		ID: id, Object: "chat.completion.chunk", Created: created, Model: modelID,
		Choices: []chatChoice{{Index: 0, Delta: &chatMessage{Role: "assistant"}}},
	})

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	var partial strings.Builder
	var streamErr error

loop:
	for {
		select {
		case <-c.Request.Context().Done():
			streamErr = c.Request.Context().Err()
			break loop
		case <-keepAlive.C:
			c.Writer.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case token, more := <-stream.Tokens:
			if !more {
				break loop
			}
			if token.Err != nil {
				streamErr = token.Err
				break loop
			}
			partial.WriteString(token.Text)
			writeChunk(c, flusher, chatCompletionChunk{
				ID: id, Object: "chat.completion.chunk", Created: created, Model: modelID,
				Choices: []chatChoice{{Index: 0, Delta: &chatMessage{Content: token.Text}}},
			})
			keepAlive.Reset(sseKeepAliveInterval)
		}
	}

	if streamErr != nil {
		if err := h.retrieval.PersistTruncated(c.Request.Context(), convID, question, partial.String()); err != nil {
			h.logger.Error("persist truncated turn failed", "error", err)
		}
		h.logger.Error("chat stream interrupted", "error", streamErr)
		return
	}

	writeChunk(c, flusher, chatCompletionChunk{
		ID: id, Object: "chat.completion.chunk", Created: created, Model: modelID,
		Choices: []chatChoice{{Index: 0, Delta: &chatMessage{}, FinishReason: stopReason()}},
	})
	c.Writer.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

func writeChunk(c *gin.Context, flusher http.Flusher, chunk chatCompletionChunk) {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	flusher.Flush()
}

func abortWithChatError(c *gin.Context, status int, message string) {
	abortWithError(c, NewHTTPError(status, "invalid_request_error", message, nil))
}

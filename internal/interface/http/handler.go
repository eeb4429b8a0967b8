package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// modelID is the single static model identity this service exposes over
// the OpenAI-compatible surface.
const modelID = "rag-pipeline"

// Handler wires the HTTP transport to the retrieval/ingestion domain.
type Handler struct {
	retrieval *rag.RetrievalService
	worker    *rag.Worker
	staging   rag.StagingStore
	jobs      rag.JobRepository
	logger    *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(retrieval *rag.RetrievalService, worker *rag.Worker, staging rag.StagingStore, jobs rag.JobRepository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		retrieval: retrieval,
		worker:    worker,
		staging:   staging,
		jobs:      jobs,
		logger:    logger.With("component", "http.handler"),
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
	Created int64  `json:"created"`
}

// ListModels returns the static OpenAI-compatible model listing.
func (h *Handler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data": []modelEntry{
			{ID: modelID, Object: "model", OwnedBy: "local", Created: 1700000000},
		},
	})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"request_id", requestIDFromContext(c.Request.Context()),
		)
	}
}

package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/ragserver/internal/domain/rag"
	apperrors "github.com/yanqian/ragserver/pkg/errors"
	"github.com/yanqian/ragserver/pkg/util"
)

// errQueueFull signals that the ingestion worker's bounded queue rejected a
// job; the handler has already written the 503 response when it sees this.
var errQueueFull = errors.New("ingestion queue full")

type queryRequest struct {
	Question       string  `json:"question" binding:"required"`
	ConversationID *string `json:"conversation_id"`
}

type sourceView struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Query answers a question through the retrieval service, internal form.
func (h *Handler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	convID, ok := parseOptionalConversationID(c, req.ConversationID)
	if !ok {
		return
	}

	answer, err := h.retrieval.Query(c.Request.Context(), req.Question, convID)
	if err != nil {
		abortWithError(c, retrievalHTTPError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answer":  answer.Text,
		"sources": sourceViews(answer.Sources),
		"usage":   answer.Usage,
	})
}

func sourceViews(results []rag.SearchResult) []sourceView {
	out := make([]sourceView, len(results))
	for i, r := range results {
		out[i] = sourceView{
			ChunkID:    r.Chunk.ID.String(),
			DocumentID: r.Chunk.DocumentID.String(),
			Text:       r.Chunk.Text,
			Score:      r.Score,
		}
	}
	return out
}

func parseOptionalConversationID(c *gin.Context, raw *string) (*rag.ConversationID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	id, err := rag.ParseConversationID(*raw)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid conversation_id", err))
		return nil, false
	}
	return &id, true
}

func retrievalHTTPError(err error) *HTTPError {
	status := http.StatusInternalServerError
	code := "query_failed"
	switch {
	case apperrors.IsCode(err, rag.CodeInvalidInput):
		status = http.StatusBadRequest
		code = "invalid_request"
	case apperrors.IsCode(err, rag.CodeRateLimited):
		status = http.StatusServiceUnavailable
		code = "rate_limited"
	}
	return NewHTTPError(status, code, errMessage(err), err)
}

// Ingest accepts a multipart upload, stages the first file part, and
// enqueues an ingestion job.
func (h *Handler) Ingest(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "file is required", err))
		return
	}

	contentType, ok := rag.ContentTypeFromMIME(fileHeader.Header.Get("Content-Type"))
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnsupportedMediaType, "unsupported_media_type", "unrecognized content type", nil))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "failed to read upload", err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "ingest_failed", "failed to read file", err))
		return
	}

	doc := rag.Document{
		ID:          rag.NewDocumentID(),
		Filename:    fileHeader.Filename,
		SizeBytes:   int64(len(data)),
		ContentType: contentType,
		CreatedAt:   util.NowUTC(),
	}
	path := rag.NewStoragePath(doc.ID, doc.Filename)

	if _, err := h.staging.Store(c.Request.Context(), path, data); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "ingest_failed", "failed to stage upload", err))
		return
	}

	jobID, err := h.enqueueJob(c, doc, path)
	if err != nil {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"document_id": doc.ID.String(),
		"job_id":      jobID.String(),
	})
}

type ingestReferenceRequest struct {
	StoragePath string `json:"storage_path" binding:"required"`
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// IngestReference ingests a staged object already uploaded out-of-band.
func (h *Handler) IngestReference(c *gin.Context) {
	var req ingestReferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	contentType, ok := rag.ContentTypeFromMIME(req.ContentType)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnsupportedMediaType, "unsupported_media_type", "unrecognized content type", nil))
		return
	}

	// The caller names an object already staged out-of-band under the
	// document id it was staged with, not the one minted for this job.
	stagedPath, err := rag.ParseStoragePath(req.StoragePath)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid storage_path", err))
		return
	}

	size, err := h.staging.Head(c.Request.Context(), stagedPath)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "not_found", "staged object not found", err))
		return
	}

	doc := rag.Document{
		ID:          stagedPath.DocumentID,
		Filename:    req.Filename,
		SizeBytes:   size,
		ContentType: contentType,
		CreatedAt:   util.NowUTC(),
	}

	jobID, err := h.enqueueJob(c, doc, stagedPath)
	if err != nil {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"document_id": doc.ID.String(),
		"job_id":      jobID.String(),
	})
}

func (h *Handler) enqueueJob(c *gin.Context, doc rag.Document, path rag.StoragePath) (rag.JobID, error) {
	jobID := rag.NewJobID()
	job := rag.Job{
		ID:         jobID,
		DocumentID: &doc.ID,
		Status:     rag.JobStatusQueued,
		JobType:    "ingest",
		CreatedAt:  util.NowUTC(),
		UpdatedAt:  util.NowUTC(),
	}
	if err := h.jobs.Create(c.Request.Context(), job); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "ingest_failed", "failed to record job", err))
		return rag.JobID{}, err
	}

	if !h.worker.TrySubmit(rag.IngestionJob{JobID: jobID, Document: doc, Path: path}) {
		abortWithError(c, NewHTTPError(http.StatusServiceUnavailable, "queue_unavailable", "ingestion queue is full, try again later", nil))
		return rag.JobID{}, errQueueFull
	}
	return jobID, nil
}

// GetJob reports the status of an ingestion job.
func (h *Handler) GetJob(c *gin.Context) {
	id, err := rag.ParseJobID(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid job id", err))
		return
	}
	job, found, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}
	if !found {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "not_found", "job not found", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":        job.ID.String(),
		"status":        job.Status.String(),
		"error_message": job.ErrorMessage,
	})
}

package rag

import (
	"errors"

	apperrors "github.com/yanqian/ragserver/pkg/errors"
)

// Sentinel errors for worker failure conditions that have no richer
// upstream cause to wrap.
var (
	ErrNoChunksProduced       = errors.New("splitter produced no chunks")
	ErrEmbeddingCountMismatch = errors.New("embedding count does not match chunk count")
	ErrUnsupportedContentType = errors.New("no file loader registered for content type")
	ErrNoTextFound            = errors.New("no text extracted from document")
)

// Port-level error codes. Each port in ports.go has a closed variant set;
// callers discriminate with apperrors.IsCode. The adapters under
// internal/infra return plain wrapped errors and do not tag them with these
// codes, so only errors built with apperrors.Wrap carry one.
const (
	// FileLoader
	CodeUnsupportedContentType = "unsupported_content_type"
	CodeExtractionFailed       = "extraction_failed"
	CodeNoTextFound            = "no_text_found"

	// TranscriptionEngine / AudioDecoder
	CodeDecodingFailed      = "decoding_failed"
	CodeTranscriptionFailed = "transcription_failed"
	CodeUnsupportedFormat   = "unsupported_format"
	CodeModelLoadFailed     = "model_load_failed"
	CodeAPIRequestFailed    = "api_request_failed"

	// TextSplitter
	CodeTokenizationFailed = "tokenization_failed"
	CodeSplittingFailed    = "splitting_failed"

	// VectorStore / StagingStore / Repositories
	CodeStorageError = "storage_error"
	CodeNotFound      = "not_found"

	// LlmClient
	CodeRateLimited     = "rate_limited"
	CodeInvalidResponse = "invalid_response"

	// Generic request validation
	CodeInvalidInput = "invalid_input"
)

// IngestionStage tags which pipeline stage produced an ingestion failure,
// per the failure taxonomy {FileLoading, Transcription, Splitting,
// Embedding, VectorStore, Repository, Staging}.
type IngestionStage string

const (
	StageFileLoading   IngestionStage = "FileLoading"
	StageTranscription IngestionStage = "Transcription"
	StageSplitting     IngestionStage = "Splitting"
	StageEmbedding     IngestionStage = "Embedding"
	StageVectorStore   IngestionStage = "VectorStore"
	StageRepository    IngestionStage = "Repository"
	StageStaging       IngestionStage = "Staging"
)

// IngestionError wraps a stage-tagged failure from the ingestion worker.
type IngestionError struct {
	Stage IngestionStage
	Err   error
}

func (e *IngestionError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *IngestionError) Unwrap() error { return e.Err }

// NewIngestionError tags err with the stage it occurred in.
func NewIngestionError(stage IngestionStage, err error) error {
	if err == nil {
		return nil
	}
	return &IngestionError{Stage: stage, Err: err}
}

// RetrievalStage tags which part of the retrieval path failed, per the
// taxonomy {Embedding, Search, Completion, Repository}.
type RetrievalStage string

const (
	RetrievalStageEmbedding  RetrievalStage = "Embedding"
	RetrievalStageSearch     RetrievalStage = "Search"
	RetrievalStageCompletion RetrievalStage = "Completion"
	RetrievalStageRepository RetrievalStage = "Repository"
)

// RetrievalError wraps a stage-tagged failure from the retrieval service.
type RetrievalError struct {
	Stage RetrievalStage
	Err   error
}

func (e *RetrievalError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// NewRetrievalError tags err with the stage it occurred in.
func NewRetrievalError(stage RetrievalStage, err error) error {
	if err == nil {
		return nil
	}
	return &RetrievalError{Stage: stage, Err: err}
}

// wrap is a small convenience over apperrors.Wrap kept local to this
// package so ports and services share one error-construction idiom.
func wrap(code, message string, err error) error {
	return apperrors.Wrap(code, message, err)
}

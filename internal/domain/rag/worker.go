package rag

import (
	"context"
	"log/slog"
)

// IngestionJob is one unit of work handed to the ingestion worker: the
// staged object plus the document metadata already persisted for it.
type IngestionJob struct {
	JobID    JobID
	Document Document
	Path     StoragePath
}

// WorkerConfig parameterizes the Ingestion Worker.
type WorkerConfig struct {
	QueueCapacity int
}

// Worker is the single-consumer ingestion pipeline: fetch staged bytes,
// extract or transcribe text, split into chunks, embed, and upsert into the
// vector store, updating job status at each stage per the lifecycle
// Queued -> Processing -> (MediaExtraction -> Transcribing)? -> Embedding ->
// Completed/Failed.
type Worker struct {
	cfg          WorkerConfig
	jobs         chan IngestionJob
	staging      StagingStore
	loaders      map[ContentType]FileLoader
	transcriber  TranscriptionEngine
	splitter     TextSplitter
	embedder     Embedder
	store        VectorStore
	jobRepo      JobRepository
	logger       *slog.Logger
	deleteOnDone bool
}

// NewWorker constructs a Worker with a bounded in-process queue. Submit
// blocks the caller once the queue is full: a full queue is backpressure,
// not an error to swallow.
func NewWorker(
	cfg WorkerConfig,
	staging StagingStore,
	loaders map[ContentType]FileLoader,
	transcriber TranscriptionEngine,
	splitter TextSplitter,
	embedder Embedder,
	store VectorStore,
	jobRepo JobRepository,
	logger *slog.Logger,
) *Worker {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg:          cfg,
		jobs:         make(chan IngestionJob, cfg.QueueCapacity),
		staging:      staging,
		loaders:      loaders,
		transcriber:  transcriber,
		splitter:     splitter,
		embedder:     embedder,
		store:        store,
		jobRepo:      jobRepo,
		logger:       logger.With("component", "rag.worker"),
		deleteOnDone: true,
	}
}

// Submit enqueues a job for processing. It blocks if the queue is full and
// returns early if ctx is cancelled first.
func (w *Worker) Submit(ctx context.Context, job IngestionJob) error {
	select {
	case w.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit enqueues a job without blocking, reporting false if the queue is
// currently full so the caller can fail the request fast instead.
func (w *Worker) TrySubmit(job IngestionJob) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

// Run drains the queue until ctx is cancelled, processing one job at a time.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case job := <-w.jobs:
			w.process(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, job IngestionJob) {
	log := w.logger.With("job_id", job.JobID.String(), "document_id", job.Document.ID.String())

	if err := w.setStatus(ctx, job.JobID, JobStatusProcessing, nil); err != nil {
		log.Error("failed to mark job processing", "error", err)
		return
	}

	data, err := w.staging.Fetch(ctx, job.Path)
	if err != nil {
		w.fail(ctx, job.JobID, log, NewIngestionError(StageStaging, err))
		return
	}

	text, err := w.extractText(ctx, job, data, log)
	if err != nil {
		w.fail(ctx, job.JobID, log, err)
		return
	}

	if err := w.setStatus(ctx, job.JobID, JobStatusEmbedding, nil); err != nil {
		log.Error("failed to mark job embedding", "error", err)
		return
	}

	candidates, err := w.splitter.Split(text, job.Document.ID)
	if err != nil {
		w.fail(ctx, job.JobID, log, NewIngestionError(StageSplitting, err))
		return
	}
	if len(candidates) == 0 {
		w.fail(ctx, job.JobID, log, NewIngestionError(StageSplitting, ErrNoChunksProduced))
		return
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	embeddings, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		w.fail(ctx, job.JobID, log, NewIngestionError(StageEmbedding, err))
		return
	}
	if len(embeddings) != len(candidates) {
		w.fail(ctx, job.JobID, log, NewIngestionError(StageEmbedding, ErrEmbeddingCountMismatch))
		return
	}

	records := make([]VectorRecord, len(candidates))
	for i, c := range candidates {
		records[i] = VectorRecord{
			Chunk: Chunk{
				ID:         NewChunkID(),
				DocumentID: job.Document.ID,
				Text:       c.Text,
				Page:       c.Page,
				Offset:     c.Offset,
			},
			Embedding: embeddings[i],
		}
	}

	if err := w.store.Upsert(ctx, records); err != nil {
		w.fail(ctx, job.JobID, log, NewIngestionError(StageVectorStore, err))
		return
	}

	if w.deleteOnDone {
		if err := w.staging.Delete(ctx, job.Path); err != nil {
			log.Warn("failed to delete staged object after successful ingestion", "error", err)
		}
	}

	if err := w.setStatus(ctx, job.JobID, JobStatusCompleted, nil); err != nil {
		log.Error("failed to mark job completed", "error", err)
	}
}

// extractText branches on content type: direct extraction for Pdf/Text,
// transcription for Audio/Video. The transcription engine receives the raw
// staged bytes as-is and owns any decoding it requires internally.
func (w *Worker) extractText(ctx context.Context, job IngestionJob, data []byte, log *slog.Logger) (string, error) {
	if job.Document.ContentType.IsMedia() {
		if err := w.setStatus(ctx, job.JobID, JobStatusMediaExtraction, nil); err != nil {
			return "", err
		}
		if err := w.setStatus(ctx, job.JobID, JobStatusTranscribing, nil); err != nil {
			return "", err
		}
		text, err := w.transcriber.Transcribe(ctx, data)
		if err != nil {
			return "", NewIngestionError(StageTranscription, err)
		}
		return text, nil
	}

	loader, ok := w.loaders[job.Document.ContentType]
	if !ok {
		return "", NewIngestionError(StageFileLoading, ErrUnsupportedContentType)
	}
	text, err := loader.ExtractText(ctx, data, job.Document)
	if err != nil {
		return "", NewIngestionError(StageFileLoading, err)
	}
	if text == "" {
		return "", NewIngestionError(StageFileLoading, ErrNoTextFound)
	}
	return text, nil
}

func (w *Worker) fail(ctx context.Context, jobID JobID, log *slog.Logger, err error) {
	log.Error("ingestion job failed", "error", err)
	msg := err.Error()
	if setErr := w.setStatus(ctx, jobID, JobStatusFailed, &msg); setErr != nil {
		log.Error("failed to record job failure", "error", setErr)
	}
}

func (w *Worker) setStatus(ctx context.Context, jobID JobID, status JobStatus, errMsg *string) error {
	return w.jobRepo.UpdateStatus(ctx, jobID, status, errMsg)
}

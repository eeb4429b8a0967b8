package rag

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memoryStaging struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted map[string]bool
}

func newMemoryStaging() *memoryStaging {
	return &memoryStaging{objects: map[string][]byte{}, deleted: map[string]bool{}}
}

func (m *memoryStaging) Store(ctx context.Context, path StoragePath, data []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path.String()] = data
	return int64(len(data)), nil
}

func (m *memoryStaging) Fetch(ctx context.Context, path StoragePath) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path.String()]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (m *memoryStaging) Delete(ctx context.Context, path StoragePath) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted[path.String()] = true
	delete(m.objects, path.String())
	return nil
}

func (m *memoryStaging) Head(ctx context.Context, path StoragePath) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path.String()]
	if !ok {
		return 0, errors.New("not found")
	}
	return int64(len(data)), nil
}

type stubFileLoader struct {
	text string
	err  error
}

func (f *stubFileLoader) ExtractText(ctx context.Context, data []byte, doc Document) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type stubTranscriber struct {
	text string
	err  error
}

func (t *stubTranscriber) Transcribe(ctx context.Context, data []byte) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	return t.text, nil
}

type stubSplitter struct {
	candidates []ChunkCandidate
	err        error
}

func (s *stubSplitter) Split(text string, docID DocumentID) ([]ChunkCandidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates, nil
}

type memoryJobRepo struct {
	mu       sync.Mutex
	statuses map[JobID]JobStatus
	errMsgs  map[JobID]*string
	history  map[JobID][]JobStatus
}

func newMemoryJobRepo() *memoryJobRepo {
	return &memoryJobRepo{statuses: map[JobID]JobStatus{}, errMsgs: map[JobID]*string{}, history: map[JobID][]JobStatus{}}
}

func (r *memoryJobRepo) Create(ctx context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[job.ID] = job.Status
	return nil
}

func (r *memoryJobRepo) UpdateStatus(ctx context.Context, id JobID, status JobStatus, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = status
	r.errMsgs[id] = errMsg
	r.history[id] = append(r.history[id], status)
	return nil
}

func (r *memoryJobRepo) Get(ctx context.Context, id JobID) (Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.statuses[id]
	if !ok {
		return Job{}, false, nil
	}
	return Job{ID: id, Status: status}, true, nil
}

func (r *memoryJobRepo) statusOf(id JobID) JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[id]
}

func newTestWorker(loaders map[ContentType]FileLoader, transcriber TranscriptionEngine, splitter TextSplitter, embedder Embedder, store VectorStore, jobRepo JobRepository) (*Worker, *memoryStaging) {
	staging := newMemoryStaging()
	w := NewWorker(WorkerConfig{QueueCapacity: 4}, staging, loaders, transcriber, splitter, embedder, store, jobRepo, nil)
	return w, staging
}

func TestWorkerProcessesTextDocumentToCompletion(t *testing.T) {
	docID := NewDocumentID()
	jobID := NewJobID()
	path := NewStoragePath(docID, "notes.txt")

	jobRepo := newMemoryJobRepo()
	store := &stubVectorStore{}
	loaders := map[ContentType]FileLoader{ContentTypeText: &stubFileLoader{text: "hello world"}}
	splitter := &stubSplitter{candidates: []ChunkCandidate{{Text: "hello world", Offset: 0}}}
	embedder := &stubEmbedder{vec: Embedding{0.1, 0.2}}

	w, staging := newTestWorker(loaders, &stubTranscriber{}, splitter, embedder, store, jobRepo)
	if _, err := staging.Store(context.Background(), path, []byte("hello world")); err != nil {
		t.Fatalf("failed to seed staging: %v", err)
	}

	job := IngestionJob{JobID: jobID, Document: Document{ID: docID, ContentType: ContentTypeText}, Path: path}
	w.process(context.Background(), job)

	if got := jobRepo.statusOf(jobID); got != JobStatusCompleted {
		t.Fatalf("expected job completed, got %s", got)
	}
	if !staging.deleted[path.String()] {
		t.Fatalf("expected staged object deleted after successful ingestion")
	}
}

func TestWorkerMarksFailedOnExtractionError(t *testing.T) {
	docID := NewDocumentID()
	jobID := NewJobID()
	path := NewStoragePath(docID, "doc.pdf")

	jobRepo := newMemoryJobRepo()
	loaders := map[ContentType]FileLoader{ContentTypePdf: &stubFileLoader{err: errors.New("corrupt pdf")}}
	w, staging := newTestWorker(loaders, &stubTranscriber{}, &stubSplitter{}, &stubEmbedder{}, &stubVectorStore{}, jobRepo)
	if _, err := staging.Store(context.Background(), path, []byte("%PDF-")); err != nil {
		t.Fatalf("failed to seed staging: %v", err)
	}

	job := IngestionJob{JobID: jobID, Document: Document{ID: docID, ContentType: ContentTypePdf}, Path: path}
	w.process(context.Background(), job)

	if got := jobRepo.statusOf(jobID); got != JobStatusFailed {
		t.Fatalf("expected job failed, got %s", got)
	}
}

// TestWorkerAudioJobPassesThroughMediaExtractionAndTranscribing covers
// spec scenario #5: a non-WAV container (MP3 bytes) must still reach
// Completed, because the worker hands the transcription engine the raw
// staged bytes unchanged instead of decoding them itself first.
func TestWorkerAudioJobPassesThroughMediaExtractionAndTranscribing(t *testing.T) {
	docID := NewDocumentID()
	jobID := NewJobID()
	path := NewStoragePath(docID, "clip.mp3")

	jobRepo := newMemoryJobRepo()
	transcriber := &stubTranscriber{text: "transcribed audio"}
	splitter := &stubSplitter{candidates: []ChunkCandidate{{Text: "transcribed audio", Offset: 0}}}
	embedder := &stubEmbedder{vec: Embedding{0.1}}
	store := &stubVectorStore{}

	w, staging := newTestWorker(nil, transcriber, splitter, embedder, store, jobRepo)
	mp3Bytes := []byte{0xFF, 0xFB, 0x90, 0x00}
	if _, err := staging.Store(context.Background(), path, mp3Bytes); err != nil {
		t.Fatalf("failed to seed staging: %v", err)
	}

	job := IngestionJob{JobID: jobID, Document: Document{ID: docID, ContentType: ContentTypeAudio}, Path: path}
	w.process(context.Background(), job)

	if got := jobRepo.statusOf(jobID); got != JobStatusCompleted {
		t.Fatalf("expected job completed, got %s", got)
	}
	want := []JobStatus{JobStatusProcessing, JobStatusMediaExtraction, JobStatusTranscribing, JobStatusEmbedding, JobStatusCompleted}
	jobRepo.mu.Lock()
	got := jobRepo.history[jobID]
	jobRepo.mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("expected status history %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected status history %v, got %v", want, got)
		}
	}
}

// TestWorkerTranscriberReceivesRawStagedBytes guards the contract at the
// center of the fix: the worker must not transform the staged bytes
// before handing them to the transcription engine.
func TestWorkerTranscriberReceivesRawStagedBytes(t *testing.T) {
	docID := NewDocumentID()
	jobID := NewJobID()
	path := NewStoragePath(docID, "clip.mp4")

	raw := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p'}
	jobRepo := newMemoryJobRepo()
	transcriber := &recordingTranscriber{text: "ok"}
	splitter := &stubSplitter{candidates: []ChunkCandidate{{Text: "ok", Offset: 0}}}
	embedder := &stubEmbedder{vec: Embedding{0.1}}
	store := &stubVectorStore{}

	w, staging := newTestWorker(nil, transcriber, splitter, embedder, store, jobRepo)
	if _, err := staging.Store(context.Background(), path, raw); err != nil {
		t.Fatalf("failed to seed staging: %v", err)
	}

	job := IngestionJob{JobID: jobID, Document: Document{ID: docID, ContentType: ContentTypeVideo}, Path: path}
	w.process(context.Background(), job)

	if string(transcriber.received) != string(raw) {
		t.Fatalf("expected transcriber to receive raw staged bytes %v, got %v", raw, transcriber.received)
	}
}

type recordingTranscriber struct {
	text     string
	received []byte
}

func (t *recordingTranscriber) Transcribe(ctx context.Context, data []byte) (string, error) {
	t.received = data
	return t.text, nil
}

func TestWorkerSubmitAndRunDrainsQueue(t *testing.T) {
	docID := NewDocumentID()
	jobID := NewJobID()
	path := NewStoragePath(docID, "notes.txt")

	jobRepo := newMemoryJobRepo()
	loaders := map[ContentType]FileLoader{ContentTypeText: &stubFileLoader{text: "hi"}}
	splitter := &stubSplitter{candidates: []ChunkCandidate{{Text: "hi", Offset: 0}}}
	w, staging := newTestWorker(loaders, &stubTranscriber{}, splitter, &stubEmbedder{vec: Embedding{0.1}}, &stubVectorStore{}, jobRepo)
	if _, err := staging.Store(context.Background(), path, []byte("hi")); err != nil {
		t.Fatalf("failed to seed staging: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	if err := w.Submit(ctx, IngestionJob{JobID: jobID, Document: Document{ID: docID, ContentType: ContentTypeText}, Path: path}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if jobRepo.statusOf(jobID) == JobStatusCompleted {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if got := jobRepo.statusOf(jobID); got != JobStatusCompleted {
		t.Fatalf("expected job completed, got %s", got)
	}
}

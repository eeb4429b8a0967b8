package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/ragserver/internal/domain/rag"
	"github.com/yanqian/ragserver/internal/infra/config"
	"github.com/yanqian/ragserver/internal/infra/repo"
	"github.com/yanqian/ragserver/internal/infra/staging"
)

type fakeEmbedder struct {
	dims int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (rag.Embedding, error) {
	return make(rag.Embedding, f.dims), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]rag.Embedding, error) {
	out := make([]rag.Embedding, len(texts))
	for i := range texts {
		out[i] = make(rag.Embedding, f.dims)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

type fakeVectorStore struct {
	results []rag.SearchResult
}

func (f *fakeVectorStore) CreateCollection(ctx context.Context, cfg rag.CollectionConfig) error {
	return nil
}
func (f *fakeVectorStore) CollectionExists(ctx context.Context) (bool, error)    { return true, nil }
func (f *fakeVectorStore) CollectionVectorSize(ctx context.Context) (int, error) { return 8, nil }
func (f *fakeVectorStore) DeleteCollection(ctx context.Context) error            { return nil }
func (f *fakeVectorStore) Upsert(ctx context.Context, records []rag.VectorRecord) error {
	return nil
}
func (f *fakeVectorStore) Search(ctx context.Context, embedding rag.Embedding, topK int) ([]rag.SearchResult, error) {
	return f.results, nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, ids []rag.ChunkID) error { return nil }

type fakeLlmClient struct {
	answer string
	tokens []string
}

func (f *fakeLlmClient) Complete(ctx context.Context, messages []rag.LlmMessage) (string, error) {
	return f.answer, nil
}

func (f *fakeLlmClient) CompleteStream(ctx context.Context, messages []rag.LlmMessage) (<-chan rag.StreamToken, error) {
	ch := make(chan rag.StreamToken, len(f.tokens))
	for _, t := range f.tokens {
		ch <- rag.StreamToken{Text: t}
	}
	close(ch)
	return ch, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	server  *http.Server
	jobs    rag.JobRepository
	staging *staging.MemoryStore
}

func newTestServer(t *testing.T, results []rag.SearchResult, llm *fakeLlmClient) testServer {
	t.Helper()
	convos := repo.NewMemoryConversationRepository()
	jobs := repo.NewMemoryJobRepository()
	stage := staging.NewMemoryStore()

	retrieval := rag.NewRetrievalService(rag.RetrievalConfig{
		TopK:                5,
		SimilarityThreshold: 0.5,
		MaxContextTokens:    3000,
		FallbackMessage:     "I don't have enough information in the knowledge base to answer that.",
	}, &fakeEmbedder{dims: 8}, &fakeVectorStore{results: results}, llm, convos, newTestLogger())

	worker := rag.NewWorker(rag.WorkerConfig{QueueCapacity: 8}, stage, nil, nil, stubSplitter{}, &fakeEmbedder{dims: 8}, &fakeVectorStore{}, jobs, newTestLogger())

	handler := NewHandler(retrieval, worker, stage, jobs, newTestLogger())
	cfg := &config.Config{
		HTTP: config.HTTPConfig{
			Address:      ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
	}
	return testServer{server: NewRouter(cfg, handler), jobs: jobs, staging: stage}
}

type stubSplitter struct{}

func (stubSplitter) Split(text string, docID rag.DocumentID) ([]rag.ChunkCandidate, error) {
	return []rag.ChunkCandidate{{Text: text}}, nil
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, &fakeLlmClient{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListModels(t *testing.T) {
	ts := newTestServer(t, nil, &fakeLlmClient{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, modelID, body.Data[0].ID)
}

func TestQueryFallsBackBelowThreshold(t *testing.T) {
	ts := newTestServer(t, []rag.SearchResult{{Chunk: rag.Chunk{Text: "irrelevant"}, Score: 0.1}}, &fakeLlmClient{answer: "should not be used"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"question":"what is it?"}`))
	req.Header.Set("Content-Type", "application/json")
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Answer  string `json:"answer"`
		Sources []any  `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body.Answer, "don't have enough information")
	require.Empty(t, body.Sources)
}

func TestQueryAdmitsHighScoreResult(t *testing.T) {
	results := []rag.SearchResult{{Chunk: rag.Chunk{ID: rag.NewChunkID(), DocumentID: rag.NewDocumentID(), Text: "relevant context"}, Score: 0.95}}
	ts := newTestServer(t, results, &fakeLlmClient{answer: "the answer"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"question":"what is it?"}`))
	req.Header.Set("Content-Type", "application/json")
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Answer  string `json:"answer"`
		Sources []any  `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "the answer", body.Answer)
	require.Len(t, body.Sources, 1)
}

func TestQueryInvalidJSON(t *testing.T) {
	ts := newTestServer(t, nil, &fakeLlmClient{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"question":123}`))
	req.Header.Set("Content-Type", "application/json")
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	results := []rag.SearchResult{{Chunk: rag.Chunk{Text: "context"}, Score: 0.9}}
	ts := newTestServer(t, results, &fakeLlmClient{answer: "hi there"})
	rec := httptest.NewRecorder()
	body := `{"model":"rag-pipeline","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	require.Equal(t, "hi there", resp.Choices[0].Message.Content)
	require.Equal(t, "stop", resp.Choices[0].FinishReason)
}

func TestChatCompletionsStreaming(t *testing.T) {
	results := []rag.SearchResult{{Chunk: rag.Chunk{Text: "context"}, Score: 0.9}}
	ts := newTestServer(t, results, &fakeLlmClient{tokens: []string{"hel", "lo"}})
	rec := httptest.NewRecorder()
	body := `{"model":"rag-pipeline","messages":[{"role":"user","content":"hello"}],"stream":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	payload := rec.Body.String()
	require.True(t, strings.HasSuffix(strings.TrimSpace(payload), "data: [DONE]"))
	require.Contains(t, payload, `"content":"hel"`)
	require.Contains(t, payload, `"content":"lo"`)
	require.Contains(t, payload, `"finish_reason":"stop"`)
}

func TestChatCompletionsNoUserMessage(t *testing.T) {
	ts := newTestServer(t, nil, &fakeLlmClient{})
	rec := httptest.NewRecorder()
	body := `{"model":"rag-pipeline","messages":[{"role":"system","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestUnsupportedMediaType(t *testing.T) {
	ts := newTestServer(t, nil, &fakeLlmClient{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "notes.bin")
	require.NoError(t, err)
	part.Write([]byte("hello world"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestIngestAcceptsTextAndCreatesJob(t *testing.T) {
	ts := newTestServer(t, nil, &fakeLlmClient{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="notes.txt"`)
	header.Set("Content-Type", "text/plain")
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	part.Write([]byte("hello world"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body struct {
		DocumentID string `json:"document_id"`
		JobID      string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.DocumentID)
	require.NotEmpty(t, body.JobID)
}

func TestGetJobNotFound(t *testing.T) {
	ts := newTestServer(t, nil, &fakeLlmClient{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+rag.NewJobID().String(), nil)
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobInvalidID(t *testing.T) {
	ts := newTestServer(t, nil, &fakeLlmClient{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobFound(t *testing.T) {
	ts := newTestServer(t, nil, &fakeLlmClient{})
	id := rag.NewJobID()
	require.NoError(t, ts.jobs.Create(context.Background(), rag.Job{
		ID:        id,
		Status:    rag.JobStatusCompleted,
		JobType:   "ingest",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id.String(), nil)
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, id.String(), body.JobID)
	require.Equal(t, "COMPLETED", body.Status)
}

func TestIngestReferenceNotFound(t *testing.T) {
	ts := newTestServer(t, nil, &fakeLlmClient{})
	rec := httptest.NewRecorder()
	// A well-formed path naming a document id that was never staged.
	missing := rag.NewStoragePath(rag.NewDocumentID(), "file.txt").String()
	body := `{"storage_path":"` + missing + `","filename":"file.txt","content_type":"text/plain"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest-reference", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestReferenceInvalidStoragePath(t *testing.T) {
	ts := newTestServer(t, nil, &fakeLlmClient{})
	rec := httptest.NewRecorder()
	body := `{"storage_path":"not-a-valid-path","filename":"file.txt","content_type":"text/plain"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest-reference", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestReferenceAccepted(t *testing.T) {
	ts := newTestServer(t, nil, &fakeLlmClient{})

	docID := rag.NewDocumentID()
	path := rag.NewStoragePath(docID, "notes.txt")
	_, err := ts.staging.Store(context.Background(), path, []byte("hello world"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	reqBody := `{"storage_path":"` + path.String() + `","filename":"notes.txt","content_type":"text/plain"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest-reference", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		DocumentID string `json:"document_id"`
		JobID      string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, docID.String(), resp.DocumentID)
	require.NotEmpty(t, resp.JobID)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil, &fakeLlmClient{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/query", nil)
	ts.server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

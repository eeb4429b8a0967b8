package rag

import "context"

// FileLoader extracts sanitized text from document bytes. Implementations
// are selected per content type by the file loader composite.
type FileLoader interface {
	ExtractText(ctx context.Context, data []byte, doc Document) (string, error)
}

// TranscriptionEngine turns audio/video bytes into text. The engine owns
// any decoding it requires internally.
type TranscriptionEngine interface {
	Transcribe(ctx context.Context, data []byte) (string, error)
}

// AudioDecoder decodes compressed audio bytes into 16 kHz mono PCM samples
// normalized to [-1.0, 1.0].
type AudioDecoder interface {
	Decode(data []byte) ([]float32, error)
}

// TextSplitter splits text into a bounded, finite sequence of chunk
// candidates for a given document.
type TextSplitter interface {
	Split(text string, docID DocumentID) ([]ChunkCandidate, error)
}

// ChunkCandidate is produced by a TextSplitter before embedding.
type ChunkCandidate struct {
	Text   string
	Page   *int
	Offset int
}

// Embedder produces embeddings for free-form text. Dimensionality is a
// property of the instance.
type Embedder interface {
	Embed(ctx context.Context, text string) (Embedding, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)
	Dimensions() int
}

// CollectionConfig parameterizes VectorStore.CreateCollection.
type CollectionConfig struct {
	Name       string
	Dimensions int
}

// VectorRecord is one chunk/embedding pair destined for the vector store.
type VectorRecord struct {
	Chunk     Chunk
	Embedding Embedding
}

// VectorStore is the sole owner of vector index operations.
type VectorStore interface {
	CreateCollection(ctx context.Context, cfg CollectionConfig) error
	CollectionExists(ctx context.Context) (bool, error)
	CollectionVectorSize(ctx context.Context) (int, error)
	DeleteCollection(ctx context.Context) error
	Upsert(ctx context.Context, records []VectorRecord) error
	Search(ctx context.Context, embedding Embedding, topK int) ([]SearchResult, error)
	Delete(ctx context.Context, ids []ChunkID) error
}

// StagingStore is a transient object store over StoragePath, cleaned up
// after successful ingestion.
type StagingStore interface {
	Store(ctx context.Context, path StoragePath, data []byte) (int64, error)
	Fetch(ctx context.Context, path StoragePath) ([]byte, error)
	Delete(ctx context.Context, path StoragePath) error
	Head(ctx context.Context, path StoragePath) (int64, error)
}

// JobRepository persists Job records.
type JobRepository interface {
	Create(ctx context.Context, job Job) error
	UpdateStatus(ctx context.Context, id JobID, status JobStatus, errMsg *string) error
	Get(ctx context.Context, id JobID) (Job, bool, error)
}

// ConversationRepository persists conversations and their messages.
type ConversationRepository interface {
	EnsureConversation(ctx context.Context, id ConversationID) error
	AppendMessage(ctx context.Context, msg Message) error
	ListMessages(ctx context.Context, id ConversationID) ([]Message, error)
}

// LlmMessage is one entry of the chat prompt passed to LlmClient.
type LlmMessage struct {
	Role    string
	Content string
}

// LlmClient generates answers from a prompt and assembled context.
type LlmClient interface {
	Complete(ctx context.Context, messages []LlmMessage) (string, error)
	CompleteStream(ctx context.Context, messages []LlmMessage) (<-chan StreamToken, error)
}

// StreamToken is one unit of a streamed completion. Err is set at most
// once, as the final value received before the channel closes.
type StreamToken struct {
	Text string
	Err  error
}

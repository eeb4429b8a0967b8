// Package factory builds the concrete adapters behind each rag port from
// loaded configuration. Unlike the providers that seeded this codebase,
// which quietly swapped in an in-memory or deterministic stand-in whenever
// a config field was blank, every constructor here returns a
// *MissingFieldError instead of degrading: a production deployment that is
// missing a required field fails at startup, not at the first request that
// touches the gap.
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/ragserver/internal/domain/rag"
	"github.com/yanqian/ragserver/internal/domain/rag/splitter"
	"github.com/yanqian/ragserver/internal/infra/audio"
	"github.com/yanqian/ragserver/internal/infra/config"
	"github.com/yanqian/ragserver/internal/infra/embedder"
	"github.com/yanqian/ragserver/internal/infra/fileloader"
	"github.com/yanqian/ragserver/internal/infra/llm/chatgpt"
	"github.com/yanqian/ragserver/internal/infra/llmclient"
	"github.com/yanqian/ragserver/internal/infra/queue"
	"github.com/yanqian/ragserver/internal/infra/repo"
	"github.com/yanqian/ragserver/internal/infra/staging"
	"github.com/yanqian/ragserver/internal/infra/transcription"
	"github.com/yanqian/ragserver/internal/infra/vectorstore/memory"
	"github.com/yanqian/ragserver/internal/infra/vectorstore/pgvector"
	"github.com/yanqian/ragserver/internal/infra/vectorstore/qdrant"
)

// NewChatGPTClient builds the shared ChatGPT HTTP client used by both the
// embedder and the LLM client. Both callers require an API key, so the
// field is checked once here.
func NewChatGPTClient(cfg config.LLMConfig) (*chatgpt.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, missingField("chatgpt client", "llm.apiKey")
	}
	return chatgpt.NewClient(cfg.APIKey, cfg.BaseURL)
}

// NewEmbedder builds the rag.Embedder selected by cfg.EmbeddingBackend.
// "deterministic" is a real, explicit choice for local development and
// tests, not a fallback applied when chatgpt is misconfigured.
func NewEmbedder(cfg config.LLMConfig, client *chatgpt.Client) (rag.Embedder, error) {
	switch cfg.EmbeddingBackend {
	case "chatgpt":
		if client == nil {
			return nil, missingField("embedder", "llm.apiKey")
		}
		if strings.TrimSpace(cfg.EmbeddingModel) == "" {
			return nil, missingField("embedder", "llm.embeddingModel")
		}
		if cfg.Dimensions <= 0 {
			return nil, missingField("embedder", "llm.dimensions")
		}
		return embedder.NewChatGPTEmbedder(client, cfg.EmbeddingModel, cfg.Dimensions), nil
	case "deterministic":
		if cfg.Dimensions <= 0 {
			return nil, missingField("embedder", "llm.dimensions")
		}
		return embedder.NewDeterministic(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("embedder: unrecognized llm.embeddingBackend %q", cfg.EmbeddingBackend)
	}
}

// NewLlmClient builds the chat-completion adapter. There is no offline
// stand-in: a retrieval service without a real LLM cannot answer anything,
// so a missing API key fails the whole composition root rather than
// serving canned text.
func NewLlmClient(cfg config.LLMConfig, client *chatgpt.Client) (rag.LlmClient, error) {
	if client == nil {
		return nil, missingField("llm client", "llm.apiKey")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, missingField("llm client", "llm.model")
	}
	return llmclient.NewChatGPTAdapter(client, cfg.Model, cfg.Temperature), nil
}

// NewVectorStore builds the rag.VectorStore selected by cfg.Backend. The
// pgvector backend reuses the shared Postgres pool; pool may be nil when
// the backend is "qdrant".
func NewVectorStore(cfg config.VectorStoreCfg, pool *pgxpool.Pool) (rag.VectorStore, error) {
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, missingField("vector store", "vectorStore.collection")
	}
	switch cfg.Backend {
	case "qdrant":
		if strings.TrimSpace(cfg.Qdrant.Addr) == "" {
			return nil, missingField("vector store", "vectorStore.qdrant.addr")
		}
		return qdrant.New(cfg.Qdrant.Addr, cfg.Collection)
	case "pgvector":
		if pool == nil {
			return nil, missingField("vector store", "postgres.dsn")
		}
		return pgvector.New(pool, cfg.Collection), nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("vector store: unrecognized vectorStore.backend %q", cfg.Backend)
	}
}

// NewStagingStore builds the rag.StagingStore selected by cfg.Backend.
func NewStagingStore(cfg config.StagingConfig, logger *slog.Logger) (rag.StagingStore, error) {
	switch cfg.Backend {
	case "r2":
		if strings.TrimSpace(cfg.R2.Endpoint) == "" {
			return nil, missingField("staging store", "staging.r2.endpoint")
		}
		if strings.TrimSpace(cfg.R2.AccessKey) == "" {
			return nil, missingField("staging store", "staging.r2.accessKey")
		}
		if strings.TrimSpace(cfg.R2.SecretKey) == "" {
			return nil, missingField("staging store", "staging.r2.secretKey")
		}
		if strings.TrimSpace(cfg.R2.Bucket) == "" {
			return nil, missingField("staging store", "staging.r2.bucket")
		}
		return staging.NewR2Store(cfg.R2.Endpoint, cfg.R2.AccessKey, cfg.R2.SecretKey, cfg.R2.Bucket, cfg.R2.Region, logger)
	case "memory":
		return staging.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("staging store: unrecognized staging.backend %q", cfg.Backend)
	}
}

// NewFileLoaders builds the content-type-to-FileLoader map the worker
// dispatches on. Text extraction never requires configuration; PDF
// extraction is routed to whichever backend cfg.PDFBackend names.
func NewFileLoaders(cfg config.FileLoaderCfg) (map[rag.ContentType]rag.FileLoader, error) {
	loaders := map[rag.ContentType]rag.FileLoader{
		rag.ContentTypeText: fileloader.NewText(),
	}

	switch cfg.PDFBackend {
	case "pythonService":
		// NewPythonPDF substitutes its own localhost default when the URL
		// is blank, so unlike the whisper server URL below this is not
		// treated as a missing required field.
		loaders[rag.ContentTypePdf] = fileloader.NewPythonPDF(cfg.PythonPDF.ServiceURL)
	case "azureDocIntel":
		if strings.TrimSpace(cfg.AzureDocIntel.Endpoint) == "" {
			return nil, missingField("file loader", "fileLoader.azureDocIntel.endpoint")
		}
		if strings.TrimSpace(cfg.AzureDocIntel.APIKey) == "" {
			return nil, missingField("file loader", "fileLoader.azureDocIntel.apiKey")
		}
		loaders[rag.ContentTypePdf] = fileloader.NewAzureDocIntel(cfg.AzureDocIntel.Endpoint, cfg.AzureDocIntel.APIKey)
	default:
		return nil, fmt.Errorf("file loader: unrecognized fileLoader.pdfBackend %q", cfg.PDFBackend)
	}

	return loaders, nil
}

// NewTranscriptionEngine builds the rag.TranscriptionEngine selected by
// cfg.Backend. "mock" is a real, explicit choice for local development and
// tests, not a fallback applied when whisper is misconfigured.
func NewTranscriptionEngine(cfg config.TranscribeCfg) (rag.TranscriptionEngine, error) {
	switch cfg.Backend {
	case "whisper":
		if strings.TrimSpace(cfg.ServerURL) == "" {
			return nil, missingField("transcription engine", "transcription.serverUrl")
		}
		return transcription.NewWhisper(cfg.ServerURL, cfg.Language, cfg.Model), nil
	case "mock":
		return transcription.NewMock(), nil
	default:
		return nil, fmt.Errorf("transcription engine: unrecognized transcription.backend %q", cfg.Backend)
	}
}

// NewAudioDecoder builds the rag.AudioDecoder paired with the
// transcription engine.
func NewAudioDecoder(cfg config.TranscribeCfg) *audio.WavDecoder {
	return audio.NewWavDecoder(cfg.RequireSampleRate)
}

// NewTextSplitter builds the rag.TextSplitter selected by cfg.Backend.
func NewTextSplitter(cfg config.SplitterCfg) (rag.TextSplitter, error) {
	switch cfg.Backend {
	case "fixed":
		if cfg.ChunkSize <= 0 {
			return nil, missingField("text splitter", "ingestion.splitter.chunkSize")
		}
		return splitter.NewFixed(cfg.ChunkSize, cfg.ChunkOverlap), nil
	case "semantic":
		if cfg.MaxTokens <= 0 {
			return nil, missingField("text splitter", "ingestion.splitter.maxTokens")
		}
		return splitter.NewSemantic(cfg.MaxTokens, cfg.OverlapTokens), nil
	default:
		return nil, fmt.Errorf("text splitter: unrecognized ingestion.splitter.backend %q", cfg.Backend)
	}
}

// NewJobRepository builds the rag.JobRepository selected by
// persistence.backend. pool may be nil only when backend is "memory".
func NewJobRepository(backend string, pool *pgxpool.Pool) (rag.JobRepository, error) {
	switch backend {
	case "postgres":
		if pool == nil {
			return nil, missingField("job repository", "postgres.dsn")
		}
		return repo.NewPostgresJobRepository(pool), nil
	case "memory":
		return repo.NewMemoryJobRepository(), nil
	default:
		return nil, fmt.Errorf("job repository: unrecognized persistence.backend %q", backend)
	}
}

// NewConversationRepository builds the rag.ConversationRepository selected
// by persistence.backend. pool may be nil only when backend is "memory".
func NewConversationRepository(backend string, pool *pgxpool.Pool) (rag.ConversationRepository, error) {
	switch backend {
	case "postgres":
		if pool == nil {
			return nil, missingField("conversation repository", "postgres.dsn")
		}
		return repo.NewPostgresConversationRepository(pool), nil
	case "memory":
		return repo.NewMemoryConversationRepository(), nil
	default:
		return nil, fmt.Errorf("conversation repository: unrecognized persistence.backend %q", backend)
	}
}

// NewValkeyQueue builds the optional distributed ingestion queue. Callers
// should only invoke this when cfg.Enabled is true; ValkeyQueue is not
// required by the worker, which also accepts jobs over its in-process
// channel.
func NewValkeyQueue(cfg config.ValkeyCfg, logger *slog.Logger) (*queue.ValkeyQueue, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, missingField("valkey queue", "ingestion.valkey.addr")
	}
	opts, err := buildValkeyOptions(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("valkey queue: %w", err)
	}
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("valkey queue: connect: %w", err)
	}
	return queue.NewValkeyQueue(client, cfg.QueueKey, logger), nil
}

// buildValkeyOptions turns a bare address or a full connection URL into
// valkey-go client options.
func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	if strings.Contains(addr, "://") {
		return valkey.ParseURL(addr)
	}
	return valkey.ClientOption{InitAddress: []string{addr}}, nil
}

// NewPostgresPool builds the shared pgxpool.Pool backing the pgvector
// store and the Postgres repositories. It returns a *MissingFieldError
// when dsn is empty and a plain error on any connection failure: unlike
// the fallback pattern this composition root replaces, a pool that cannot
// be reached is fatal rather than a silent cue to use memory instead.
func NewPostgresPool(ctx context.Context, cfg config.PostgresConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, missingField("postgres pool", "postgres.dsn")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	registerPgVector(poolConfig, logger)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres pool: ping: %w", err)
	}

	return pool, nil
}

// registerPgVector teaches every pool connection how to encode/decode the
// pgvector "vector" column type, which pgx has no built-in codec for.
func registerPgVector(poolConfig *pgxpool.Config, logger *slog.Logger) {
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		var oid uint32
		if err := conn.QueryRow(ctx, "SELECT 'vector'::regtype::oid").Scan(&oid); err != nil {
			logger.Warn("pgvector type lookup failed, vector columns will not round-trip", "error", err)
			return nil
		}
		conn.TypeMap().RegisterType(&pgtype.Type{Name: "vector", OID: oid, Codec: pgtype.TextCodec{}})
		return nil
	}
}

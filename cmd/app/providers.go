package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/ragserver/internal/bootstrap"
	"github.com/yanqian/ragserver/internal/domain/rag"
	"github.com/yanqian/ragserver/internal/infra/config"
	"github.com/yanqian/ragserver/internal/infra/factory"
	"github.com/yanqian/ragserver/internal/infra/queue"
	httpiface "github.com/yanqian/ragserver/internal/interface/http"
	"github.com/yanqian/ragserver/pkg/logger"
)

// initializeApp wires the composition root by hand. It is the wire-codegen
// equivalent of cmd/app/wire.go: google/wire documents the DI graph
// (go:build wireinject), but `wire gen` isn't run as part of this build, so
// this function is what actually executes at startup.
func initializeApp() (*bootstrap.App, error) {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Logging.Format)

	var pool *pgxpool.Pool
	if cfg.VectorStore.Backend == "pgvector" || cfg.Persistence.Backend == "postgres" {
		pool, err = factory.NewPostgresPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
	}

	// Chat completion has no offline adapter, so the ChatGPT client is
	// always required regardless of which embedder backend is selected.
	chatGPTClient, err := factory.NewChatGPTClient(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("chatgpt client: %w", err)
	}

	embedder, err := factory.NewEmbedder(cfg.LLM, chatGPTClient)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	llmClient, err := factory.NewLlmClient(cfg.LLM, chatGPTClient)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	vectorStore, err := factory.NewVectorStore(cfg.VectorStore, pool)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}

	if err := bootstrap.EnsureVectorCollection(ctx, vectorStore, embedder, cfg.VectorStore.Collection); err != nil {
		return nil, fmt.Errorf("vector store dimension check: %w", err)
	}

	stagingStore, err := factory.NewStagingStore(cfg.Staging, log)
	if err != nil {
		return nil, fmt.Errorf("staging store: %w", err)
	}

	fileLoaders, err := factory.NewFileLoaders(cfg.FileLoader)
	if err != nil {
		return nil, fmt.Errorf("file loaders: %w", err)
	}

	transcriptionEngine, err := factory.NewTranscriptionEngine(cfg.Transcribe)
	if err != nil {
		return nil, fmt.Errorf("transcription engine: %w", err)
	}

	textSplitter, err := factory.NewTextSplitter(cfg.Ingestion.Splitter)
	if err != nil {
		return nil, fmt.Errorf("text splitter: %w", err)
	}

	jobRepo, err := factory.NewJobRepository(cfg.Persistence.Backend, pool)
	if err != nil {
		return nil, fmt.Errorf("job repository: %w", err)
	}

	conversationRepo, err := factory.NewConversationRepository(cfg.Persistence.Backend, pool)
	if err != nil {
		return nil, fmt.Errorf("conversation repository: %w", err)
	}

	worker := rag.NewWorker(
		rag.WorkerConfig{QueueCapacity: cfg.Ingestion.QueueCapacity},
		stagingStore,
		fileLoaders,
		transcriptionEngine,
		textSplitter,
		embedder,
		vectorStore,
		jobRepo,
		log,
	)

	retrieval := rag.NewRetrievalService(
		rag.RetrievalConfig{
			TopK:                cfg.Retrieval.TopK,
			SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
			MaxContextTokens:    cfg.Retrieval.MaxContextTokens,
			FallbackMessage:     cfg.Retrieval.FallbackMessage,
		},
		embedder,
		vectorStore,
		llmClient,
		conversationRepo,
		log,
	)

	var valkeyQueue *queue.ValkeyQueue
	if cfg.Ingestion.Valkey.Enabled {
		valkeyQueue, err = factory.NewValkeyQueue(cfg.Ingestion.Valkey, log)
		if err != nil {
			return nil, fmt.Errorf("valkey queue: %w", err)
		}
	}

	handler := httpiface.NewHandler(retrieval, worker, stagingStore, jobRepo, log)
	server := httpiface.NewRouter(cfg, handler)

	return bootstrap.NewApp(cfg, log, server, worker, valkeyQueue), nil
}

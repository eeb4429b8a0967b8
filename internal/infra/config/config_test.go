package config

import (
	"os"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestValidateRejectsUnknownVectorStoreBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.VectorStore.Backend = "dynamodb"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unrecognized vectorStore.backend")
	}
}

func TestValidateRequiresPostgresDSNForPgvectorBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.VectorStore.Backend = "pgvector"
	cfg.Postgres.DSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when pgvector backend has no postgres dsn")
	}
}

func TestValidateRequiresQdrantAddr(t *testing.T) {
	cfg := defaultConfig()
	cfg.VectorStore.Backend = "qdrant"
	cfg.VectorStore.Qdrant.Addr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when qdrant backend has no addr")
	}
}

func TestApplyEnvOverridesLLMAPIKey(t *testing.T) {
	os.Setenv("LLM_API_KEY", "sk-test-key")
	defer os.Unsetenv("LLM_API_KEY")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.LLM.APIKey != "sk-test-key" {
		t.Fatalf("expected env override to apply, got %q", cfg.LLM.APIKey)
	}
}

func TestValidateRejectsUnknownSplitterBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.Ingestion.Splitter.Backend = "markdown"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unrecognized ingestion.splitter.backend")
	}
}

func TestApplyEnvOverridesSplitterBackend(t *testing.T) {
	os.Setenv("SPLITTER_BACKEND", "fixed")
	defer os.Unsetenv("SPLITTER_BACKEND")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Ingestion.Splitter.Backend != "fixed" {
		t.Fatalf("expected splitter backend override to apply, got %q", cfg.Ingestion.Splitter.Backend)
	}
}

func TestValidateRequiresTranscriptionServerURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Transcribe.ServerURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when transcription.serverUrl is empty")
	}
}

func TestValidateRequiresAzureFieldsWhenSelected(t *testing.T) {
	cfg := defaultConfig()
	cfg.FileLoader.PDFBackend = "azureDocIntel"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when azureDocIntel is selected without endpoint/apiKey")
	}
}

func TestApplyEnvOverridesIngestionValkeyEnabled(t *testing.T) {
	os.Setenv("INGESTION_VALKEY_ENABLED", "true")
	defer os.Unsetenv("INGESTION_VALKEY_ENABLED")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if !cfg.Ingestion.Valkey.Enabled {
		t.Fatal("expected valkey to be enabled after env override")
	}
}

func TestValidateRejectsUnknownEmbeddingBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.LLM.EmbeddingBackend = "local-onnx"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unrecognized llm.embeddingBackend")
	}
}

func TestValidateAllowsDeterministicEmbeddingBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.LLM.EmbeddingBackend = "deterministic"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("deterministic embedding backend should validate, got: %v", err)
	}
}

func TestApplyEnvOverridesEmbeddingBackend(t *testing.T) {
	os.Setenv("LLM_EMBEDDING_BACKEND", "deterministic")
	defer os.Unsetenv("LLM_EMBEDDING_BACKEND")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.LLM.EmbeddingBackend != "deterministic" {
		t.Fatalf("expected embedding backend override to apply, got %q", cfg.LLM.EmbeddingBackend)
	}
}

func TestValidateRejectsUnknownPersistenceBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.Persistence.Backend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unrecognized persistence.backend")
	}
}

func TestApplyEnvOverridesPersistenceBackend(t *testing.T) {
	os.Setenv("PERSISTENCE_BACKEND", "memory")
	defer os.Unsetenv("PERSISTENCE_BACKEND")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Persistence.Backend != "memory" {
		t.Fatalf("expected persistence backend override to apply, got %q", cfg.Persistence.Backend)
	}
}

func TestValidateAllowsMemoryVectorStoreBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.VectorStore.Backend = "memory"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory vector store backend should validate, got: %v", err)
	}
}

func TestValidateAllowsMockTranscriptionBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.Transcribe.Backend = "mock"
	cfg.Transcribe.ServerURL = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("mock transcription backend should validate without a server url, got: %v", err)
	}
}

func TestValidateRejectsUnknownTranscriptionBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.Transcribe.Backend = "gcp-speech"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unrecognized transcription.backend")
	}
}

func TestApplyEnvOverridesTranscriptionBackend(t *testing.T) {
	os.Setenv("TRANSCRIBE_BACKEND", "mock")
	defer os.Unsetenv("TRANSCRIBE_BACKEND")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Transcribe.Backend != "mock" {
		t.Fatalf("expected transcription backend override to apply, got %q", cfg.Transcribe.Backend)
	}
}

// Package pgvector adapts jackc/pgx/v5 and pgvector-go to rag.VectorStore,
// storing chunks and embeddings in a single Postgres table per collection.
package pgvector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	vector "github.com/pgvector/pgvector-go"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// Store is the sole owner of the chunk_embeddings table for one collection
// name, distinguished by the collection column so multiple logical
// collections can share a pool without separate tables.
type Store struct {
	pool       *pgxpool.Pool
	collection string
}

// New constructs a Store bound to collection.
func New(pool *pgxpool.Pool, collection string) *Store {
	return &Store{pool: pool, collection: collection}
}

// CreateCollection creates the backing table and vector index if absent.
// Postgres/pgvector has no notion of a per-collection dimensionality check
// at the DDL level beyond the column type, so cfg.Dimensions fixes the
// vector column width for the lifetime of the table.
func (s *Store) CreateCollection(ctx context.Context, cfg rag.CollectionConfig) error {
	_, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	if err != nil {
		return fmt.Errorf("pgvector: create extension: %w", err)
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS chunk_embeddings (
			id UUID PRIMARY KEY,
			collection TEXT NOT NULL,
			document_id UUID NOT NULL,
			text TEXT NOT NULL,
			page INT,
			"offset" INT NOT NULL,
			embedding vector(%d) NOT NULL
		)
	`, cfg.Dimensions)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("pgvector: create table: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chunk_embeddings_collection_idx
		ON chunk_embeddings (collection)
	`)
	if err != nil {
		return fmt.Errorf("pgvector: create collection index: %w", err)
	}
	return nil
}

// CollectionExists reports whether any row is tagged with this collection.
func (s *Store) CollectionExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM chunk_embeddings WHERE collection = $1 LIMIT 1)
	`, s.collection).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgvector: check collection %s: %w", s.collection, err)
	}
	return exists, nil
}

// CollectionVectorSize reports the dimensionality of the embedding column,
// used by the startup dimensional-mismatch check.
func (s *Store) CollectionVectorSize(ctx context.Context) (int, error) {
	var dims int
	err := s.pool.QueryRow(ctx, `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = 'chunk_embeddings'::regclass AND attname = 'embedding'
	`).Scan(&dims)
	if err != nil {
		return 0, fmt.Errorf("pgvector: read vector column width: %w", err)
	}
	return dims, nil
}

// DeleteCollection removes every row tagged with this collection.
func (s *Store) DeleteCollection(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunk_embeddings WHERE collection = $1`, s.collection)
	if err != nil {
		return fmt.Errorf("pgvector: delete collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert stores chunk/embedding pairs, replacing any row sharing the same
// chunk id.
func (s *Store) Upsert(ctx context.Context, records []rag.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO chunk_embeddings (id, collection, document_id, text, page, "offset", embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				text = EXCLUDED.text, page = EXCLUDED.page, "offset" = EXCLUDED."offset", embedding = EXCLUDED.embedding
		`, r.Chunk.ID, s.collection, r.Chunk.DocumentID, r.Chunk.Text, r.Chunk.Page, r.Chunk.Offset, vector.NewVector(r.Embedding))
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("pgvector: upsert batch: %w", err)
		}
	}
	return nil
}

// Search performs k-NN search using cosine distance, converting distance to
// a similarity score in [0, 1] via 1 / (1 + distance) to match the
// descending-score contract other VectorStore adapters share.
func (s *Store) Search(ctx context.Context, embedding rag.Embedding, topK int) ([]rag.SearchResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, text, page, "offset", 1.0 / (1.0 + (embedding <=> $2)) AS score
		FROM chunk_embeddings
		WHERE collection = $1
		ORDER BY embedding <=> $2 ASC
		LIMIT $3
	`, s.collection, vector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()

	var results []rag.SearchResult
	for rows.Next() {
		var (
			chunk rag.Chunk
			score float64
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Text, &chunk.Page, &chunk.Offset, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan search row: %w", err)
		}
		results = append(results, rag.SearchResult{Chunk: chunk, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: iterate search rows: %w", err)
	}
	return results, nil
}

// Delete removes rows by chunk id.
func (s *Store) Delete(ctx context.Context, ids []rag.ChunkID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM chunk_embeddings WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("pgvector: delete %d chunks: %w", len(ids), err)
	}
	return nil
}

var _ rag.VectorStore = (*Store)(nil)

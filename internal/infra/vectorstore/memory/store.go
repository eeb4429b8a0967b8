// Package memory provides an in-process rag.VectorStore for local
// development, offline demos, and tests, with no external dependency.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// Store holds chunk/embedding pairs in a map and answers Search with a
// brute-force cosine-similarity scan, the same tradeoff the teacher's
// in-memory repositories make elsewhere: simplicity over scale, fine for
// the collection sizes local development deals with.
type Store struct {
	mu         sync.RWMutex
	dimensions int
	records    map[rag.ChunkID]rag.VectorRecord
}

// New constructs an empty Store.
func New() *Store {
	return &Store{records: make(map[rag.ChunkID]rag.VectorRecord)}
}

// CreateCollection records the expected dimensionality; the collection
// itself is just the zero value of the records map.
func (s *Store) CreateCollection(ctx context.Context, cfg rag.CollectionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimensions = cfg.Dimensions
	return nil
}

// CollectionExists reports whether CreateCollection has been called.
func (s *Store) CollectionExists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions > 0, nil
}

// CollectionVectorSize reports the dimensionality fixed by CreateCollection.
func (s *Store) CollectionVectorSize(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions, nil
}

// DeleteCollection clears every stored record and resets dimensionality.
func (s *Store) DeleteCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimensions = 0
	s.records = make(map[rag.ChunkID]rag.VectorRecord)
	return nil
}

// Upsert stores or replaces each record by chunk id.
func (s *Store) Upsert(ctx context.Context, records []rag.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.Chunk.ID] = r
	}
	return nil
}

// Search returns the topK records ranked by cosine similarity to
// embedding, highest first.
func (s *Store) Search(ctx context.Context, embedding rag.Embedding, topK int) ([]rag.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]rag.SearchResult, 0, len(s.records))
	for _, r := range s.records {
		results = append(results, rag.SearchResult{Chunk: r.Chunk, Score: cosineSimilarity(embedding, r.Embedding)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes the named chunks.
func (s *Store) Delete(ctx context.Context, ids []rag.ChunkID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

func cosineSimilarity(a, b rag.Embedding) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ rag.VectorStore = (*Store)(nil)

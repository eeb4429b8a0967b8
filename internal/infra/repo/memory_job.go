package repo

import (
	"context"
	"sync"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// MemoryJobRepository is an in-memory JobRepository for local development
// and tests, with no external dependency.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[rag.JobID]rag.Job
}

// NewMemoryJobRepository constructs an empty repository.
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[rag.JobID]rag.Job)}
}

// Create inserts a new job row.
func (r *MemoryJobRepository) Create(ctx context.Context, job rag.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

// UpdateStatus advances a job's status.
func (r *MemoryJobRepository) UpdateStatus(ctx context.Context, id rag.JobID, status rag.JobStatus, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.ErrorMessage = errMsg
	r.jobs[id] = job
	return nil
}

// Get fetches a job by id.
func (r *MemoryJobRepository) Get(ctx context.Context, id rag.JobID) (rag.Job, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	return job, ok, nil
}

var _ rag.JobRepository = (*MemoryJobRepository)(nil)

// Package queue provides JobQueue transports for the ingestion worker
// beyond the default in-process bounded channel on rag.Worker itself: a
// Valkey-backed distributed queue for deployments running more than one
// worker process against a shared store.
package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

type jobEnvelope struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	ContentType int   `json:"content_type"`
	StagingPath string `json:"staging_path"`
}

// ValkeyQueue persists ingestion jobs in a Valkey list and dispatches
// popped jobs to a Worker, allowing multiple worker processes to share one
// backlog instead of each holding its own in-process channel.
type ValkeyQueue struct {
	client      valkey.Client
	queueKey    string
	logger      *slog.Logger
	stop        chan struct{}
	pollTimeout time.Duration
}

// NewValkeyQueue constructs a Valkey-backed queue.
func NewValkeyQueue(client valkey.Client, queueKey string, logger *slog.Logger) *ValkeyQueue {
	if queueKey == "" {
		queueKey = "rag:ingestion:jobs"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ValkeyQueue{
		client:      client,
		queueKey:    queueKey,
		logger:      logger.With("component", "queue.valkey"),
		stop:        make(chan struct{}),
		pollTimeout: 5 * time.Second,
	}
}

// Enqueue pushes a job onto the shared list.
func (q *ValkeyQueue) Enqueue(ctx context.Context, job rag.IngestionJob) error {
	var docIDField string
	if job.Document.ID != (rag.DocumentID{}) {
		docIDField = job.Document.ID.String()
	}
	encoded, err := json.Marshal(jobEnvelope{
		JobID:       job.JobID.String(),
		DocumentID:  docIDField,
		Filename:    job.Document.Filename,
		ContentType: int(job.Document.ContentType),
		StagingPath: job.Path.String(),
	})
	if err != nil {
		return err
	}
	cmd := q.client.B().Lpush().Key(q.queueKey).Element(string(encoded)).Build()
	return q.client.Do(ctx, cmd).Error()
}

// Consume blocks popping jobs and handing them to worker.Submit until ctx
// is cancelled or Stop is called.
func (q *ValkeyQueue) Consume(ctx context.Context, worker *rag.Worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		default:
		}
		resp := q.client.Do(ctx, q.client.B().Brpop().Key(q.queueKey).Timeout(q.pollTimeout.Seconds()).Build())
		values, err := resp.ToArray()
		if err != nil {
			if !valkey.IsValkeyNil(err) {
				q.logger.Warn("valkey queue pop failed", "error", err)
			}
			continue
		}
		if len(values) < 2 {
			continue
		}
		raw, err := values[1].ToString()
		if err != nil {
			q.logger.Warn("valkey queue payload decode failed", "error", err)
			continue
		}
		var envelope jobEnvelope
		if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
			q.logger.Warn("valkey queue unmarshal failed", "error", err)
			continue
		}
		job, err := fromEnvelope(envelope)
		if err != nil {
			q.logger.Warn("valkey queue envelope invalid", "error", err)
			continue
		}
		if err := worker.Submit(ctx, job); err != nil {
			q.logger.Warn("valkey queue submit to local worker failed", "error", err)
		}
	}
}

// Stop ends a running Consume loop.
func (q *ValkeyQueue) Stop() {
	close(q.stop)
}

func fromEnvelope(e jobEnvelope) (rag.IngestionJob, error) {
	jobID, err := rag.ParseJobID(e.JobID)
	if err != nil {
		return rag.IngestionJob{}, err
	}
	docID, err := rag.ParseDocumentID(e.DocumentID)
	if err != nil {
		return rag.IngestionJob{}, err
	}
	return rag.IngestionJob{
		JobID: jobID,
		Document: rag.Document{
			ID:          docID,
			Filename:    e.Filename,
			ContentType: rag.ContentType(e.ContentType),
		},
		Path: rag.NewStoragePath(docID, e.Filename),
	}, nil
}

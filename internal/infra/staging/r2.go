// Package staging provides StagingStore adapters for transiently holding
// uploaded document bytes between the HTTP ingest handler and the
// ingestion worker.
package staging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// R2Store stores staged objects in Cloudflare R2 (or any S3-compatible
// endpoint) via minio-go.
type R2Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewR2Store constructs the staging adapter.
func NewR2Store(endpoint, accessKey, secretKey, bucket, region string, logger *slog.Logger) (*R2Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cleanEndpoint := sanitizeEndpoint(endpoint)
	useSSL := strings.HasPrefix(strings.ToLower(endpoint), "https")
	client, err := minio.New(cleanEndpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("staging: init r2 client: %w", err)
	}
	return &R2Store{client: client, bucket: bucket, logger: logger.With("component", "staging.r2")}, nil
}

func (s *R2Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err == nil && exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return fmt.Errorf("staging: ensure bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Store uploads data under path, creating the bucket on first use.
func (s *R2Store) Store(ctx context.Context, path rag.StoragePath, data []byte) (int64, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return 0, err
	}
	reader := bytes.NewReader(data)
	info, err := s.client.PutObject(ctx, s.bucket, path.String(), reader, int64(len(data)), minio.PutObjectOptions{
		DisableMultipart: len(data) < 5*1024*1024,
	})
	if err != nil {
		return 0, fmt.Errorf("staging: put %s: %w", path, err)
	}
	return info.Size, nil
}

// Fetch reads the full object back into memory for the ingestion worker.
func (s *R2Store) Fetch(ctx context.Context, path rag.StoragePath) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path.String(), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("staging: get %s: %w", path, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("staging: read %s: %w", path, err)
	}
	return data, nil
}

// Delete removes the staged object, called best-effort after successful
// ingestion.
func (s *R2Store) Delete(ctx context.Context, path rag.StoragePath) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path.String(), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("staging: delete %s: %w", path, err)
	}
	return nil
}

// Head returns the size of the staged object without downloading it.
func (s *R2Store) Head(ctx context.Context, path rag.StoragePath) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, path.String(), minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("staging: stat %s: %w", path, err)
	}
	return info.Size, nil
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if strings.Contains(raw, "/") {
		parts := strings.Split(raw, "/")
		raw = parts[0]
	}
	return raw
}

var _ rag.StagingStore = (*R2Store)(nil)

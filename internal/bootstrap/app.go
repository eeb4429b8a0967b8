package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/yanqian/ragserver/internal/domain/rag"
	"github.com/yanqian/ragserver/internal/infra/config"
	"github.com/yanqian/ragserver/internal/infra/queue"
)

// App encapsulates the HTTP server and ingestion worker lifecycle.
type App struct {
	cfg         *config.Config
	logger      *slog.Logger
	server      *http.Server
	worker      *rag.Worker
	valkeyQueue *queue.ValkeyQueue
}

// NewApp builds the runnable app. It does not start anything; call Run.
// valkeyQueue is optional: pass nil when the worker is only fed over its
// in-process channel.
func NewApp(cfg *config.Config, logger *slog.Logger, server *http.Server, worker *rag.Worker, valkeyQueue *queue.ValkeyQueue) *App {
	return &App{cfg: cfg, logger: logger.With("component", "bootstrap"), server: server, worker: worker, valkeyQueue: valkeyQueue}
}

// EnsureVectorCollection creates the configured vector store's collection
// on first run and, on every run, fails closed when the configured
// embedder's output width disagrees with an existing collection. A
// mismatch here means every future upsert or search would silently
// corrupt similarity scores, so the app refuses to start rather than serve
// traffic against a misconfigured index.
func EnsureVectorCollection(ctx context.Context, store rag.VectorStore, embedder rag.Embedder, collection string) error {
	exists, err := store.CollectionExists(ctx)
	if err != nil {
		return fmt.Errorf("check vector store collection: %w", err)
	}
	if !exists {
		return store.CreateCollection(ctx, rag.CollectionConfig{Name: collection, Dimensions: embedder.Dimensions()})
	}

	storeSize, err := store.CollectionVectorSize(ctx)
	if err != nil {
		return fmt.Errorf("read vector store dimensionality: %w", err)
	}

	embedderSize := embedder.Dimensions()
	if storeSize != embedderSize {
		return fmt.Errorf(
			"vector store collection has dimension %d but embedder produces dimension %d: refusing to start",
			storeSize, embedderSize,
		)
	}
	return nil
}

// Run starts the HTTP server and the ingestion worker, and blocks until
// ctx is canceled or the HTTP server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go a.worker.Run(ctx)

	if a.valkeyQueue != nil {
		go a.valkeyQueue.Consume(ctx, a.worker)
	}

	go func() {
		a.logger.Info("http server starting", "address", a.cfg.HTTP.Address)
		if err := a.server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.logger.Info("shutdown signal received")
		if a.valkeyQueue != nil {
			a.valkeyQueue.Stop()
		}
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Package cleanup provides background maintenance over the memory
// substrate's derived state.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
)

// maintenanceStore narrows *database.Store to the methods the maintenance
// jobs call, so tests can inject a fake instead of a live database.
type maintenanceStore interface {
	EventsMissingEmbeddings(ctx context.Context, limit int) ([]*models.Event, error)
	WriteEmbedding(ctx context.Context, eventID int64, embedding []float64) error
	DeleteOrphanedEntities(ctx context.Context) (int64, error)
}

// Embedder requests a vector embedding for each of a batch of texts, in the
// same order. Satisfied by pkg/embeddings.Embedder implementations.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Service periodically runs two idempotent maintenance jobs:
//   - Backfills embeddings for events persisted while the embedding
//     collaborator was unavailable (the pipeline's enrichment stage
//     soft-skips rather than fail the batch)
//   - Prunes zero-degree entity rows left behind by graph rebuilds
//
// Both operations are idempotent and safe to run from multiple processes.
type Service struct {
	config   config.MaintenanceConfig
	store    maintenanceStore
	embedder Embedder

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new maintenance service.
func NewService(cfg config.MaintenanceConfig, store maintenanceStore, embedder Embedder) *Service {
	return &Service{
		config:   cfg,
		store:    store,
		embedder: embedder,
	}
}

// Start launches the background maintenance loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("maintenance service started",
		"sweep_interval", s.config.SweepInterval,
		"backfill_batch_size", s.config.BackfillBatchSize)
}

// Stop signals the maintenance loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("maintenance service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.backfillEmbeddings(ctx)
	s.pruneOrphanedEntities(ctx)
}

// backfillEmbeddings works through events with no embedding row, one
// bounded batch per pass. The next pass picks up where this one left off,
// so a long outage drains over several sweeps instead of one giant call.
func (s *Service) backfillEmbeddings(ctx context.Context) {
	if s.embedder == nil {
		return
	}
	events, err := s.store.EventsMissingEmbeddings(ctx, s.config.BackfillBatchSize)
	if err != nil {
		slog.Error("maintenance: list events missing embeddings failed", "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	texts := make([]string, len(events))
	for i, e := range events {
		texts[i] = e.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		slog.Warn("maintenance: embedding backfill skipped, provider unavailable", "error", err)
		return
	}
	if len(vectors) != len(events) {
		slog.Error("maintenance: embedding backfill skipped, provider returned wrong count",
			"want", len(events), "got", len(vectors))
		return
	}

	written := 0
	for i, e := range events {
		if err := s.store.WriteEmbedding(ctx, e.ID, vectors[i]); err != nil {
			slog.Error("maintenance: write backfilled embedding failed", "event_id", e.ID, "error", err)
			continue
		}
		written++
	}
	if written > 0 {
		slog.Info("maintenance: backfilled embeddings", "count", written)
	}
}

func (s *Service) pruneOrphanedEntities(ctx context.Context) {
	count, err := s.store.DeleteOrphanedEntities(ctx)
	if err != nil {
		slog.Error("maintenance: entity prune failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("maintenance: pruned orphaned entities", "count", count)
	}
}

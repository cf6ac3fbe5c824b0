package community

import (
	"context"
	"log/slog"
	"time"

	"github.com/athenamem/episodic/pkg/config"
)

// projectStore narrows *database.Store to entityStore's and
// extractionStore's methods plus project enumeration, so the periodic
// sweeper can discover projects without a caller-supplied list.
type projectStore interface {
	entityStore
	extractionStore
	ListProjectIDs(ctx context.Context) ([]string, error)
}

// Service runs Compute on an interval across every known project,
// mirroring pkg/lifecycle.Service's ticker-driven background loop.
type Service struct {
	cfg   config.CommunityConfig
	store projectStore

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService builds a community-detection sweep Service.
func NewService(cfg config.CommunityConfig, store projectStore) *Service {
	return &Service{cfg: cfg, store: store}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	slog.Info("community sweeper started", "sweep_interval", s.cfg.SweepInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("community sweeper stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	projectIDs, err := s.store.ListProjectIDs(ctx)
	if err != nil {
		slog.Error("community sweep: list project ids failed", "error", err)
		return
	}

	for _, projectID := range projectIDs {
		extracted, err := ExtractGraph(ctx, s.store, projectID)
		if err != nil {
			slog.Error("community sweep: graph extraction failed", "project_id", projectID, "error", err)
			continue
		}
		stats, err := Compute(ctx, s.store, projectID, s.cfg)
		if err != nil {
			slog.Error("community sweep failed", "project_id", projectID, "error", err)
			continue
		}
		slog.Info("community sweep complete",
			"project_id", projectID,
			"entities", extracted.Entities, "relations", extracted.Relations,
			"levels", stats.Levels, "communities", stats.Communities)
	}
}

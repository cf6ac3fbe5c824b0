package segmentation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/athenamem/episodic/pkg/clock"
	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
)

// sessionStore narrows *database.Store to the methods Sweep calls, letting
// unit tests exercise the sweep loop against a fake without a live
// database — the same narrowing pattern pkg/community's entityStore uses.
type sessionStore interface {
	ListProjectIDs(ctx context.Context) ([]string, error)
	ListSessionIDs(ctx context.Context, projectID string) ([]string, error)
	QueryBySession(ctx context.Context, sessionID string) ([]*models.Event, error)
	UpdateSurprise(ctx context.Context, id int64, score, normalized float64) error
}

// SweepStats summarizes one Sweep call.
type SweepStats struct {
	Sessions int
	Events   int
	Episodes int
}

// Sweep recomputes episode boundaries for every session across every
// project and persists the per-event surprise score back onto the event
// row (UpdateSurprise), the only part of segmentation's output that is
// durable — episodes themselves stay a derived, recomputable cache and are
// never written to the store.
func Sweep(ctx context.Context, store sessionStore, embedder Embedder, cfg config.SegmentationConfig) (SweepStats, error) {
	var stats SweepStats

	projectIDs, err := store.ListProjectIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("list project ids: %w", err)
	}

	for _, projectID := range projectIDs {
		sessionIDs, err := store.ListSessionIDs(ctx, projectID)
		if err != nil {
			return stats, fmt.Errorf("list session ids for %q: %w", projectID, err)
		}

		for _, sessionID := range sessionIDs {
			events, err := store.QueryBySession(ctx, sessionID)
			if err != nil {
				return stats, fmt.Errorf("query session %q: %w", sessionID, err)
			}
			if len(events) == 0 {
				continue
			}

			result := Segment(ctx, events, embedder, cfg)
			mean, stdev := meanStdev(result.SurpriseScores)

			for i, e := range events {
				score := result.SurpriseScores[i]
				normalized := 0.0
				if stdev > 0 {
					normalized = (score - mean) / stdev
				}
				if err := store.UpdateSurprise(ctx, e.ID, score, normalized); err != nil {
					return stats, fmt.Errorf("update surprise for event %d: %w", e.ID, err)
				}
			}

			stats.Sessions++
			stats.Events += len(events)
			stats.Episodes += len(result.Episodes)
		}
	}

	return stats, nil
}

func meanStdev(scores []float64) (mean, stdev float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	mean = sum / float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scores))
	return mean, math.Sqrt(variance)
}

// Service runs Sweep on an interval, mirroring pkg/lifecycle.Service's
// ticker-driven background loop.
type Service struct {
	cfg      config.SegmentationConfig
	store    sessionStore
	embedder Embedder
	clock    clock.Clock

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService builds a segmentation sweep Service.
func NewService(cfg config.SegmentationConfig, store sessionStore, embedder Embedder, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System
	}
	return &Service{cfg: cfg, store: store, embedder: embedder, clock: clk}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	slog.Info("segmentation sweeper started", "sweep_interval", s.cfg.SweepInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("segmentation sweeper stopped")
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
	stats, err := Sweep(ctx, s.store, s.embedder, s.cfg)
	if err != nil {
		slog.Error("segmentation sweep failed", "error", err)
		return
	}
	slog.Info("segmentation sweep complete",
		"sessions", stats.Sessions, "events", stats.Events, "episodes", stats.Episodes)
}

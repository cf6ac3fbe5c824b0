package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/athenamem/episodic/pkg/clock"
	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/database"
	"github.com/athenamem/episodic/pkg/models"
)

// Service runs the activation/tiering sweep on an interval and whenever a
// NOTIFY wakeup arrives, applying each project's Sweep decisions back to
// the store.
type Service struct {
	cfg   config.LifecycleConfig
	store *database.Store
	clock clock.Clock

	wake chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService builds a lifecycle Service.
func NewService(cfg config.LifecycleConfig, store *database.Store, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System
	}
	return &Service{cfg: cfg, store: store, clock: clk, wake: make(chan struct{}, 1)}
}

// Wake nudges the sweep loop to run immediately instead of waiting for the
// next tick. Safe to call from the NOTIFY listener's events_ingested
// handler; non-blocking if a wakeup is already pending.
func (s *Service) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	slog.Info("lifecycle sweeper started",
		"sweep_interval", s.cfg.SweepInterval,
		"active_capacity", s.cfg.ActiveCapacity,
		"consolidation_days", s.cfg.ConsolidationDays,
		"archive_days", s.cfg.ArchiveDays)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("lifecycle sweeper stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweepAll(ctx)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAll(ctx)
		case <-s.wake:
			s.sweepAll(ctx)
		}
	}
}

// sweepAll runs one sweep pass over every project with non-archived events.
func (s *Service) sweepAll(ctx context.Context) {
	projectIDs, err := s.store.ListProjectIDs(ctx)
	if err != nil {
		slog.Error("lifecycle sweep: list projects failed", "error", err)
		return
	}
	now := s.clock.Now()
	var total SweepStats
	for _, projectID := range projectIDs {
		stats, err := s.sweepProject(ctx, projectID, now)
		if err != nil {
			slog.Error("lifecycle sweep: project failed", "project_id", projectID, "error", err)
			continue
		}
		total.Considered += stats.Considered
		total.Demoted += stats.Demoted
		total.Consolidated += stats.Consolidated
		total.Archived += stats.Archived
		total.KeptActive += stats.KeptActive
	}
	if total.Considered > 0 {
		slog.Info("lifecycle sweep complete",
			"considered", total.Considered,
			"demoted", total.Demoted,
			"consolidated", total.Consolidated,
			"archived", total.Archived,
			"kept_active", total.KeptActive)
	}
}

func (s *Service) sweepProject(ctx context.Context, projectID string, now time.Time) (SweepStats, error) {
	events, err := s.store.QueryNonArchived(ctx, projectID)
	if err != nil {
		return SweepStats{}, err
	}

	for _, e := range events {
		if RepairEvidence(e) {
			// Best-effort: evidence repair on a row already past ingestion
			// validation is logged, not fatal, if the write-back fails.
			if werr := s.store.UpdateLifecycle(ctx, e.ID, e.Lifecycle); werr != nil {
				slog.Warn("lifecycle sweep: evidence repair write-back failed", "event_id", e.ID, "error", werr)
			}
		}
	}

	result := Sweep(events, now, s.cfg)
	byID := make(map[int64]*models.Event, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}

	for _, id := range result.Demoted {
		if e, ok := byID[id]; ok {
			e.Lifecycle.Status = models.LifecycleSession
			if err := s.store.UpdateLifecycle(ctx, id, e.Lifecycle); err != nil {
				slog.Warn("lifecycle sweep: demote write-back failed", "event_id", id, "error", err)
			}
		}
	}
	var communities []models.Community
	if len(result.ToConsolidate) > 0 {
		// Best effort: without communities every consolidation score is 0,
		// which is still a valid (if uninformative) value.
		var cerr error
		communities, cerr = s.store.ListCommunities(ctx, projectID, 0)
		if cerr != nil {
			slog.Warn("lifecycle sweep: list communities failed", "project_id", projectID, "error", cerr)
		}
	}
	for _, id := range result.ToConsolidate {
		if e, ok := byID[id]; ok {
			e.Lifecycle.Status = models.LifecycleConsolidated
			e.Lifecycle.ConsolidationScore = consolidationScore(e, communities)
			if err := s.store.UpdateLifecycle(ctx, id, e.Lifecycle); err != nil {
				slog.Warn("lifecycle sweep: consolidate write-back failed", "event_id", id, "error", err)
			}
		}
	}
	for _, id := range result.ToArchive {
		if e, ok := byID[id]; ok {
			e.Lifecycle.Status = models.LifecycleArchived
			if err := s.store.UpdateLifecycle(ctx, id, e.Lifecycle); err != nil {
				slog.Warn("lifecycle sweep: archive write-back failed", "event_id", id, "error", err)
			}
		}
	}

	return result.Stats, nil
}

// RecordAccessAndPersist applies RecordAccess to the stored event and
// writes the updated lifecycle fields back, for callers outside the sweep
// loop (e.g. a retrieval API) that touch a specific event.
func (s *Service) RecordAccessAndPersist(ctx context.Context, id int64, boost float64) error {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	RecordAccess(e, s.clock.Now(), boost)
	return s.store.UpdateLifecycle(ctx, id, e.Lifecycle)
}

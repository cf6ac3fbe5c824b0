// Package orchestrator drives source adapters through the ingestion
// pipeline: per-source streaming with dual-trigger batching, cursor
// persistence only after a batch durably commits, per-source failure
// isolation, and scheduled (interval or cron) recurring sync.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/database"
	"github.com/athenamem/episodic/pkg/models"
	"github.com/athenamem/episodic/pkg/pipeline"
	"github.com/athenamem/episodic/pkg/sources"
)

// SourceStats summarizes one IngestFromSource call (one attempt, or the
// final successful attempt after retries).
type SourceStats struct {
	SourceID         string
	EventsGenerated  int
	BatchesProcessed int
	Inserted         int
	SkippedDuplicate int
	SkippedExisting  int
	Errors           int
	Duration         time.Duration
	Attempts         int
}

// batchProcessor is the slice of *pipeline.Pipeline the orchestrator
// depends on, narrowed to an interface so tests can supply a fake and
// exercise batching/backoff/cursor logic without a live database.
type batchProcessor interface {
	ProcessBatch(ctx context.Context, events []*models.Event) (pipeline.Stats, error)
}

// cursorStore is the slice of *database.Store the orchestrator depends on
// for resumable-sync bookkeeping, narrowed to an interface for the same
// reason as batchProcessor.
type cursorStore interface {
	GetCursor(ctx context.Context, sourceID string) (models.Cursor, bool, error)
	SetCursor(ctx context.Context, c models.Cursor) error
}

// SyncStatus is the latest known state of one source's sync track record,
// shared between manually triggered syncs (e.g. from the operational API)
// and RunScheduled's background cycles so either can be polled from the
// same source of truth.
type SyncStatus struct {
	SourceID   string
	LastSyncAt time.Time
	LastStats  SourceStats
	LastError  string
	Cycles     CycleStats
}

// Orchestrator owns the configured adapters and drives them through the
// pipeline.
type Orchestrator struct {
	cfg      config.OrchestratorConfig
	pipeline config.PipelineConfig
	store    cursorStore
	pl       batchProcessor

	adaptersMu sync.RWMutex
	adapters   map[string]sources.Adapter

	statusMu sync.Mutex
	status   map[string]*SyncStatus

	onSourceFailure func(sourceID string, err error)
}

// OnSourceFailure registers a callback invoked whenever a source exhausts
// its retries. The caller typically points this at the failure recorder so
// exhausted syncs flow back into the event stream as system_error events.
// Must be set before any ingest runs; not safe to call concurrently with
// ingestion.
func (o *Orchestrator) OnSourceFailure(fn func(sourceID string, err error)) {
	o.onSourceFailure = fn
}

// New builds an Orchestrator from already-constructed adapters. Adapters are
// built by the caller (via sources.New) since construction can fail per
// source config and the caller decides whether a single bad source config
// aborts startup or is merely skipped.
func New(cfg config.OrchestratorConfig, pipelineCfg config.PipelineConfig, store *database.Store, pl *pipeline.Pipeline, adapters map[string]sources.Adapter) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		pipeline: pipelineCfg,
		store:    store,
		pl:       pl,
		adapters: adapters,
		status:   make(map[string]*SyncStatus),
	}
}

// Status returns the latest known sync status for sourceID, or a zero
// SyncStatus and false if no sync has run yet.
func (o *Orchestrator) Status(sourceID string) (SyncStatus, bool) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	st, ok := o.status[sourceID]
	if !ok {
		return SyncStatus{}, false
	}
	return *st, true
}

// SourceIDs returns the configured adapter ids, in no particular order.
func (o *Orchestrator) SourceIDs() []string {
	o.adaptersMu.RLock()
	defer o.adaptersMu.RUnlock()
	ids := make([]string, 0, len(o.adapters))
	for id := range o.adapters {
		ids = append(ids, id)
	}
	return ids
}

// AddSource registers a new adapter, for the operational API's "create
// source" call — adapters configured at process start all arrive through
// New, but a source added afterward takes this same path rather than a
// separate code path for the two cases.
func (o *Orchestrator) AddSource(id string, adapter sources.Adapter) {
	o.adaptersMu.Lock()
	defer o.adaptersMu.Unlock()
	o.adapters[id] = adapter
}

func (o *Orchestrator) adapter(id string) (sources.Adapter, bool) {
	o.adaptersMu.RLock()
	defer o.adaptersMu.RUnlock()
	a, ok := o.adapters[id]
	return a, ok
}

func (o *Orchestrator) recordStatus(sourceID string, stats SourceStats, err error, cycleDuration time.Duration, countCycle bool) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	st, ok := o.status[sourceID]
	if !ok {
		st = &SyncStatus{SourceID: sourceID}
		o.status[sourceID] = st
	}
	st.LastSyncAt = time.Now()
	st.LastStats = stats
	if err != nil {
		st.LastError = err.Error()
	} else {
		st.LastError = ""
	}
	if countCycle {
		st.Cycles.record(cycleDuration, err == nil)
	}
}

// IngestFromSource runs one full sync of a single source, retrying the
// entire attempt with exponential backoff (per OrchestratorConfig) on
// failure. Returns the stats of the last attempt, whether it ultimately
// succeeded or exhausted its retries.
func (o *Orchestrator) IngestFromSource(ctx context.Context, sourceID string) (SourceStats, error) {
	adapter, ok := o.adapter(sourceID)
	if !ok {
		return SourceStats{SourceID: sourceID}, fmt.Errorf("orchestrator: unknown source %q", sourceID)
	}

	var last SourceStats
	attempts := 0

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.cfg.BaseBackoff
	bo.MaxInterval = o.cfg.MaxBackoff
	bo.Multiplier = o.cfg.BackoffFactor
	bo.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not wall-clock

	operation := func() error {
		for {
			attempts++
			stats, err := o.ingestOnce(ctx, sourceID, adapter)
			stats.Attempts = attempts
			last = stats
			if err == nil {
				return nil
			}
			// An explicit rate limit honors the server's Retry-After and
			// does not count against max_retries.
			if rl, ok := sources.AsRateLimit(err); ok {
				slog.Warn("orchestrator: source rate limited", "source_id", sourceID, "retry_after", rl.RetryAfter)
				select {
				case <-time.After(rl.RetryAfter):
					continue
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
			}
			slog.Warn("orchestrator: ingest attempt failed", "source_id", sourceID, "attempt", attempts, "error", err)
			if sources.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
	}

	err := backoff.Retry(operation, backoff.WithMaxRetries(bo, uint64(maxInt(o.cfg.MaxRetries, 0))))
	if err != nil {
		wrapped := fmt.Errorf("orchestrator: source %q failed after %d attempt(s): %w", sourceID, attempts, err)
		o.recordStatus(sourceID, last, wrapped, last.Duration, false)
		if o.onSourceFailure != nil {
			o.onSourceFailure(sourceID, wrapped)
		}
		return last, wrapped
	}
	o.recordStatus(sourceID, last, nil, last.Duration, false)
	return last, nil
}

// IngestFromSources runs IngestFromSource for every sourceID concurrently.
// Each source is isolated: one source's failure does not cancel or affect
// any other source's sync.
func (o *Orchestrator) IngestFromSources(ctx context.Context, sourceIDs []string) map[string]SourceStats {
	results := make(map[string]SourceStats, len(sourceIDs))
	errs := make(map[string]error, len(sourceIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range sourceIDs {
		wg.Add(1)
		go func(sourceID string) {
			defer wg.Done()
			stats, err := o.IngestFromSource(ctx, sourceID)
			mu.Lock()
			results[sourceID] = stats
			if err != nil {
				errs[sourceID] = err
			}
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	for id, err := range errs {
		slog.Error("orchestrator: source ingest failed", "source_id", id, "error", err)
	}
	return results
}

// ingestOnce streams events from adapter, assembles them into batches using
// the pipeline's size-or-latency dual trigger, runs each batch through the
// pipeline, and persists the adapter's cursor only after a batch has
// durably committed.
func (o *Orchestrator) ingestOnce(ctx context.Context, sourceID string, adapter sources.Adapter) (SourceStats, error) {
	start := time.Now()
	stats := SourceStats{SourceID: sourceID}

	var cursorPtr *models.Cursor
	if cursor, found, err := o.store.GetCursor(ctx, sourceID); err != nil {
		return stats, fmt.Errorf("ingest %q: load cursor: %w", sourceID, err)
	} else if found {
		cursorPtr = &cursor
	}

	eventsCh, errCh := adapter.Generate(ctx, cursorPtr)

	batch := make([]*models.Event, 0, o.pipeline.BatchSize)
	timer := time.NewTimer(o.pipeline.MaxBatchLatency)
	defer timer.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		result, err := o.pl.ProcessBatch(ctx, batch)
		if err != nil {
			stats.Errors += len(batch)
			return fmt.Errorf("ingest %q: process batch: %w", sourceID, err)
		}
		stats.BatchesProcessed++
		stats.Inserted += result.Inserted
		stats.SkippedDuplicate += result.SkippedDuplicate
		stats.SkippedExisting += result.SkippedExisting
		stats.Errors += result.Errors

		if err := o.store.SetCursor(ctx, adapter.Cursor()); err != nil {
			return fmt.Errorf("ingest %q: persist cursor: %w", sourceID, err)
		}

		batch = batch[:0]
		return nil
	}

	var genErr error
	done := false
	for !done {
		select {
		case ev, ok := <-eventsCh:
			if !ok {
				done = true
				break
			}
			e := ev
			stats.EventsGenerated++
			batch = append(batch, &e)
			if len(batch) >= o.pipeline.BatchSize {
				if err := flush(); err != nil {
					return stats, err
				}
				resetTimer(timer, o.pipeline.MaxBatchLatency)
			}
		case <-timer.C:
			if err := flush(); err != nil {
				return stats, err
			}
			timer.Reset(o.pipeline.MaxBatchLatency)
		case err := <-errCh:
			if err != nil {
				genErr = err
			}
		case <-ctx.Done():
			return stats, ctx.Err()
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}
	// Drain a trailing adapter error that arrived alongside channel close.
	select {
	case err := <-errCh:
		if err != nil {
			genErr = err
		}
	default:
	}

	stats.Duration = time.Since(start)
	if genErr != nil {
		return stats, fmt.Errorf("ingest %q: source error: %w", sourceID, genErr)
	}
	return stats, nil
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

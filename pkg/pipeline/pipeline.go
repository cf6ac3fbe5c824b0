// Package pipeline implements the six-stage batch ingestion pipeline:
// in-memory dedup, content hashing, existence check, embedding enrichment,
// transactional persistence, and stats reporting.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/athenamem/episodic/pkg/clock"
	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/database"
	"github.com/athenamem/episodic/pkg/hashing"
	"github.com/athenamem/episodic/pkg/models"
)

// Embedder requests vector embeddings for a batch of event contents. A nil
// Embedder, or any error it returns, results in enrichment being
// soft-skipped — events persist without embeddings, per contract.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Stats summarizes one ProcessBatch call.
type Stats struct {
	Total            int
	Inserted         int
	SkippedDuplicate int
	SkippedExisting  int
	Errors           int
	DurationMS       int64
	ThroughputPerSec float64
}

// Pipeline runs events through the six ingestion stages.
type Pipeline struct {
	cfg      config.PipelineConfig
	store    *database.Store
	embedder Embedder
	notify   *database.Client
	clock    clock.Clock

	lru *lruCache

	metrics *Metrics
}

// Metrics are the per-stage Prometheus collectors.
type Metrics struct {
	StageEvents  *prometheus.CounterVec
	BatchLatency prometheus.Histogram
	Throughput   prometheus.Gauge
}

// NewMetrics registers the pipeline's collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		StageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "episodic_pipeline_stage_events_total",
			Help: "Events processed by pipeline stage and outcome.",
		}, []string{"stage", "outcome"}),
		BatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "episodic_pipeline_batch_duration_seconds",
			Help:    "Wall-clock duration of a ProcessBatch call.",
			Buckets: prometheus.DefBuckets,
		}),
		Throughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "episodic_pipeline_throughput_events_per_second",
			Help: "Events per second in the most recently completed batch.",
		}),
	}
	registerer.MustRegister(m.StageEvents, m.BatchLatency, m.Throughput)
	return m
}

// New builds a Pipeline. notify may be nil, in which case stage 6 skips the
// events_ingested NOTIFY (useful in tests without a live listener).
func New(cfg config.PipelineConfig, store *database.Store, embedder Embedder, notify *database.Client, metrics *Metrics, clk clock.Clock) *Pipeline {
	if clk == nil {
		clk = clock.System
	}
	return &Pipeline{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		notify:   notify,
		clock:    clk,
		lru:      newLRUCache(cfg.LRUCacheSize),
		metrics:  metrics,
	}
}

// candidate pairs a surviving event with its precomputed content hash.
type candidate struct {
	event *models.Event
	hash  string
}

// ProcessBatch runs the six ingestion stages over events in order.
func (p *Pipeline) ProcessBatch(ctx context.Context, events []*models.Event) (Stats, error) {
	start := p.clock.Now()
	stats := Stats{Total: len(events)}
	if len(events) == 0 {
		return stats, nil
	}

	// Stage 1: in-memory dedup (LRU + within-batch).
	var survivors []*models.Event
	seenInBatch := make(map[string]bool, len(events))
	for _, e := range events {
		h := hashing.Hash(e)
		if p.lru.Contains(h) || seenInBatch[h] {
			stats.SkippedDuplicate++
			p.observe("dedup", "skipped_duplicate")
			continue
		}
		seenInBatch[h] = true
		survivors = append(survivors, e)
	}
	p.observe("dedup", "survived", len(survivors))

	// Stage 2: hash (recomputed defensively; cheap and keeps each survivor
	// paired with its own hash rather than trusting a captured closure).
	var hashed []candidate
	for _, e := range survivors {
		h := hashing.Hash(e)
		hashed = append(hashed, candidate{event: e, hash: h})
	}
	p.observe("hash", "computed", len(hashed))

	// Stage 3: action decision via bulk existence check.
	hashes := make([]string, len(hashed))
	for i, c := range hashed {
		hashes[i] = c.hash
	}
	existing, err := p.store.SearchHashes(ctx, hashes)
	if err != nil {
		return stats, err
	}
	var toInsert []candidate
	for _, c := range hashed {
		if _, ok := existing[c.hash]; ok {
			stats.SkippedExisting++
			p.observe("existence_check", "skipped_existing")
			continue
		}
		toInsert = append(toInsert, c)
	}
	p.observe("existence_check", "to_insert", len(toInsert))

	// Stage 4: enrich with embeddings, soft-skipped on failure.
	embeddings := p.enrich(ctx, toInsert)

	// Stage 5: persist transactionally.
	items := make([]database.BatchInsertItem, len(toInsert))
	for i, c := range toInsert {
		items[i] = database.BatchInsertItem{Event: c.event, Hash: c.hash}
	}
	result, err := p.store.BatchInsert(ctx, items)
	if err != nil {
		stats.Errors += len(toInsert)
		p.observe("persist", "error", len(toInsert))
		return stats, err
	}
	stats.Inserted = len(result.Inserted)
	p.observe("persist", "inserted", stats.Inserted)

	if embeddings != nil {
		for i, id := range result.Inserted {
			if i >= len(embeddings) || embeddings[i] == nil {
				continue
			}
			if err := p.store.WriteEmbedding(ctx, id, embeddings[i]); err != nil {
				slog.Warn("pipeline: embedding write-back failed", "event_id", id, "error", err)
			}
		}
	}

	// Stage 6: report & cleanup.
	for _, c := range toInsert {
		p.lru.Add(c.hash)
	}
	if p.notify != nil {
		if err := database.NotifyEventsIngested(ctx, p.notify); err != nil {
			slog.Warn("pipeline: events_ingested notify failed", "error", err)
		}
	}

	elapsed := p.clock.Now().Sub(start)
	stats.DurationMS = elapsed.Milliseconds()
	if elapsed > 0 {
		stats.ThroughputPerSec = float64(stats.Total) / elapsed.Seconds()
	}
	if p.metrics != nil {
		p.metrics.BatchLatency.Observe(elapsed.Seconds())
		p.metrics.Throughput.Set(stats.ThroughputPerSec)
	}

	return stats, nil
}

// enrich requests one batched embedding call for the survivors headed for
// insertion. A nil embedder or a collaborator error both soft-skip: the
// caller persists the events without embeddings rather than failing the
// batch.
func (p *Pipeline) enrich(ctx context.Context, items []candidate) [][]float64 {
	if p.embedder == nil || len(items) == 0 {
		return nil
	}
	texts := make([]string, len(items))
	for i, c := range items {
		texts[i] = c.event.Content
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		slog.Warn("pipeline: embedding batch failed, continuing without embeddings", "error", err)
		p.observe("enrich", "error", len(items))
		return nil
	}
	p.observe("enrich", "embedded", len(vectors))
	return vectors
}

func (p *Pipeline) observe(stage, outcome string, n ...int) {
	if p.metrics == nil {
		return
	}
	count := 1.0
	if len(n) > 0 {
		count = float64(n[0])
	}
	p.metrics.StageEvents.WithLabelValues(stage, outcome).Add(count)
}

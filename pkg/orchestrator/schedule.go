package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// schedule computes the next run time for a source. Two forms are
// accepted: a plain interval ("5m", "30s", "1h", "1d") or a standard
// five-field cron expression ("0 */4 * * *"). "1d" is handled specially
// since time.ParseDuration has no day unit.
type schedule interface {
	next(from time.Time) time.Time
}

type intervalSchedule struct{ d time.Duration }

func (s intervalSchedule) next(from time.Time) time.Time { return from.Add(s.d) }

type cronSchedule struct{ sched cron.Schedule }

func (s cronSchedule) next(from time.Time) time.Time { return s.sched.Next(from) }

func parseSchedule(s string) (schedule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	if strings.HasSuffix(s, "d") {
		if n, err := strconv.Atoi(strings.TrimSuffix(s, "d")); err == nil {
			return intervalSchedule{d: time.Duration(n) * 24 * time.Hour}, nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return intervalSchedule{d: d}, nil
	}
	sched, err := cron.ParseStandard(s)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: not an interval or cron expression: %w", s, err)
	}
	return cronSchedule{sched: sched}, nil
}

// CycleStats tracks one source's recurring-sync track record under
// RunScheduled.
type CycleStats struct {
	Cycles           int
	SuccessfulCycles int
	SuccessRate      float64
	AvgDurationMS    float64

	totalDurationMS float64
}

func (c *CycleStats) record(d time.Duration, ok bool) {
	c.Cycles++
	if ok {
		c.SuccessfulCycles++
	}
	c.totalDurationMS += float64(d.Milliseconds())
	c.SuccessRate = float64(c.SuccessfulCycles) / float64(c.Cycles)
	c.AvgDurationMS = c.totalDurationMS / float64(c.Cycles)
}

// RunScheduled launches one recurring-sync loop per source in schedules,
// using the schedule string given for it to decide when its next cycle
// runs. A source whose schedule is empty or does not parse is logged and
// skipped; config loading and the sources API fill an empty schedule from
// OrchestratorConfig.DefaultSchedule before it gets here.
// Blocks until ctx is cancelled; returns each source's final CycleStats.
func (o *Orchestrator) RunScheduled(ctx context.Context, schedules map[string]string) map[string]CycleStats {
	results := make(map[string]CycleStats, len(schedules))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for sourceID, raw := range schedules {
		sched, err := parseSchedule(raw)
		if err != nil {
			slog.Error("orchestrator: skipping source with invalid schedule", "source_id", sourceID, "schedule", raw, "error", err)
			continue
		}
		wg.Add(1)
		go func(sourceID string, sched schedule) {
			defer wg.Done()
			stats := o.runScheduledSource(ctx, sourceID, sched)
			mu.Lock()
			results[sourceID] = stats
			mu.Unlock()
		}(sourceID, sched)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) runScheduledSource(ctx context.Context, sourceID string, sched schedule) CycleStats {
	var stats CycleStats
	now := time.Now()
	next := sched.next(now)

	for {
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return stats
		case <-timer.C:
			cycleStart := time.Now()
			sourceStats, err := o.IngestFromSource(ctx, sourceID)
			cycleDuration := time.Since(cycleStart)
			stats.record(cycleDuration, err == nil)
			o.recordStatus(sourceID, sourceStats, err, cycleDuration, true)
			if err != nil {
				slog.Error("orchestrator: scheduled cycle failed", "source_id", sourceID, "error", err)
			}
			next = sched.next(time.Now())
		}
	}
}

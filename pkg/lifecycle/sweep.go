package lifecycle

import (
	"sort"
	"time"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
)

// SweepStats summarizes one sweep's decisions.
type SweepStats struct {
	Considered    int
	Demoted       int
	Consolidated  int
	Archived      int
	KeptActive    int
}

// SweepResult is the pure output of Sweep: the caller applies these status
// transitions via the store; Sweep itself never touches storage.
type SweepResult struct {
	ToConsolidate []int64
	ToArchive     []int64
	KeepActive    []int64
	Demoted       []int64 // active -> session, working-memory overflow
	Stats         SweepStats
}

// Sweep evaluates every active/session event's tier eligibility at time
// now, per the Baddeley-bounded working-memory policy (present at most
// cfg.ActiveCapacity active events) plus the consolidation and archival
// predicates. It is pure and safe to call repeatedly with the same inputs.
func Sweep(events []*models.Event, now time.Time, cfg config.LifecycleConfig) SweepResult {
	var result SweepResult

	type scored struct {
		event      *models.Event
		activation float64
	}
	var active []scored

	for _, e := range events {
		// Already-archived events are terminal: nothing further ever moves
		// them. Consolidated events are NOT skipped here — the archival
		// predicate explicitly allows promoting a stale consolidated event
		// to archived.
		if e.Lifecycle.Status == models.LifecycleArchived {
			continue
		}
		result.Stats.Considered++

		age := now.Sub(e.Timestamp)
		consolidationDays := time.Duration(cfg.ConsolidationDays) * 24 * time.Hour
		archiveDays := time.Duration(cfg.ArchiveDays) * 24 * time.Hour

		if eligibleForArchival(e, now, archiveDays) {
			result.ToArchive = append(result.ToArchive, e.ID)
			result.Stats.Archived++
			continue
		}

		isWorkingTier := e.Lifecycle.Status == models.LifecycleActive || e.Lifecycle.Status == models.LifecycleSession
		if isWorkingTier && eligibleForConsolidation(e, age, consolidationDays) {
			result.ToConsolidate = append(result.ToConsolidate, e.ID)
			result.Stats.Consolidated++
			continue
		}

		if e.Lifecycle.Status == models.LifecycleActive {
			active = append(active, scored{event: e, activation: Activation(e, now, cfg)})
		} else {
			result.KeepActive = append(result.KeepActive, e.ID)
			result.Stats.KeptActive++
		}
	}

	// Demote the lowest-activation active events until the working-memory
	// bound holds; everything else stays active.
	sort.Slice(active, func(i, j int) bool { return active[i].activation > active[j].activation })
	for i, s := range active {
		if i < cfg.ActiveCapacity {
			result.KeepActive = append(result.KeepActive, s.event.ID)
			result.Stats.KeptActive++
		} else {
			result.Demoted = append(result.Demoted, s.event.ID)
			result.Stats.Demoted++
		}
	}

	return result
}

// eligibleForConsolidation implements the consolidation predicate: active
// or session, age at or past the threshold, and accessed at least once.
// Eligibility alone does not consolidate — the caller's pattern-extraction
// step is what actually writes a consolidation_score and flips the status;
// Sweep only reports which events qualify.
func eligibleForConsolidation(e *models.Event, age, threshold time.Duration) bool {
	return age >= threshold && e.Lifecycle.ActivationCount > 0
}

// eligibleForArchival implements the archival predicate.
func eligibleForArchival(e *models.Event, now time.Time, archiveThreshold time.Duration) bool {
	age := now.Sub(e.Timestamp)
	return age >= archiveThreshold &&
		e.WorkingMemory.ImportanceScore < 0.3 &&
		now.Sub(e.Lifecycle.LastActivation) >= 7*24*time.Hour
}

// Package lifecycle implements ACT-R-inspired activation scoring and tier
// management: deciding what stays active, what cools into session memory,
// and what gets consolidated or archived.
package lifecycle

import (
	"math"
	"time"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
)

// minDeltaHours floors the recency term so an event accessed this instant
// does not produce ln(0).
const minDeltaHours = 0.1

// Activation computes an event's current activation score at time now.
// Consolidated and archived events are always 0 — the formula only applies
// to active and session-tier events still competing for working memory.
func Activation(e *models.Event, now time.Time, cfg config.LifecycleConfig) float64 {
	if e.Lifecycle.Status.Terminal() {
		return 0
	}

	deltaHours := now.Sub(e.Lifecycle.LastActivation).Hours()
	if deltaHours < minDeltaHours {
		deltaHours = minDeltaHours
	}

	baseLevel := -cfg.DecayRate * math.Log(deltaHours)
	frequencyBonus := 0.1 * math.Log(math.Max(float64(e.Lifecycle.ActivationCount), 1))
	consolidationAdd := e.Lifecycle.ConsolidationScore

	var importanceAdd float64
	if e.WorkingMemory.ImportanceScore > 0.7 {
		importanceAdd = cfg.HighImportanceBoost
	}

	var actionabilityAdd float64
	if e.WorkingMemory.HasNextStep || e.WorkingMemory.ActionabilityScore > 0.7 {
		actionabilityAdd = 1.0
	}

	var successAdd float64
	if e.Outcome != nil && *e.Outcome == models.OutcomeSuccess {
		successAdd = 0.5
	}

	total := baseLevel + frequencyBonus + consolidationAdd + importanceAdd + actionabilityAdd + successAdd
	return math.Max(0, total)
}

// RecordAccess applies a retrieval's facilitation credit to e in place:
// bumps the activation count, stamps the access time, and folds boost into
// the consolidation-score-like credit the next sweep's Activation call
// will read back via ConsolidationScore.
func RecordAccess(e *models.Event, now time.Time, boost float64) {
	e.Lifecycle.ActivationCount++
	e.Lifecycle.LastActivation = now
	e.Lifecycle.ConsolidationScore += boost
}

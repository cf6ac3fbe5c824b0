package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
)

func testCfg() config.LifecycleConfig {
	return *config.DefaultLifecycleConfig()
}

func TestActivation_TerminalStatusIsAlwaysZero(t *testing.T) {
	now := time.Now()
	for _, status := range []models.LifecycleStatus{models.LifecycleConsolidated, models.LifecycleArchived} {
		e := &models.Event{Lifecycle: models.Lifecycle{Status: status, LastActivation: now.Add(-time.Hour)}}
		assert.Zero(t, Activation(e, now, testCfg()))
	}
}

func TestActivation_DecaysWithElapsedTime(t *testing.T) {
	now := time.Now()
	cfg := testCfg()
	recent := &models.Event{Lifecycle: models.Lifecycle{Status: models.LifecycleActive, LastActivation: now.Add(-30 * time.Minute), ActivationCount: 1}}
	stale := &models.Event{Lifecycle: models.Lifecycle{Status: models.LifecycleActive, LastActivation: now.Add(-100 * time.Hour), ActivationCount: 1}}

	assert.Greater(t, Activation(recent, now, cfg), Activation(stale, now, cfg))
}

func TestActivation_HighImportanceBoost(t *testing.T) {
	now := time.Now()
	cfg := testCfg()
	base := &models.Event{
		Lifecycle:     models.Lifecycle{Status: models.LifecycleActive, LastActivation: now.Add(-time.Hour), ActivationCount: 1},
		WorkingMemory: models.WorkingMemoryScore{ImportanceScore: 0.2},
	}
	important := &models.Event{
		Lifecycle:     models.Lifecycle{Status: models.LifecycleActive, LastActivation: now.Add(-time.Hour), ActivationCount: 1},
		WorkingMemory: models.WorkingMemoryScore{ImportanceScore: 0.9},
	}
	assert.Greater(t, Activation(important, now, cfg), Activation(base, now, cfg))
}

func TestActivation_SuccessOutcomeAddsBonus(t *testing.T) {
	now := time.Now()
	cfg := testCfg()
	success := models.OutcomeSuccess
	withSuccess := &models.Event{
		Lifecycle: models.Lifecycle{Status: models.LifecycleActive, LastActivation: now.Add(-time.Hour), ActivationCount: 1},
		Outcome:   &success,
	}
	without := &models.Event{
		Lifecycle: models.Lifecycle{Status: models.LifecycleActive, LastActivation: now.Add(-time.Hour), ActivationCount: 1},
	}
	assert.Greater(t, Activation(withSuccess, now, cfg), Activation(without, now, cfg))
}

func TestActivation_NeverNegative(t *testing.T) {
	now := time.Now()
	cfg := testCfg()
	e := &models.Event{Lifecycle: models.Lifecycle{Status: models.LifecycleActive, LastActivation: now.Add(-10000 * time.Hour), ActivationCount: 0}}
	assert.GreaterOrEqual(t, Activation(e, now, cfg), 0.0)
}

func TestRecordAccess_UpdatesCountAndTimestamp(t *testing.T) {
	now := time.Now()
	e := &models.Event{Lifecycle: models.Lifecycle{ActivationCount: 2, LastActivation: now.Add(-time.Hour)}}

	RecordAccess(e, now, 0.5)

	assert.Equal(t, 3, e.Lifecycle.ActivationCount)
	assert.Equal(t, now, e.Lifecycle.LastActivation)
	assert.Equal(t, 0.5, e.Lifecycle.ConsolidationScore)
}

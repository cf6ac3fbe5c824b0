package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athenamem/episodic/pkg/models"
)

func mkEvent(id int64, status models.LifecycleStatus, age time.Duration, now time.Time) *models.Event {
	return &models.Event{
		ID:        id,
		Timestamp: now.Add(-age),
		Lifecycle: models.Lifecycle{
			Status:         status,
			LastActivation: now.Add(-age),
			ActivationCount: 1,
		},
	}
}

func TestSweep_DemotesLowestActivationBeyondCapacity(t *testing.T) {
	now := time.Now()
	cfg := testCfg()
	cfg.ActiveCapacity = 2
	cfg.ConsolidationDays = 365
	cfg.ArchiveDays = 3650

	var events []*models.Event
	for i := int64(1); i <= 5; i++ {
		e := mkEvent(i, models.LifecycleActive, time.Duration(i)*time.Hour, now)
		events = append(events, e)
	}

	result := Sweep(events, now, cfg)

	assert.Len(t, result.KeepActive, 2)
	assert.Len(t, result.Demoted, 3)
	assert.Equal(t, 5, result.Stats.Considered)
}

func TestSweep_ConsolidationRequiresAgeAndAccess(t *testing.T) {
	now := time.Now()
	cfg := testCfg()
	cfg.ConsolidationDays = 7
	cfg.ArchiveDays = 3650

	eligible := mkEvent(1, models.LifecycleSession, 8*24*time.Hour, now)
	tooYoung := mkEvent(2, models.LifecycleSession, 1*24*time.Hour, now)
	neverAccessed := mkEvent(3, models.LifecycleSession, 8*24*time.Hour, now)
	neverAccessed.Lifecycle.ActivationCount = 0

	result := Sweep([]*models.Event{eligible, tooYoung, neverAccessed}, now, cfg)

	require.Contains(t, result.ToConsolidate, int64(1))
	assert.NotContains(t, result.ToConsolidate, int64(2))
	assert.NotContains(t, result.ToConsolidate, int64(3))
}

func TestSweep_ArchivalRequiresLowImportanceAndStaleAccess(t *testing.T) {
	now := time.Now()
	cfg := testCfg()
	cfg.ConsolidationDays = 3650
	cfg.ArchiveDays = 30

	old := mkEvent(1, models.LifecycleConsolidated, 40*24*time.Hour, now)
	old.WorkingMemory.ImportanceScore = 0.1

	important := mkEvent(2, models.LifecycleConsolidated, 40*24*time.Hour, now)
	important.WorkingMemory.ImportanceScore = 0.9

	recentlyAccessed := mkEvent(3, models.LifecycleConsolidated, 40*24*time.Hour, now)
	recentlyAccessed.WorkingMemory.ImportanceScore = 0.1
	recentlyAccessed.Lifecycle.LastActivation = now.Add(-time.Hour)

	result := Sweep([]*models.Event{old, important, recentlyAccessed}, now, cfg)

	assert.Contains(t, result.ToArchive, int64(1))
	assert.NotContains(t, result.ToArchive, int64(2))
	assert.NotContains(t, result.ToArchive, int64(3))
}

func TestSweep_AlreadyArchivedIsSkipped(t *testing.T) {
	now := time.Now()
	cfg := testCfg()
	archived := mkEvent(1, models.LifecycleArchived, 1000*24*time.Hour, now)

	result := Sweep([]*models.Event{archived}, now, cfg)

	assert.Equal(t, 0, result.Stats.Considered)
	assert.Empty(t, result.ToArchive)
}

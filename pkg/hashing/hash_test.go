package hashing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athenamem/episodic/pkg/models"
)

func baseEvent() models.Event {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC)
	return models.Event{
		ProjectID: "proj",
		SessionID: "sess-1",
		Timestamp: ts,
		EventType: models.EventTypeAction,
		Content:   "ran go test ./...",
		Context: models.EventContext{
			CWD:   "/repo",
			Files: []string{"a.go", "b.go"},
		},
		Evidence: models.Evidence{Type: models.EvidenceObserved, Quality: 0.9},
	}
}

func TestHashDeterministic(t *testing.T) {
	e1 := baseEvent()
	e2 := baseEvent()
	require.Equal(t, Hash(&e1), Hash(&e2))
}

func TestHashExcludesVolatileFields(t *testing.T) {
	e1 := baseEvent()
	h1 := Hash(&e1)

	e2 := baseEvent()
	e2.ID = 999
	e2.Lifecycle.Status = models.LifecycleConsolidated
	e2.Lifecycle.ActivationCount = 42
	e2.Lifecycle.ConsolidationScore = 0.5
	e2.Lifecycle.LastActivation = time.Now()
	h2 := Hash(&e2)

	assert.Equal(t, h1, h2, "volatile fields must not affect the hash")
}

func TestHashSensitiveToFileOrder(t *testing.T) {
	e1 := baseEvent()
	e2 := baseEvent()
	e2.Context.Files = []string{"b.go", "a.go"}

	assert.NotEqual(t, Hash(&e1), Hash(&e2), "reordering context.files must change the hash")
}

func TestHashSensitiveToProjectID(t *testing.T) {
	e1 := baseEvent()
	e2 := baseEvent()
	e2.ProjectID = "other-proj"

	assert.NotEqual(t, Hash(&e1), Hash(&e2), "identical events in different projects are distinct")
}

func TestHashSensitiveToTimestamp(t *testing.T) {
	e1 := baseEvent()
	e2 := baseEvent()
	e2.Timestamp = e1.Timestamp.Add(time.Second)

	assert.NotEqual(t, Hash(&e1), Hash(&e2))
}

func TestHashSensitiveToContent(t *testing.T) {
	e1 := baseEvent()
	e2 := baseEvent()
	e2.Content = "different content"

	assert.NotEqual(t, Hash(&e1), Hash(&e2))
}

func TestHashSensitiveToCodeContextPresence(t *testing.T) {
	e1 := baseEvent()
	e2 := baseEvent()
	e2.Code = &models.CodeContext{FilePath: "a.go"}

	assert.NotEqual(t, Hash(&e1), Hash(&e2))
}

func TestHashIsHexSHA256Length(t *testing.T) {
	e := baseEvent()
	h := Hash(&e)
	assert.Len(t, h, 64)
}

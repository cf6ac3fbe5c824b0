package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athenamem/episodic/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	return NewStore(newTestClient(t))
}

func sampleEvent(sessionID string, ts time.Time) *models.Event {
	return &models.Event{
		ProjectID: "proj-1",
		SessionID: sessionID,
		Timestamp: ts,
		EventType: models.EventTypeAction,
		Content:   "ran go test ./...",
		Context:   models.EventContext{CWD: "/repo", Files: []string{"a.go"}},
		Evidence:  models.Evidence{Type: models.EvidenceObserved, Quality: 0.9},
		Lifecycle: models.Lifecycle{Status: models.LifecycleActive},
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := sampleEvent("sess-1", time.Now().UTC())
	id, err := s.Insert(ctx, e, "hash-1")
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, e.ProjectID, got.ProjectID)
	assert.Equal(t, e.SessionID, got.SessionID)
	assert.Equal(t, e.Content, got.Content)
	assert.Equal(t, []string{"a.go"}, got.Context.Files)
}

func TestStore_Insert_DuplicateHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e1 := sampleEvent("sess-1", time.Now().UTC())
	_, err := s.Insert(ctx, e1, "dup-hash")
	require.NoError(t, err)

	e2 := sampleEvent("sess-1", time.Now().UTC())
	_, err = s.Insert(ctx, e2, "dup-hash")
	assert.ErrorIs(t, err, ErrDuplicateHash)
}

func TestStore_SearchHashes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := sampleEvent("sess-1", time.Now().UTC())
	id, err := s.Insert(ctx, e, "hash-a")
	require.NoError(t, err)

	found, err := s.SearchHashes(ctx, []string{"hash-a", "hash-missing"})
	require.NoError(t, err)
	assert.Equal(t, id, found["hash-a"])
	_, ok := found["hash-missing"]
	assert.False(t, ok)
}

func TestStore_BatchInsert_SkipsDuplicatesWithinBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := []BatchInsertItem{
		{Event: sampleEvent("sess-1", time.Now().UTC()), Hash: "h1"},
		{Event: sampleEvent("sess-1", time.Now().UTC()), Hash: "h1"},
		{Event: sampleEvent("sess-1", time.Now().UTC()), Hash: "h2"},
	}
	result, err := s.BatchInsert(ctx, items)
	require.NoError(t, err)
	assert.Len(t, result.Inserted, 2)
	assert.Equal(t, []string{"h1"}, result.Skipped)
}

func TestStore_QueryBySession_OrdersChronologically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	_, err := s.Insert(ctx, sampleEvent("sess-x", base.Add(2*time.Second)), "qh1")
	require.NoError(t, err)
	_, err = s.Insert(ctx, sampleEvent("sess-x", base), "qh2")
	require.NoError(t, err)

	events, err := s.QueryBySession(ctx, "sess-x")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Timestamp.Before(events[1].Timestamp))
}

func TestStore_ListSessionIDs_ReturnsDistinctSessionsForProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	_, err := s.Insert(ctx, sampleEvent("sess-a", base), "lsid-1")
	require.NoError(t, err)
	_, err = s.Insert(ctx, sampleEvent("sess-a", base.Add(time.Second)), "lsid-2")
	require.NoError(t, err)
	_, err = s.Insert(ctx, sampleEvent("sess-b", base), "lsid-3")
	require.NoError(t, err)

	ids, err := s.ListSessionIDs(ctx, "proj-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sess-a", "sess-b"}, ids)
}

func TestStore_UpdateLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := sampleEvent("sess-1", time.Now().UTC())
	id, err := s.Insert(ctx, e, "hash-lc")
	require.NoError(t, err)

	now := time.Now().UTC()
	err = s.UpdateLifecycle(ctx, id, models.Lifecycle{
		Status: models.LifecycleConsolidated, ConsolidationScore: 0.8,
		LastActivation: now, ActivationCount: 3,
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleConsolidated, got.Lifecycle.Status)
	assert.Equal(t, 3, got.Lifecycle.ActivationCount)
}

func TestStore_WriteAndReadEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := sampleEvent("sess-1", time.Now().UTC())
	id, err := s.Insert(ctx, e, "hash-emb")
	require.NoError(t, err)

	vec := []float64{0.1, 0.2, 0.3}
	require.NoError(t, s.WriteEmbedding(ctx, id, vec))

	got, ok, err := s.Embedding(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestStore_Cursor_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetCursor(ctx, "src-git")
	require.NoError(t, err)
	assert.False(t, ok)

	c, err := models.NewCursor("src-git", map[string]string{"last_commit_sha": "abc123"})
	require.NoError(t, err)
	require.NoError(t, s.SetCursor(ctx, c))

	got, ok, err := s.GetCursor(ctx, "src-git")
	require.NoError(t, err)
	require.True(t, ok)

	var decoded map[string]string
	require.NoError(t, got.Decode(&decoded))
	assert.Equal(t, "abc123", decoded["last_commit_sha"])
}

func TestStore_DeleteCursor_ClearsPersistedPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := models.NewCursor("src-git", map[string]string{"last_commit_sha": "abc123"})
	require.NoError(t, err)
	require.NoError(t, s.SetCursor(ctx, c))

	require.NoError(t, s.DeleteCursor(ctx, "src-git"))

	_, ok, err := s.GetCursor(ctx, "src-git")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_FindDuplicateEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	e1 := sampleEvent("sess-dup", now)
	id1, err := s.Insert(ctx, e1, "dup-src-hash")
	require.NoError(t, err)
	require.NoError(t, s.WriteEmbedding(ctx, id1, []float64{1, 0, 0}))

	e2 := sampleEvent("sess-dup", now.Add(time.Minute))
	id2, err := s.Insert(ctx, e2, "dup-near-hash")
	require.NoError(t, err)
	require.NoError(t, s.WriteEmbedding(ctx, id2, []float64{0.99, 0.01, 0}))

	e3 := sampleEvent("sess-dup", now.Add(2*time.Minute))
	id3, err := s.Insert(ctx, e3, "dup-far-hash")
	require.NoError(t, err)
	require.NoError(t, s.WriteEmbedding(ctx, id3, []float64{0, 0, 1}))

	dupes, err := s.FindDuplicateEvents(ctx, "proj-1", "sess-dup", []float64{1, 0, 0}, 5*time.Minute, now, 0.9)
	require.NoError(t, err)

	var ids []int64
	for _, d := range dupes {
		ids = append(ids, d.ID)
	}
	assert.Contains(t, ids, id1)
	assert.Contains(t, ids, id2)
	assert.NotContains(t, ids, id3)
}

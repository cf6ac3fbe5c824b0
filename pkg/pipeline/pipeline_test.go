package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/database"
	"github.com/athenamem/episodic/pkg/models"
)

func newTestStore(t *testing.T) *database.Store {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	client, err := database.NewClient(ctx, database.Config{
		Host:            host,
		Port:            port.Int(),
		User:            "test",
		Password:        "test",
		Database:        "test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return database.NewStore(client)
}

type fakeEmbedder struct {
	vectors [][]float64
	err     error
	calls   int
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func sampleEvents(n int) []*models.Event {
	now := time.Now().UTC()
	var out []*models.Event
	for i := 0; i < n; i++ {
		out = append(out, &models.Event{
			ProjectID: "proj-1",
			SessionID: "sess-1",
			Timestamp: now.Add(time.Duration(i) * time.Second),
			EventType: models.EventTypeAction,
			Content:   "distinct content " + string(rune('a'+i)),
			Evidence:  models.Evidence{Type: models.EvidenceObserved, Quality: 0.9},
			Lifecycle: models.Lifecycle{Status: models.LifecycleActive},
		})
	}
	return out
}

func TestPipeline_ProcessBatch_InsertsNewEvents(t *testing.T) {
	store := newTestStore(t)
	p := New(*config.DefaultPipelineConfig(), store, nil, nil, nil, nil)

	stats, err := p.ProcessBatch(context.Background(), sampleEvents(3))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Inserted)
	assert.Zero(t, stats.SkippedDuplicate)
	assert.Zero(t, stats.SkippedExisting)
}

func TestPipeline_ProcessBatch_SkipsExistingOnSecondCall(t *testing.T) {
	store := newTestStore(t)
	p := New(*config.DefaultPipelineConfig(), store, nil, nil, nil, nil)

	events := sampleEvents(2)
	_, err := p.ProcessBatch(context.Background(), events)
	require.NoError(t, err)

	// A fresh Pipeline (empty LRU) sees the same content again; stage 3's
	// bulk existence check against the store must still catch it.
	p2 := New(*config.DefaultPipelineConfig(), store, nil, nil, nil, nil)
	stats, err := p2.ProcessBatch(context.Background(), events)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.SkippedExisting)
	assert.Zero(t, stats.Inserted)
}

func TestPipeline_ProcessBatch_DedupsWithinBatchAndLRU(t *testing.T) {
	store := newTestStore(t)
	p := New(*config.DefaultPipelineConfig(), store, nil, nil, nil, nil)

	events := sampleEvents(1)
	duplicated := append(events, events[0].Clone())

	stats, err := p.ProcessBatch(context.Background(), duplicated)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.SkippedDuplicate)

	// The LRU now holds the inserted hash, so the same event in a later
	// batch is caught in memory before the store is consulted.
	stats, err = p.ProcessBatch(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedDuplicate)
	assert.Zero(t, stats.SkippedExisting)
	assert.Zero(t, stats.Inserted)
}

func TestPipeline_ProcessBatch_EmbeddingFailureSoftSkips(t *testing.T) {
	store := newTestStore(t)
	embedder := &fakeEmbedder{err: assert.AnError}
	p := New(*config.DefaultPipelineConfig(), store, embedder, nil, nil, nil)

	stats, err := p.ProcessBatch(context.Background(), sampleEvents(1))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, embedder.calls)
}

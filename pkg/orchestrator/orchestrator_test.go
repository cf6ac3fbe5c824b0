package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
	"github.com/athenamem/episodic/pkg/pipeline"
	"github.com/athenamem/episodic/pkg/sources"
)

// fakeAdapter emits a fixed slice of events then closes, recording its
// cursor as the count of events sent.
type fakeAdapter struct {
	id     string
	events []models.Event

	mu   sync.Mutex
	sent int
}

func (a *fakeAdapter) SourceID() string                   { return a.id }
func (a *fakeAdapter) Type() sources.Type                 { return sources.TypeGit }
func (a *fakeAdapter) SupportsIncremental() bool          { return true }
func (a *fakeAdapter) Validate(ctx context.Context) error { return nil }

func (a *fakeAdapter) Generate(ctx context.Context, cursor *models.Cursor) (<-chan models.Event, <-chan error) {
	out := make(chan models.Event)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		for _, e := range a.events {
			select {
			case out <- e:
				a.mu.Lock()
				a.sent++
				a.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errs
}

func (a *fakeAdapter) Cursor() models.Cursor {
	a.mu.Lock()
	sent := a.sent
	a.mu.Unlock()
	c, _ := models.NewCursor(a.id, map[string]int{"sent": sent})
	return c
}

type failingAdapter struct{ fakeAdapter }

func (a *failingAdapter) Generate(ctx context.Context, cursor *models.Cursor) (<-chan models.Event, <-chan error) {
	out := make(chan models.Event)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		errs <- errors.New("boom")
		close(errs)
	}()
	return out, errs
}

// rateLimitedAdapter fails its first Generate with a rate-limit error and
// succeeds afterwards.
type rateLimitedAdapter struct {
	fakeAdapter
	retryAfter time.Duration

	mu    sync.Mutex
	calls int
}

func (a *rateLimitedAdapter) Generate(ctx context.Context, cursor *models.Cursor) (<-chan models.Event, <-chan error) {
	a.mu.Lock()
	a.calls++
	first := a.calls == 1
	a.mu.Unlock()
	if !first {
		return a.fakeAdapter.Generate(ctx, cursor)
	}
	out := make(chan models.Event)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		errs <- &sources.RateLimitError{RetryAfter: a.retryAfter, Err: errors.New("too many requests")}
		close(errs)
	}()
	return out, errs
}

// permanentAdapter always fails with a non-retryable error.
type permanentAdapter struct {
	fakeAdapter

	mu    sync.Mutex
	calls int
}

func (a *permanentAdapter) Generate(ctx context.Context, cursor *models.Cursor) (<-chan models.Event, <-chan error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	out := make(chan models.Event)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		errs <- sources.Permanent(errors.New("bad credentials"))
		close(errs)
	}()
	return out, errs
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeProcessor) ProcessBatch(ctx context.Context, events []*models.Event) (pipeline.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return pipeline.Stats{}, errors.New("process failed")
	}
	return pipeline.Stats{Total: len(events), Inserted: len(events)}, nil
}

type fakeCursorStore struct {
	mu      sync.Mutex
	cursors map[string]models.Cursor
}

func newFakeCursorStore() *fakeCursorStore {
	return &fakeCursorStore{cursors: make(map[string]models.Cursor)}
}

func (s *fakeCursorStore) GetCursor(ctx context.Context, sourceID string) (models.Cursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[sourceID]
	return c, ok, nil
}

func (s *fakeCursorStore) SetCursor(ctx context.Context, c models.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[c.SourceID] = c
	return nil
}

func testOrchestrator(pl batchProcessor, store cursorStore, adapters map[string]sources.Adapter) *Orchestrator {
	return &Orchestrator{
		cfg: config.OrchestratorConfig{
			BaseBackoff:   time.Millisecond,
			MaxBackoff:    5 * time.Millisecond,
			BackoffFactor: 2.0,
			MaxRetries:    2,
		},
		pipeline: config.PipelineConfig{BatchSize: 2, MaxBatchLatency: 20 * time.Millisecond},
		store:    store,
		pl:       pl,
		adapters: adapters,
		status:   make(map[string]*SyncStatus),
	}
}

func threeEvents() []models.Event {
	now := time.Now().UTC()
	var out []models.Event
	for i := 0; i < 3; i++ {
		out = append(out, models.Event{ProjectID: "p", Timestamp: now, EventType: models.EventTypeAction, Content: "c"})
	}
	return out
}

func TestIngestFromSource_FlushesOnBatchSizeAndRemainder(t *testing.T) {
	adapter := &fakeAdapter{id: "src-1", events: threeEvents()}
	proc := &fakeProcessor{}
	store := newFakeCursorStore()
	o := testOrchestrator(proc, store, map[string]sources.Adapter{"src-1": adapter})

	stats, err := o.IngestFromSource(context.Background(), "src-1")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.EventsGenerated)
	assert.Equal(t, 3, stats.Inserted)
	// batch size 2: one full batch of 2, then the end-of-stream flush of the remaining 1.
	assert.Equal(t, 2, stats.BatchesProcessed)
	assert.Equal(t, 2, proc.calls)
}

func TestIngestFromSource_PersistsCursorAfterFlush(t *testing.T) {
	adapter := &fakeAdapter{id: "src-1", events: threeEvents()}
	proc := &fakeProcessor{}
	store := newFakeCursorStore()
	o := testOrchestrator(proc, store, map[string]sources.Adapter{"src-1": adapter})

	_, err := o.IngestFromSource(context.Background(), "src-1")
	require.NoError(t, err)

	cursor, found, err := store.GetCursor(context.Background(), "src-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "src-1", cursor.SourceID)
}

func TestIngestFromSource_UnknownSourceErrors(t *testing.T) {
	o := testOrchestrator(&fakeProcessor{}, newFakeCursorStore(), map[string]sources.Adapter{})
	_, err := o.IngestFromSource(context.Background(), "missing")
	assert.Error(t, err)
}

func TestIngestFromSource_RetriesOnAdapterError(t *testing.T) {
	adapter := &failingAdapter{fakeAdapter{id: "src-1"}}
	proc := &fakeProcessor{}
	o := testOrchestrator(proc, newFakeCursorStore(), map[string]sources.Adapter{"src-1": adapter})

	stats, err := o.IngestFromSource(context.Background(), "src-1")
	assert.Error(t, err)
	assert.Equal(t, 3, stats.Attempts) // MaxRetries 2: the first attempt plus two retries
}

func TestIngestFromSource_HonorsRateLimitWithoutConsumingRetries(t *testing.T) {
	adapter := &rateLimitedAdapter{
		fakeAdapter: fakeAdapter{id: "src-1", events: threeEvents()},
		retryAfter:  30 * time.Millisecond,
	}
	proc := &fakeProcessor{}
	o := testOrchestrator(proc, newFakeCursorStore(), map[string]sources.Adapter{"src-1": adapter})
	o.cfg.MaxRetries = 0 // rate-limit waits must not need the retry budget

	start := time.Now()
	stats, err := o.IngestFromSource(context.Background(), "src-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 2, stats.Attempts)
	assert.Equal(t, 3, stats.EventsGenerated)
}

func TestIngestFromSource_PermanentErrorSkipsRetries(t *testing.T) {
	adapter := &permanentAdapter{fakeAdapter: fakeAdapter{id: "src-1"}}
	o := testOrchestrator(&fakeProcessor{}, newFakeCursorStore(), map[string]sources.Adapter{"src-1": adapter})

	_, err := o.IngestFromSource(context.Background(), "src-1")
	require.Error(t, err)
	adapter.mu.Lock()
	calls := adapter.calls
	adapter.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestIngestFromSource_FailureCallbackFiresAfterExhaustedRetries(t *testing.T) {
	adapter := &failingAdapter{fakeAdapter{id: "src-1"}}
	o := testOrchestrator(&fakeProcessor{}, newFakeCursorStore(), map[string]sources.Adapter{"src-1": adapter})

	var gotSource string
	var gotErr error
	o.OnSourceFailure(func(sourceID string, err error) {
		gotSource = sourceID
		gotErr = err
	})

	_, err := o.IngestFromSource(context.Background(), "src-1")
	require.Error(t, err)
	assert.Equal(t, "src-1", gotSource)
	assert.Error(t, gotErr)
}

func TestIngestFromSources_IsolatesPerSourceFailure(t *testing.T) {
	good := &fakeAdapter{id: "good", events: threeEvents()}
	bad := &failingAdapter{fakeAdapter{id: "bad"}}
	proc := &fakeProcessor{}
	o := testOrchestrator(proc, newFakeCursorStore(), map[string]sources.Adapter{
		"good": good,
		"bad":  bad,
	})

	results := o.IngestFromSources(context.Background(), []string{"good", "bad"})

	require.Contains(t, results, "good")
	require.Contains(t, results, "bad")
	assert.Equal(t, 3, results["good"].EventsGenerated)
}

func TestStatus_UnknownSourceReturnsNotFound(t *testing.T) {
	o := testOrchestrator(&fakeProcessor{}, newFakeCursorStore(), map[string]sources.Adapter{})
	_, ok := o.Status("never-synced")
	assert.False(t, ok)
}

func TestStatus_ReflectsLastIngestResult(t *testing.T) {
	adapter := &fakeAdapter{id: "src-1", events: threeEvents()}
	o := testOrchestrator(&fakeProcessor{}, newFakeCursorStore(), map[string]sources.Adapter{"src-1": adapter})

	_, err := o.IngestFromSource(context.Background(), "src-1")
	require.NoError(t, err)

	st, ok := o.Status("src-1")
	require.True(t, ok)
	assert.Equal(t, "src-1", st.SourceID)
	assert.Equal(t, 3, st.LastStats.EventsGenerated)
	assert.Empty(t, st.LastError)
	assert.Zero(t, st.Cycles.Cycles, "a manually triggered sync is not a scheduled cycle")
}

func TestStatus_RecordsErrorAfterFailedIngest(t *testing.T) {
	adapter := &failingAdapter{fakeAdapter{id: "src-1"}}
	o := testOrchestrator(&fakeProcessor{}, newFakeCursorStore(), map[string]sources.Adapter{"src-1": adapter})

	_, err := o.IngestFromSource(context.Background(), "src-1")
	require.Error(t, err)

	st, ok := o.Status("src-1")
	require.True(t, ok)
	assert.NotEmpty(t, st.LastError)
}

func TestAddSource_MakesAdapterImmediatelySyncable(t *testing.T) {
	o := testOrchestrator(&fakeProcessor{}, newFakeCursorStore(), map[string]sources.Adapter{})
	o.AddSource("new-src", &fakeAdapter{id: "new-src", events: threeEvents()})

	stats, err := o.IngestFromSource(context.Background(), "new-src")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.EventsGenerated)
	assert.Contains(t, o.SourceIDs(), "new-src")
}

func TestSourceIDs_ListsConfiguredAdapters(t *testing.T) {
	o := testOrchestrator(&fakeProcessor{}, newFakeCursorStore(), map[string]sources.Adapter{
		"a": &fakeAdapter{id: "a"},
		"b": &fakeAdapter{id: "b"},
	})
	assert.ElementsMatch(t, []string{"a", "b"}, o.SourceIDs())
}

func TestParseSchedule_Interval(t *testing.T) {
	sched, err := parseSchedule("5m")
	require.NoError(t, err)
	base := time.Now()
	assert.Equal(t, base.Add(5*time.Minute), sched.next(base))
}

func TestParseSchedule_Days(t *testing.T) {
	sched, err := parseSchedule("1d")
	require.NoError(t, err)
	base := time.Now()
	assert.Equal(t, base.Add(24*time.Hour), sched.next(base))
}

func TestParseSchedule_Cron(t *testing.T) {
	sched, err := parseSchedule("0 */4 * * *")
	require.NoError(t, err)
	base := time.Now()
	assert.True(t, sched.next(base).After(base))
}

func TestParseSchedule_Invalid(t *testing.T) {
	_, err := parseSchedule("not a schedule")
	assert.Error(t, err)
}

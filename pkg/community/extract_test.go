package community

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athenamem/episodic/pkg/models"
)

func codeEvent(project, file, symbol string) *models.Event {
	e := &models.Event{
		ProjectID: project,
		SessionID: "sess-1",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EventType: models.EventTypeFileChange,
		Content:   "edited " + file,
	}
	if file != "" || symbol != "" {
		e.Code = &models.CodeContext{FilePath: file, SymbolName: symbol}
	}
	return e
}

func TestMentions_DedupesAcrossMetadataAndContext(t *testing.T) {
	e := codeEvent("p", "pkg/a/a.go", "Handler")
	e.Context.Files = []string{"pkg/a/a.go", "pkg/b/b.go"}
	e.Context.Branch = "main"

	ms := Mentions(e)
	assert.Equal(t, []Mention{
		{Name: "pkg/a/a.go", Type: "file"},
		{Name: "Handler", Type: "symbol"},
		{Name: "pkg/b/b.go", Type: "file"},
		{Name: "main", Type: "branch"},
	}, ms)
}

func TestMentions_EmptyEventHasNone(t *testing.T) {
	assert.Empty(t, Mentions(&models.Event{}))
}

func TestExtractGraph_CoMentionsBecomeWeightedEdges(t *testing.T) {
	store := newFakeProjectStore()
	store.events["p"] = []*models.Event{
		codeEvent("p", "a.go", "Alpha"),
		codeEvent("p", "a.go", "Alpha"),
		codeEvent("p", "b.go", ""),
	}

	stats, err := ExtractGraph(context.Background(), store, "p")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Events)
	assert.Equal(t, 3, stats.Entities) // a.go, Alpha, b.go
	require.Equal(t, 1, stats.Relations)

	rel := store.relations["p"][0]
	assert.Equal(t, "co_occurs", rel.RelationType)
	assert.Equal(t, 2.0, rel.Weight, "two events co-mention a.go and Alpha")
}

func TestExtractGraph_RerunReplacesInsteadOfAccumulating(t *testing.T) {
	store := newFakeProjectStore()
	store.events["p"] = []*models.Event{codeEvent("p", "a.go", "Alpha")}

	_, err := ExtractGraph(context.Background(), store, "p")
	require.NoError(t, err)
	_, err = ExtractGraph(context.Background(), store, "p")
	require.NoError(t, err)

	require.Len(t, store.relations["p"], 1)
	assert.Equal(t, 1.0, store.relations["p"][0].Weight)
	assert.Len(t, store.entities["p"], 2)
}

package community

import (
	"context"
	"fmt"

	"github.com/athenamem/episodic/pkg/models"
)

// extractionStore narrows *database.Store to the methods the graph rebuild
// calls.
type extractionStore interface {
	QueryNonArchived(ctx context.Context, projectID string) ([]*models.Event, error)
	UpsertEntity(ctx context.Context, e models.Entity) (int64, error)
	ReplaceRelations(ctx context.Context, projectID string, relations []models.Relation) error
}

// Mention is one entity reference carried by an event: a name plus the kind
// of thing it names.
type Mention struct {
	Name string
	Type string
}

// Mentions returns the entity mentions of one event, drawn from its
// structured metadata: code-level references (file, symbol, error, test),
// the context snapshot's files and branch, and the task. Deduplicated,
// original order preserved.
func Mentions(e *models.Event) []Mention {
	var out []Mention
	seen := make(map[Mention]struct{})
	add := func(name, typ string) {
		if name == "" {
			return
		}
		m := Mention{Name: name, Type: typ}
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}

	if e.Code != nil {
		add(e.Code.FilePath, "file")
		add(e.Code.SymbolName, "symbol")
		add(e.Code.ErrorType, "error")
		add(e.Code.TestName, "test")
	}
	for _, f := range e.Context.Files {
		add(f, "file")
	}
	add(e.Context.Branch, "branch")
	add(e.Context.Task, "task")
	return out
}

// ExtractStats summarizes one ExtractGraph pass.
type ExtractStats struct {
	Events    int
	Entities  int
	Relations int
}

// ExtractGraph derives the entity graph for a project from its non-archived
// events: every mention becomes an entity node, and every pair of mentions
// within one event becomes a co-occurrence edge whose weight counts the
// events they appeared in together. The relation set is rebuilt from
// scratch each pass (the graph is derived, recomputable state), so repeated
// extraction never inflates edge weights.
func ExtractGraph(ctx context.Context, store extractionStore, projectID string) (ExtractStats, error) {
	events, err := store.QueryNonArchived(ctx, projectID)
	if err != nil {
		return ExtractStats{}, fmt.Errorf("extract graph: query events: %w", err)
	}

	ids := make(map[Mention]int64)
	type pair struct{ a, b int64 }
	weights := make(map[pair]float64)

	for _, e := range events {
		mentions := Mentions(e)
		eventIDs := make([]int64, 0, len(mentions))
		for _, m := range mentions {
			id, ok := ids[m]
			if !ok {
				id, err = store.UpsertEntity(ctx, models.Entity{
					ProjectID: projectID,
					Name:      m.Name,
					Type:      m.Type,
				})
				if err != nil {
					return ExtractStats{}, fmt.Errorf("extract graph: upsert entity %q: %w", m.Name, err)
				}
				ids[m] = id
			}
			eventIDs = append(eventIDs, id)
		}
		for i := 0; i < len(eventIDs); i++ {
			for j := i + 1; j < len(eventIDs); j++ {
				a, b := eventIDs[i], eventIDs[j]
				if a > b {
					a, b = b, a
				}
				weights[pair{a, b}]++
			}
		}
	}

	relations := make([]models.Relation, 0, len(weights))
	for p, w := range weights {
		relations = append(relations, models.Relation{
			FromEntityID: p.a,
			ToEntityID:   p.b,
			RelationType: "co_occurs",
			Weight:       w,
		})
	}
	if err := store.ReplaceRelations(ctx, projectID, relations); err != nil {
		return ExtractStats{}, fmt.Errorf("extract graph: replace relations: %w", err)
	}

	return ExtractStats{Events: len(events), Entities: len(ids), Relations: len(relations)}, nil
}

package community

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
)

type fakeProjectStore struct {
	projectIDs []string
	events     map[string][]*models.Event
	entities   map[string][]models.Entity
	relations  map[string][]models.Relation
	replaced   map[string]map[int][]models.Community
	nextID     int64
}

func newFakeProjectStore() *fakeProjectStore {
	return &fakeProjectStore{
		events:    map[string][]*models.Event{},
		entities:  map[string][]models.Entity{},
		relations: map[string][]models.Relation{},
		replaced:  map[string]map[int][]models.Community{},
	}
}

func (f *fakeProjectStore) QueryNonArchived(ctx context.Context, projectID string) ([]*models.Event, error) {
	return f.events[projectID], nil
}

func (f *fakeProjectStore) UpsertEntity(ctx context.Context, e models.Entity) (int64, error) {
	for _, existing := range f.entities[e.ProjectID] {
		if existing.Name == e.Name && existing.Type == e.Type {
			return existing.ID, nil
		}
	}
	f.nextID++
	e.ID = f.nextID
	f.entities[e.ProjectID] = append(f.entities[e.ProjectID], e)
	return e.ID, nil
}

func (f *fakeProjectStore) ReplaceRelations(ctx context.Context, projectID string, relations []models.Relation) error {
	f.relations[projectID] = relations
	return nil
}

func (f *fakeProjectStore) ListProjectIDs(ctx context.Context) ([]string, error) {
	return f.projectIDs, nil
}

func (f *fakeProjectStore) ListEntities(ctx context.Context, projectID string) ([]models.Entity, error) {
	return f.entities[projectID], nil
}

func (f *fakeProjectStore) ListRelations(ctx context.Context, projectID string) ([]models.Relation, error) {
	return f.relations[projectID], nil
}

func (f *fakeProjectStore) ReplaceCommunities(ctx context.Context, projectID string, level int, communities []models.Community) error {
	if f.replaced[projectID] == nil {
		f.replaced[projectID] = map[int][]models.Community{}
	}
	f.replaced[projectID][level] = communities
	return nil
}

func TestCompute_PersistsCommunitiesForCliqueGraph(t *testing.T) {
	store := newFakeProjectStore()
	store.projectIDs = []string{"proj-1"}

	var entities []models.Entity
	for i := int64(1); i <= 10; i++ {
		entities = append(entities, models.Entity{ID: i, ProjectID: "proj-1", Name: cliqueEntityName(i)})
	}
	var relations []models.Relation
	addClique := func(start int64) {
		for i := start; i < start+5; i++ {
			for j := i + 1; j < start+5; j++ {
				relations = append(relations, models.Relation{FromEntityID: i, ToEntityID: j, RelationType: "relates_to", Weight: 1})
			}
		}
	}
	addClique(1)
	addClique(6)
	relations = append(relations, models.Relation{FromEntityID: 5, ToEntityID: 6, RelationType: "relates_to", Weight: 1})
	store.entities["proj-1"] = entities
	store.relations["proj-1"] = relations

	cfg := config.CommunityConfig{
		MinCommunitySize: 1, MaxLevels: 1, Resolution: 1.0,
		MaxIterations: 10, MinModularityGain: 0.01, RandomSeed: 7,
	}

	stats, err := Compute(context.Background(), store, "proj-1", cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Levels)
	assert.Len(t, store.replaced["proj-1"][0], 2)
}

func TestCompute_NoEntitiesIsNoop(t *testing.T) {
	store := newFakeProjectStore()
	cfg := config.CommunityConfig{MinCommunitySize: 1, MaxLevels: 1, Resolution: 1.0, MaxIterations: 10}

	stats, err := Compute(context.Background(), store, "empty-proj", cfg)
	require.NoError(t, err)
	assert.Zero(t, stats.Levels)
	assert.Empty(t, store.replaced)
}

func TestService_SweepOnceCoversEveryProject(t *testing.T) {
	store := newFakeProjectStore()
	store.projectIDs = []string{"proj-a", "proj-b"}
	store.entities["proj-a"] = []models.Entity{{ID: 1, ProjectID: "proj-a", Name: "x"}}
	store.entities["proj-b"] = []models.Entity{{ID: 2, ProjectID: "proj-b", Name: "y"}}

	cfg := config.CommunityConfig{MinCommunitySize: 1, MaxLevels: 1, Resolution: 1.0, MaxIterations: 10}
	svc := NewService(cfg, store)

	svc.sweepOnce(context.Background())

	assert.Contains(t, store.replaced, "proj-a")
	assert.Contains(t, store.replaced, "proj-b")
}

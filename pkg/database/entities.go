package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/athenamem/episodic/pkg/models"
)

// UpsertEntity inserts an entity or, if (project_id, name, type) already
// exists, returns the existing row's id unchanged. Entities are nodes in
// the derived community graph and carry no revision history of their own.
func (s *Store) UpsertEntity(ctx context.Context, e models.Entity) (int64, error) {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return 0, fmt.Errorf("marshal entity attributes: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO entities (project_id, name, type, attributes_json)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, name, type) DO UPDATE SET attributes_json = entities.attributes_json
		RETURNING id`,
		e.ProjectID, e.Name, e.Type, attrs).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert entity: %w", err)
	}
	return id, nil
}

// ListEntities returns every entity extracted for a project.
func (s *Store) ListEntities(ctx context.Context, projectID string) ([]models.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, type, attributes_json FROM entities WHERE project_id = $1`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		var e models.Entity
		var raw []byte
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Name, &e.Type, &raw); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &e.Attributes)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertRelation inserts a typed directed edge between two entities, or
// adds the new weight to the existing one if the (from, to, relation_type) triple already
// exists — relations accumulate evidence rather than duplicate rows.
func (s *Store) UpsertRelation(ctx context.Context, r models.Relation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_relations (from_entity_id, to_entity_id, relation_type, weight)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (from_entity_id, to_entity_id, relation_type)
		DO UPDATE SET weight = entity_relations.weight + EXCLUDED.weight`,
		r.FromEntityID, r.ToEntityID, r.RelationType, r.Weight)
	if err != nil {
		return fmt.Errorf("upsert relation: %w", err)
	}
	return nil
}

// ReplaceRelations atomically swaps a project's relation set for the
// freshly extracted one. The graph is derived, recomputable state, so a
// clean replace keeps repeated extraction passes from inflating edge
// weights.
func (s *Store) ReplaceRelations(ctx context.Context, projectID string, relations []models.Relation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace relations: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM entity_relations r
		USING entities e
		WHERE e.id = r.from_entity_id AND e.project_id = $1`, projectID); err != nil {
		return fmt.Errorf("delete stale relations: %w", err)
	}
	for _, r := range relations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entity_relations (from_entity_id, to_entity_id, relation_type, weight)
			VALUES ($1, $2, $3, $4)`,
			r.FromEntityID, r.ToEntityID, r.RelationType, r.Weight); err != nil {
			return fmt.Errorf("insert relation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace relations: %w", err)
	}
	return nil
}

// ListRelations returns every relation whose from-entity belongs to
// projectID.
func (s *Store) ListRelations(ctx context.Context, projectID string) ([]models.Relation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.from_entity_id, r.to_entity_id, r.relation_type, r.weight
		FROM entity_relations r
		JOIN entities e ON e.id = r.from_entity_id
		WHERE e.project_id = $1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()

	var out []models.Relation
	for rows.Next() {
		var r models.Relation
		if err := rows.Scan(&r.FromEntityID, &r.ToEntityID, &r.RelationType, &r.Weight); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteOrphanedEntities removes entity rows with no relation in either
// direction. Graph extraction only ever upserts, so an entity whose every
// co-mention edge was superseded by later rebuilds lingers as a zero-degree
// node; pruning keeps the clustering node set equal to the connected graph.
func (s *Store) DeleteOrphanedEntities(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM entities e
		WHERE NOT EXISTS (
			SELECT 1 FROM entity_relations r
			WHERE r.from_entity_id = e.id OR r.to_entity_id = e.id
		)`)
	if err != nil {
		return 0, fmt.Errorf("delete orphaned entities: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete orphaned entities: rows affected: %w", err)
	}
	return n, nil
}

// ReplaceCommunities atomically drops every community previously computed
// for (projectID, level) and inserts the freshly computed set — community
// detection is recomputable from the entity graph, so there is no
// incremental-update path to preserve, only a clean replace.
func (s *Store) ReplaceCommunities(ctx context.Context, projectID string, level int, communities []models.Community) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace communities: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM communities WHERE project_id = $1 AND level = $2`, projectID, level); err != nil {
		return fmt.Errorf("delete stale communities: %w", err)
	}

	for _, c := range communities {
		idsJSON, err := json.Marshal(emptyIfNil(c.EntityIDs))
		if err != nil {
			return fmt.Errorf("marshal community entity ids: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO communities
				(project_id, level, entity_ids_json, density, size, internal_edges, external_edges, summary)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			projectID, level, idsJSON, c.Density, c.Size, c.InternalEdges, c.ExternalEdges, c.Summary); err != nil {
			return fmt.Errorf("insert community: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace communities: %w", err)
	}
	return nil
}

// ListCommunities returns every community at the given level for a
// project, with EntityNames populated by joining back to entities.
func (s *Store) ListCommunities(ctx context.Context, projectID string, level int) ([]models.Community, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, level, entity_ids_json, density, size, internal_edges, external_edges, summary
		FROM communities WHERE project_id = $1 AND level = $2 ORDER BY id`,
		projectID, level)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	defer rows.Close()

	var out []models.Community
	for rows.Next() {
		var c models.Community
		var raw []byte
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Level, &raw, &c.Density, &c.Size, &c.InternalEdges, &c.ExternalEdges, &c.Summary); err != nil {
			return nil, fmt.Errorf("scan community: %w", err)
		}
		_ = json.Unmarshal(raw, &c.EntityIDs)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.populateEntityNames(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) populateEntityNames(ctx context.Context, communities []models.Community) error {
	idSet := map[int64]struct{}{}
	for _, c := range communities {
		for _, id := range c.EntityIDs {
			idSet[id] = struct{}{}
		}
	}
	if len(idSet) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM entities WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("load entity names: %w", err)
	}
	defer rows.Close()

	names := make(map[int64]string, len(ids))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("scan entity name: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range communities {
		communities[i].EntityNames = make([]string, 0, len(communities[i].EntityIDs))
		for _, id := range communities[i].EntityIDs {
			communities[i].EntityNames = append(communities[i].EntityNames, names[id])
		}
	}
	return nil
}

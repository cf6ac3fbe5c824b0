package database

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/athenamem/episodic/pkg/models"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("database: not found")

// ErrDuplicateHash is returned by Insert when content_hash already exists.
// Callers (the pipeline's persist stage) treat this as "already ingested"
// rather than a failure.
var ErrDuplicateHash = errors.New("database: duplicate content hash")

// Store implements the event-store contract over the
// connection pool managed by Client.
type Store struct {
	db *stdsql.DB
}

// NewStore builds a Store from an open Client.
func NewStore(c *Client) *Store { return &Store{db: c.db} }

const eventColumns = `
	id, project_id, session_id, "timestamp", event_type, code_event_type, outcome,
	content, context_cwd, context_files_json, context_task, context_phase, context_branch,
	duration_ms, files_changed, lines_added, lines_deleted,
	learned, confidence,
	evidence_type, source_id, evidence_quality,
	lifecycle_status, consolidation_score, last_activation, activation_count,
	importance_score, actionability_score, context_completeness_score, has_next_step, has_blocker, required_decisions_json,
	file_path, symbol_name, symbol_type, language, diff, git_commit, git_author,
	test_name, test_passed, error_type, stack_trace, performance_metrics_json, code_quality_score,
	surprise_score, surprise_normalized, ingest_source_id
`

// SearchHashes reports, for each hash in hashes, the event ID already
// carrying it (bulk existence lookup before insert).
func (s *Store) SearchHashes(ctx context.Context, hashes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT content_hash, event_id FROM event_hashes WHERE content_hash = ANY($1)`,
		hashes)
	if err != nil {
		return nil, fmt.Errorf("search hashes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h string
		var id int64
		if err := rows.Scan(&h, &id); err != nil {
			return nil, fmt.Errorf("search hashes scan: %w", err)
		}
		out[h] = id
	}
	return out, rows.Err()
}

// Insert persists a single event transactionally alongside its content hash
// row. Returns ErrDuplicateHash if hash already exists (unique violation).
func (s *Store) Insert(ctx context.Context, e *models.Event, hash string) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	id, err = insertEventTx(ctx, tx, e)
	if err != nil {
		return 0, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO event_hashes (event_id, content_hash) VALUES ($1, $2)`, id, hash); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateHash
		}
		return 0, fmt.Errorf("insert: content hash: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert: commit: %w", err)
	}
	return id, nil
}

// BatchInsertItem pairs an event with its precomputed content hash.
type BatchInsertItem struct {
	Event *models.Event
	Hash  string
}

// BatchInsertResult reports per-item outcomes of a BatchInsert call.
type BatchInsertResult struct {
	Inserted []int64
	Skipped  []string // hashes skipped as duplicates within this batch or the store
}

// BatchInsert persists a batch of events in a single transaction (the
// pipeline's persist stage). An item whose hash collides with an already-committed row,
// or with another item earlier in the same batch, is skipped rather than
// aborting the whole batch.
func (s *Store) BatchInsert(ctx context.Context, items []BatchInsertItem) (result BatchInsertResult, err error) {
	if len(items) == 0 {
		return result, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("batch insert: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if seen[item.Hash] {
			result.Skipped = append(result.Skipped, item.Hash)
			continue
		}

		// A savepoint per item lets a hash collision (the row already
		// exists, or a concurrent inserter beat us to it) undo just this
		// item's event row instead of aborting or orphaning the batch.
		savepoint := fmt.Sprintf("batch_item_%d", i)
		if _, spErr := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); spErr != nil {
			err = fmt.Errorf("batch insert: savepoint: %w", spErr)
			return result, err
		}

		id, insErr := insertEventTx(ctx, tx, item.Event)
		if insErr != nil {
			err = insErr
			return result, err
		}
		if _, insErr = tx.ExecContext(ctx,
			`INSERT INTO event_hashes (event_id, content_hash) VALUES ($1, $2)`, id, item.Hash); insErr != nil {
			if isUniqueViolation(insErr) {
				if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
					err = fmt.Errorf("batch insert: rollback to savepoint: %w", rbErr)
					return result, err
				}
				result.Skipped = append(result.Skipped, item.Hash)
				continue
			}
			err = fmt.Errorf("batch insert: content hash: %w", insErr)
			return result, err
		}
		if _, relErr := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); relErr != nil {
			err = fmt.Errorf("batch insert: release savepoint: %w", relErr)
			return result, err
		}
		seen[item.Hash] = true
		result.Inserted = append(result.Inserted, id)
	}

	if err = tx.Commit(); err != nil {
		return result, fmt.Errorf("batch insert: commit: %w", err)
	}
	return result, nil
}

func insertEventTx(ctx context.Context, tx *stdsql.Tx, e *models.Event) (int64, error) {
	filesJSON, err := json.Marshal(emptyIfNil(e.Context.Files))
	if err != nil {
		return 0, fmt.Errorf("marshal context files: %w", err)
	}
	decisionsJSON, err := json.Marshal(emptyIfNil(e.WorkingMemory.RequiredDecisions))
	if err != nil {
		return 0, fmt.Errorf("marshal required decisions: %w", err)
	}

	var filePath, symbolName, symbolType, language, diff, gitCommit, gitAuthor string
	var testName, errorType, stackTrace string
	var testPassed *bool
	var codeQuality *float64
	perfJSON := []byte(`{}`)
	if e.Code != nil {
		filePath, symbolName, symbolType, language = e.Code.FilePath, e.Code.SymbolName, e.Code.SymbolType, e.Code.Language
		diff, gitCommit, gitAuthor = e.Code.Diff, e.Code.GitCommit, e.Code.GitAuthor
		testName, errorType, stackTrace = e.Code.TestName, e.Code.ErrorType, e.Code.StackTrace
		testPassed = e.Code.TestPassed
		codeQuality = e.Code.CodeQualityScore
		if e.Code.PerformanceMetrics != nil {
			if b, merr := json.Marshal(e.Code.PerformanceMetrics); merr == nil {
				perfJSON = b
			}
		}
	}

	var lastActivation *time.Time
	if !e.Lifecycle.LastActivation.IsZero() {
		lastActivation = &e.Lifecycle.LastActivation
	}

	var codeEventType, outcome *string
	if e.CodeEventType != nil {
		v := string(*e.CodeEventType)
		codeEventType = &v
	}
	if e.Outcome != nil {
		v := string(*e.Outcome)
		outcome = &v
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO events (
			project_id, session_id, "timestamp", event_type, code_event_type, outcome,
			content, context_cwd, context_files_json, context_task, context_phase, context_branch,
			duration_ms, files_changed, lines_added, lines_deleted,
			learned, confidence,
			evidence_type, source_id, evidence_quality,
			lifecycle_status, consolidation_score, last_activation, activation_count,
			importance_score, actionability_score, context_completeness_score, has_next_step, has_blocker, required_decisions_json,
			file_path, symbol_name, symbol_type, language, diff, git_commit, git_author,
			test_name, test_passed, error_type, stack_trace, performance_metrics_json, code_quality_score,
			ingest_source_id
		) VALUES (
			$1,$2,$3,$4,$5,$6,
			$7,$8,$9,$10,$11,$12,
			$13,$14,$15,$16,
			$17,$18,
			$19,$20,$21,
			$22,$23,$24,$25,
			$26,$27,$28,$29,$30,$31,
			$32,$33,$34,$35,$36,$37,$38,
			$39,$40,$41,$42,$43,$44,
			$45
		) RETURNING id`,
		e.ProjectID, e.SessionID, e.Timestamp.UTC(), string(e.EventType), codeEventType, outcome,
		e.Content, e.Context.CWD, filesJSON, e.Context.Task, e.Context.Phase, e.Context.Branch,
		e.Metrics.DurationMS, e.Metrics.FilesChanged, e.Metrics.LinesAdded, e.Metrics.LinesDeleted,
		e.Learned, e.Confidence,
		string(e.Evidence.Type), e.Evidence.SourceID, e.Evidence.Quality,
		string(e.Lifecycle.Status), e.Lifecycle.ConsolidationScore, lastActivation, e.Lifecycle.ActivationCount,
		e.WorkingMemory.ImportanceScore, e.WorkingMemory.ActionabilityScore, e.WorkingMemory.ContextCompletenessScore,
		e.WorkingMemory.HasNextStep, e.WorkingMemory.HasBlocker, decisionsJSON,
		filePath, symbolName, symbolType, language, diff, gitCommit, gitAuthor,
		testName, testPassed, errorType, stackTrace, perfJSON, codeQuality,
		e.IngestSourceID,
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return id, nil
}

// Get fetches a single event by ID.
func (s *Store) Get(ctx context.Context, id int64) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// QueryByTime returns events for a project within [from, to), newest first.
func (s *Store) QueryByTime(ctx context.Context, projectID string, from, to time.Time, limit int) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE project_id = $1 AND "timestamp" >= $2 AND "timestamp" < $3
		 ORDER BY "timestamp" DESC LIMIT $4`,
		projectID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query by time: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// QueryBySession returns all events for a session in chronological order.
func (s *Store) QueryBySession(ctx context.Context, sessionID string) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE session_id = $1 ORDER BY "timestamp" ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query by session: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// QueryByType returns events of a given type for a project, newest first.
func (s *Store) QueryByType(ctx context.Context, projectID string, eventType models.EventType, limit int) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE project_id = $1 AND event_type = $2
		 ORDER BY "timestamp" DESC LIMIT $3`, projectID, string(eventType), limit)
	if err != nil {
		return nil, fmt.Errorf("query by type: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListProjectIDs returns the distinct project_id values with at least one
// non-archived event, so per-project sweepers (lifecycle, segmentation,
// community) know which projects to iterate without a caller-supplied list.
func (s *Store) ListProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT project_id FROM events WHERE lifecycle_status != $1 ORDER BY project_id`,
		string(models.LifecycleArchived))
	if err != nil {
		return nil, fmt.Errorf("list project ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list project ids: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListSessionIDs returns every distinct session_id for a project, so the
// segmentation sweeper can re-segment each session on every pass.
func (s *Store) ListSessionIDs(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT session_id FROM events WHERE project_id = $1 ORDER BY session_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list session ids: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// QueryNonArchived returns every event for a project not already in the
// terminal archived tier (active, session, and consolidated), oldest
// first — the candidate set the lifecycle sweeper evaluates each pass.
func (s *Store) QueryNonArchived(ctx context.Context, projectID string) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE project_id = $1 AND lifecycle_status != $2
		 ORDER BY "timestamp" ASC`,
		projectID, string(models.LifecycleArchived))
	if err != nil {
		return nil, fmt.Errorf("query non-archived: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// QueryByLifecycleStatus returns up to limit events in a given lifecycle
// status for a project, oldest first.
func (s *Store) QueryByLifecycleStatus(ctx context.Context, projectID string, status models.LifecycleStatus, limit int) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE project_id = $1 AND lifecycle_status = $2
		 ORDER BY "timestamp" ASC LIMIT $3`, projectID, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("query by lifecycle status: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// UpdateLifecycle writes back the lifecycle fields mutated by the activation
// and consolidation sweeps. Does not touch any hashed field.
func (s *Store) UpdateLifecycle(ctx context.Context, id int64, lc models.Lifecycle) error {
	var lastActivation *time.Time
	if !lc.LastActivation.IsZero() {
		lastActivation = &lc.LastActivation
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET lifecycle_status = $1, consolidation_score = $2,
		 last_activation = $3, activation_count = $4 WHERE id = $5`,
		string(lc.Status), lc.ConsolidationScore, lastActivation, lc.ActivationCount, id)
	if err != nil {
		return fmt.Errorf("update lifecycle: %w", err)
	}
	return requireOneRow(res)
}

// UpdateSurprise writes back the segmentation surprise score for an
// already-persisted event.
func (s *Store) UpdateSurprise(ctx context.Context, id int64, score, normalized float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET surprise_score = $1, surprise_normalized = $2 WHERE id = $3`,
		score, normalized, id)
	if err != nil {
		return fmt.Errorf("update surprise: %w", err)
	}
	return requireOneRow(res)
}

// WriteEmbedding stores (or replaces) the enrichment-stage embedding for an
// event.
func (s *Store) WriteEmbedding(ctx context.Context, eventID int64, embedding []float64) error {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO event_embeddings (event_id, embedding) VALUES ($1, $2)
		 ON CONFLICT (event_id) DO UPDATE SET embedding = EXCLUDED.embedding`,
		eventID, raw)
	if err != nil {
		return fmt.Errorf("write embedding: %w", err)
	}
	return nil
}

// Embedding loads the embedding previously written for an event, if any.
func (s *Store) Embedding(ctx context.Context, eventID int64) ([]float64, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding FROM event_embeddings WHERE event_id = $1`, eventID).Scan(&raw)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load embedding: %w", err)
	}
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false, fmt.Errorf("unmarshal embedding: %w", err)
	}
	return vec, true, nil
}

// EventsMissingEmbeddings returns non-archived events with no row in the
// embedding side table, oldest first. This is the candidate set for the
// maintenance backfill job: the pipeline's enrichment stage soft-skips when
// the embedding collaborator is down, and these are the rows it skipped.
func (s *Store) EventsMissingEmbeddings(ctx context.Context, limit int) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 LEFT JOIN event_embeddings em ON em.event_id = events.id
		 WHERE em.event_id IS NULL AND lifecycle_status != $1
		 ORDER BY id ASC LIMIT $2`,
		string(models.LifecycleArchived), limit)
	if err != nil {
		return nil, fmt.Errorf("events missing embeddings: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// FindDuplicateEvents performs the near-duplicate search: cosine similarity
// over embeddings within a time window, for events already carrying an
// embedding. This is additive to, not a replacement for, exact-hash dedup in
// the pipeline's dedup/persist stages.
func (s *Store) FindDuplicateEvents(ctx context.Context, projectID, sessionID string, embedding []float64, window time.Duration, near time.Time, threshold float64) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`, em.embedding
		FROM events JOIN event_embeddings em ON em.event_id = events.id
		WHERE project_id = $1 AND session_id = $2
		  AND "timestamp" BETWEEN $3 AND $4`,
		projectID, sessionID, near.Add(-window).UTC(), near.Add(window).UTC())
	if err != nil {
		return nil, fmt.Errorf("find duplicate events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		e, raw, err := scanEventWithEmbeddingRaw(rows)
		if err != nil {
			return nil, err
		}
		var vec []float64
		if err := json.Unmarshal(raw, &vec); err != nil {
			continue
		}
		if cosineSimilarity(embedding, vec) >= threshold {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Cursor lookups (orchestrator-owned resumable sync state).

// GetCursor returns the persisted cursor for a source, or (false, nil) if
// none has been written yet.
func (s *Store) GetCursor(ctx context.Context, sourceID string) (models.Cursor, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor_json FROM source_cursors WHERE source_id = $1`, sourceID).Scan(&raw)
	if errors.Is(err, stdsql.ErrNoRows) {
		return models.Cursor{}, false, nil
	}
	if err != nil {
		return models.Cursor{}, false, fmt.Errorf("get cursor: %w", err)
	}
	return models.Cursor{SourceID: sourceID, Raw: raw}, true, nil
}

// SetCursor upserts a source's cursor. Called only after a source's batch
// has been durably persisted, per the crash-consistency rule.
func (s *Store) SetCursor(ctx context.Context, c models.Cursor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_cursors (source_id, cursor_json, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (source_id) DO UPDATE SET cursor_json = EXCLUDED.cursor_json, updated_at = now()`,
		c.SourceID, []byte(c.Raw))
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// DeleteCursor removes a source's persisted cursor, so its next sync starts
// a fresh full resync rather than resuming — the operational surface's
// "reset source" operation.
func (s *Store) DeleteCursor(ctx context.Context, sourceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM source_cursors WHERE source_id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return nil
}

func scanEvent(row *stdsql.Row) (*models.Event, error) {
	e := &models.Event{}
	var codeEventType, outcome *string
	var filePath, symbolName, symbolType, language, diff, gitCommit, gitAuthor string
	var testName, errorType, stackTrace string
	var testPassed *bool
	var codeQuality *float64
	var surpriseScore, surpriseNormalized *float64
	var lastActivation *time.Time
	var filesJSON, decisionsJSON, perfJSON []byte

	err := row.Scan(
		&e.ID, &e.ProjectID, &e.SessionID, &e.Timestamp, &e.EventType, &codeEventType, &outcome,
		&e.Content, &e.Context.CWD, &filesJSON, &e.Context.Task, &e.Context.Phase, &e.Context.Branch,
		&e.Metrics.DurationMS, &e.Metrics.FilesChanged, &e.Metrics.LinesAdded, &e.Metrics.LinesDeleted,
		&e.Learned, &e.Confidence,
		&e.Evidence.Type, &e.Evidence.SourceID, &e.Evidence.Quality,
		&e.Lifecycle.Status, &e.Lifecycle.ConsolidationScore, &lastActivation, &e.Lifecycle.ActivationCount,
		&e.WorkingMemory.ImportanceScore, &e.WorkingMemory.ActionabilityScore, &e.WorkingMemory.ContextCompletenessScore,
		&e.WorkingMemory.HasNextStep, &e.WorkingMemory.HasBlocker, &decisionsJSON,
		&filePath, &symbolName, &symbolType, &language, &diff, &gitCommit, &gitAuthor,
		&testName, &testPassed, &errorType, &stackTrace, &perfJSON, &codeQuality,
		&surpriseScore, &surpriseNormalized, &e.IngestSourceID,
	)
	if err != nil {
		return nil, err
	}
	return finishScan(e, codeEventType, outcome, filesJSON, decisionsJSON, perfJSON,
		filePath, symbolName, symbolType, language, diff, gitCommit, gitAuthor,
		testName, errorType, stackTrace, testPassed, codeQuality, lastActivation), nil
}

func scanEvents(rows *stdsql.Rows) ([]*models.Event, error) {
	var out []*models.Event
	for rows.Next() {
		e, _, err := scanEventWithEmbeddingRaw(rowsOnlyScanner{rows})
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Rows and a *sql.Row-compatible
// wrapper, letting scanEventWithEmbeddingRaw serve both QueryContext (no
// trailing embedding column) and FindDuplicateEvents (trailing embedding
// column) call sites.
type rowScanner interface {
	Scan(dest ...any) error
}

type rowsOnlyScanner struct{ rows *stdsql.Rows }

func (r rowsOnlyScanner) Scan(dest ...any) error { return r.rows.Scan(dest...) }

func scanEventWithEmbeddingRaw(rs rowScanner) (*models.Event, []byte, error) {
	e := &models.Event{}
	var codeEventType, outcome *string
	var filePath, symbolName, symbolType, language, diff, gitCommit, gitAuthor string
	var testName, errorType, stackTrace string
	var testPassed *bool
	var codeQuality *float64
	var surpriseScore, surpriseNormalized *float64
	var lastActivation *time.Time
	var filesJSON, decisionsJSON, perfJSON []byte
	var embeddingRaw []byte

	dest := []any{
		&e.ID, &e.ProjectID, &e.SessionID, &e.Timestamp, &e.EventType, &codeEventType, &outcome,
		&e.Content, &e.Context.CWD, &filesJSON, &e.Context.Task, &e.Context.Phase, &e.Context.Branch,
		&e.Metrics.DurationMS, &e.Metrics.FilesChanged, &e.Metrics.LinesAdded, &e.Metrics.LinesDeleted,
		&e.Learned, &e.Confidence,
		&e.Evidence.Type, &e.Evidence.SourceID, &e.Evidence.Quality,
		&e.Lifecycle.Status, &e.Lifecycle.ConsolidationScore, &lastActivation, &e.Lifecycle.ActivationCount,
		&e.WorkingMemory.ImportanceScore, &e.WorkingMemory.ActionabilityScore, &e.WorkingMemory.ContextCompletenessScore,
		&e.WorkingMemory.HasNextStep, &e.WorkingMemory.HasBlocker, &decisionsJSON,
		&filePath, &symbolName, &symbolType, &language, &diff, &gitCommit, &gitAuthor,
		&testName, &testPassed, &errorType, &stackTrace, &perfJSON, &codeQuality,
		&surpriseScore, &surpriseNormalized, &e.IngestSourceID,
	}
	if _, isEmbedded := rs.(rowsOnlyScanner); !isEmbedded {
		dest = append(dest, &embeddingRaw)
	}
	if err := rs.Scan(dest...); err != nil {
		return nil, nil, err
	}
	return finishScan(e, codeEventType, outcome, filesJSON, decisionsJSON, perfJSON,
		filePath, symbolName, symbolType, language, diff, gitCommit, gitAuthor,
		testName, errorType, stackTrace, testPassed, codeQuality, lastActivation), embeddingRaw, nil
}

func finishScan(
	e *models.Event,
	codeEventType, outcome *string,
	filesJSON, decisionsJSON, perfJSON []byte,
	filePath, symbolName, symbolType, language, diff, gitCommit, gitAuthor string,
	testName, errorType, stackTrace string,
	testPassed *bool, codeQuality *float64, lastActivation *time.Time,
) *models.Event {
	if codeEventType != nil {
		v := models.CodeEventType(*codeEventType)
		e.CodeEventType = &v
	}
	if outcome != nil {
		v := models.Outcome(*outcome)
		e.Outcome = &v
	}
	if !e.EventType.Valid() {
		e.EventType = ""
	}
	_ = json.Unmarshal(filesJSON, &e.Context.Files)
	_ = json.Unmarshal(decisionsJSON, &e.WorkingMemory.RequiredDecisions)

	if filePath != "" || symbolName != "" || language != "" || diff != "" || testName != "" || errorType != "" {
		code := &models.CodeContext{
			FilePath: filePath, SymbolName: symbolName, SymbolType: symbolType, Language: language,
			Diff: diff, GitCommit: gitCommit, GitAuthor: gitAuthor,
			TestName: testName, TestPassed: testPassed,
			ErrorType: errorType, StackTrace: stackTrace, CodeQualityScore: codeQuality,
		}
		var metrics map[string]float64
		_ = json.Unmarshal(perfJSON, &metrics)
		code.PerformanceMetrics = metrics
		e.Code = code
	}
	if lastActivation != nil {
		e.Lifecycle.LastActivation = *lastActivation
	}
	return e
}

func requireOneRow(res stdsql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func isUniqueViolation(err error) bool {
	// pgx/v5's stdlib driver surfaces *pgconn.PgError; checking the SQLSTATE
	// string avoids importing pgconn here just for the constant.
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

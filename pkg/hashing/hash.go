// Package hashing implements the deterministic content fingerprint used for
// event identity and deduplication. It is pure: no I/O, no shared state,
// safe for concurrent use.
//
// Canonicalization relies on encoding/json's documented guarantee that
// map[string]any keys are emitted in sorted order — this gives us the
// "keys sorted lexicographically at every depth" requirement for free on
// nested maps, without hand-rolling a JSON writer. No library in the
// example pack offers RFC 8785-style JSON canonicalization (none of the
// retrieved repos serialize for hash-identity purposes), so the stdlib
// encoder is used directly; see DESIGN.md.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/athenamem/episodic/pkg/models"
)

// timeLayout is ISO-8601 with microsecond precision in UTC.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Hash computes the hex-encoded SHA-256 digest of the canonical JSON
// document built from event's hashed fields. Deterministic across
// processes: it does not depend on map iteration order, pointer identity,
// or the event's assigned ID/lifecycle state.
func Hash(e *models.Event) string {
	doc := canonicalDocument(e)
	// encoding/json sorts map[string]any keys at every depth, and formats
	// using a version-stable algorithm for the float64 values that appear
	// here (confidence, evidence_quality, code_quality_score) — the values
	// in practice are validated into [0,1] by models.NewEvent, so we never
	// hit exponent-heavy formatting that could drift between encoders.
	raw, err := json.Marshal(doc)
	if err != nil {
		// canonicalDocument only ever produces JSON-safe primitives, maps,
		// and slices; a Marshal failure here means a programming error, not
		// a runtime condition callers can recover from.
		panic("hashing: canonical document failed to marshal: " + err.Error())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// canonicalDocument builds the H-field map per the H-annotations.
// Optional fields that are absent are present as explicit `null` rather than
// omitted — an event missing a field and an event whose field equals the
// zero value have different hashes, so callers must set fields deliberately.
func canonicalDocument(e *models.Event) map[string]any {
	doc := map[string]any{
		"project_id": e.ProjectID,
		"session_id": e.SessionID,
		"timestamp":  e.Timestamp.UTC().Format(timeLayout),

		"event_type":      string(e.EventType),
		"code_event_type": nullableString(strPtr(e.CodeEventType)),
		"outcome":         nullableString(strPtr(e.Outcome)),

		"content":    e.Content,
		"learned":    e.Learned,
		"confidence": e.Confidence,

		"context": map[string]any{
			"cwd":    e.Context.CWD,
			"files":  filesOrEmpty(e.Context.Files),
			"task":   e.Context.Task,
			"phase":  e.Context.Phase,
			"branch": e.Context.Branch,
		},

		"duration_ms":   e.Metrics.DurationMS,
		"files_changed": e.Metrics.FilesChanged,
		"lines_added":   e.Metrics.LinesAdded,
		"lines_deleted": e.Metrics.LinesDeleted,

		"code": codeDocument(e.Code),

		"evidence_type":    string(e.Evidence.Type),
		"source_id":        e.Evidence.SourceID,
		"evidence_quality": e.Evidence.Quality,

		"required_decisions": stringsOrEmpty(e.WorkingMemory.RequiredDecisions),
	}
	return doc
}

func codeDocument(c *models.CodeContext) any {
	if c == nil {
		return nil
	}
	var testPassed any
	if c.TestPassed != nil {
		testPassed = *c.TestPassed
	}
	var qualityScore any
	if c.CodeQualityScore != nil {
		qualityScore = *c.CodeQualityScore
	}
	return map[string]any{
		"file_path":           c.FilePath,
		"symbol_name":         c.SymbolName,
		"symbol_type":         c.SymbolType,
		"language":            c.Language,
		"diff":                c.Diff,
		"git_commit":          c.GitCommit,
		"git_author":          c.GitAuthor,
		"test_name":           c.TestName,
		"test_passed":         testPassed,
		"error_type":          c.ErrorType,
		"stack_trace":         c.StackTrace,
		"performance_metrics": sortedFloatMap(c.PerformanceMetrics),
		"code_quality_score":  qualityScore,
	}
}

func sortedFloatMap(m map[string]float64) any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func filesOrEmpty(files []string) []string {
	if files == nil {
		return []string{}
	}
	return files
}

func stringsOrEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func strPtr[T ~string](p *T) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

// SortStrings is exposed for callers (e.g. segmentation's entity-kind sets)
// that need the same deterministic ordering discipline as the hasher.
func SortStrings(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

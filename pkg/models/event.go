// Package models defines the data types shared across the memory substrate:
// the Event record, its supporting Cursor/Episode/Entity/Relation/Community
// types, and the enumerations each field is drawn from.
package models

import "time"

// CodeContext carries the code-aware fields. It is nil for events that have
// no code-specific payload (e.g. a plain conversation turn): rather than
// dozens of loose optional fields on Event, the code-specific group lives
// behind one pointer.
type CodeContext struct {
	FilePath           string             `json:"file_path,omitempty"`
	SymbolName         string             `json:"symbol_name,omitempty"`
	SymbolType         string             `json:"symbol_type,omitempty"`
	Language           string             `json:"language,omitempty"`
	Diff               string             `json:"diff,omitempty"`
	GitCommit          string             `json:"git_commit,omitempty"`
	GitAuthor          string             `json:"git_author,omitempty"`
	TestName           string             `json:"test_name,omitempty"`
	TestPassed         *bool              `json:"test_passed,omitempty"`
	ErrorType          string             `json:"error_type,omitempty"`
	StackTrace         string             `json:"stack_trace,omitempty"`
	PerformanceMetrics map[string]float64 `json:"performance_metrics,omitempty"`
	CodeQualityScore   *float64           `json:"code_quality_score,omitempty"`
}

// EventContext is the "context snapshot" group: where the event happened.
// Order of Files is significant — it participates in the content hash, so
// reordering the same file set changes identity.
type EventContext struct {
	CWD    string   `json:"cwd,omitempty"`
	Files  []string `json:"files,omitempty"`
	Task   string   `json:"task,omitempty"`
	Phase  string   `json:"phase,omitempty"`
	Branch string   `json:"branch,omitempty"`
}

// EventMetrics is the "metrics" group.
type EventMetrics struct {
	DurationMS   int64 `json:"duration_ms,omitempty"`
	FilesChanged int   `json:"files_changed,omitempty"`
	LinesAdded   int   `json:"lines_added,omitempty"`
	LinesDeleted int   `json:"lines_deleted,omitempty"`
}

// Evidence is the "evidence" group describing how confident the system is
// that an event reflects reality.
type Evidence struct {
	Type     EvidenceType `json:"evidence_type"`
	SourceID string       `json:"source_id,omitempty"`
	Quality  float64      `json:"evidence_quality"`
}

// WorkingMemoryScore is the "working-memory scoring" group. Apart from
// RequiredDecisions, which is part of the content hash, these fields are
// excluded from it: they are derived from an event's
// payload, not part of its identity, and get recomputed freely.
type WorkingMemoryScore struct {
	ImportanceScore          float64  `json:"importance_score"`
	ActionabilityScore       float64  `json:"actionability_score"`
	ContextCompletenessScore float64  `json:"context_completeness_score"`
	HasNextStep              bool     `json:"has_next_step"`
	HasBlocker               bool     `json:"has_blocker"`
	RequiredDecisions        []string `json:"required_decisions,omitempty"`
}

// Lifecycle is the mutable tiering state. Entirely excluded from the
// content hash; after ingestion it is changed only by pkg/lifecycle (the
// tiering sweep and RecordAccess).
type Lifecycle struct {
	Status             LifecycleStatus `json:"lifecycle_status"`
	ConsolidationScore float64         `json:"consolidation_score"`
	LastActivation     time.Time       `json:"last_activation"`
	ActivationCount    int             `json:"activation_count"`
}

// Event is the central record of the memory substrate.
//
// ID and Lifecycle are volatile: excluded from the content hash computed by
// pkg/hashing, as are IngestSourceID and the WorkingMemory scores other than
// RequiredDecisions. Everything else reachable from this struct (including
// CodeContext, Context.Files order, and nil-ness of optional pointers) is
// part of the canonical hash document.
type Event struct {
	// Identity
	ID        int64     `json:"-"`
	ProjectID string    `json:"project_id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	// Classification
	EventType     EventType      `json:"event_type"`
	CodeEventType *CodeEventType `json:"code_event_type,omitempty"`
	Outcome       *Outcome       `json:"outcome,omitempty"`

	// Payload
	Content    string  `json:"content"`
	Learned    string  `json:"learned,omitempty"`
	Confidence float64 `json:"confidence"`

	// Context snapshot, metrics, code-aware payload, evidence
	Context  EventContext `json:"context"`
	Metrics  EventMetrics `json:"metrics"`
	Code     *CodeContext `json:"code,omitempty"`
	Evidence Evidence     `json:"evidence"`

	// Working-memory scoring (non-hashed)
	WorkingMemory WorkingMemoryScore `json:"-"`

	// Lifecycle (non-hashed, volatile)
	Lifecycle Lifecycle `json:"-"`

	// IngestSourceID identifies the adapter/source that produced this event,
	// for cursor bookkeeping. Distinct from Evidence.SourceID (the
	// evidential origin, e.g. a URL) and not an H-field.
	IngestSourceID string `json:"-"`
}

// Clone returns a deep copy safe to mutate independently of e.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	cp := *e
	if e.CodeEventType != nil {
		v := *e.CodeEventType
		cp.CodeEventType = &v
	}
	if e.Outcome != nil {
		v := *e.Outcome
		cp.Outcome = &v
	}
	cp.Context.Files = append([]string(nil), e.Context.Files...)
	if e.Code != nil {
		codeCopy := *e.Code
		if e.Code.TestPassed != nil {
			v := *e.Code.TestPassed
			codeCopy.TestPassed = &v
		}
		if e.Code.CodeQualityScore != nil {
			v := *e.Code.CodeQualityScore
			codeCopy.CodeQualityScore = &v
		}
		if e.Code.PerformanceMetrics != nil {
			m := make(map[string]float64, len(e.Code.PerformanceMetrics))
			for k, v := range e.Code.PerformanceMetrics {
				m[k] = v
			}
			codeCopy.PerformanceMetrics = m
		}
		cp.Code = &codeCopy
	}
	cp.WorkingMemory.RequiredDecisions = append([]string(nil), e.WorkingMemory.RequiredDecisions...)
	return &cp
}

// IsConsolidatedOrArchived reports whether the event's lifecycle status is
// one of the two terminal tiers, which must have activation pinned at zero
// (§3.1 invariant).
func (e *Event) IsConsolidatedOrArchived() bool {
	return e.Lifecycle.Status.Terminal()
}

// Package failures converts internal exceptions into events so the system
// learns from itself: every recorded failure is a system_error event
// persisted through the same six-stage pipeline as any other observation.
package failures

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/athenamem/episodic/pkg/clock"
	"github.com/athenamem/episodic/pkg/models"
	"github.com/athenamem/episodic/pkg/pipeline"
)

// Severity classifies how serious a recorded failure is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

func (s Severity) valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// importanceScore maps a severity onto the event's standard
// importance_score field, so a critical failure earns the same activation
// boost as any other highly-important event rather than needing a
// dedicated severity column.
func (s Severity) importanceScore() float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityError:
		return 0.75
	case SeverityWarning:
		return 0.5
	default:
		return 0.25
	}
}

// batchProcessor narrows *pipeline.Pipeline to the one method Record calls,
// so tests can inject a fake instead of standing up a live pipeline.
type batchProcessor interface {
	ProcessBatch(ctx context.Context, events []*models.Event) (pipeline.Stats, error)
}

// Recorder turns internal failures into events: one per project, since every
// recorded event must carry a project_id.
type Recorder struct {
	projectID string
	pipeline  batchProcessor
	clock     clock.Clock
}

// New builds a Recorder that persists failures for projectID through pl.
func New(projectID string, pl *pipeline.Pipeline, clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.System
	}
	return &Recorder{projectID: projectID, pipeline: pl, clock: clk}
}

// Record constructs a system_error event — outcome "failure:<failureType>"
// — and persists it through the pipeline. Any persistence failure is
// logged to stderr via slog, never recorded again through this same path,
// to avoid a recording-failure feedback loop.
func (r *Recorder) Record(ctx context.Context, component, failureType, message string, severity Severity, details map[string]any) error {
	if !severity.valid() {
		severity = SeverityError
	}
	outcome := models.Outcome("failure:" + failureType)
	now := r.clock.Now()

	var learned string
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			slog.Error("failures: marshal details failed", "component", component, "failure_type", failureType, "error", err)
		} else {
			learned = string(raw)
		}
	}

	event := &models.Event{
		ProjectID: r.projectID,
		SessionID: "system:" + component,
		Timestamp: now,
		EventType: models.EventTypeSystemError,
		Outcome:   &outcome,
		Content:   message,
		Learned:   learned,
		Confidence: 1.0,
		Context: models.EventContext{
			Task: component,
		},
		Evidence: models.Evidence{
			Type:     models.EvidenceObserved,
			SourceID: component,
			Quality:  1.0,
		},
		WorkingMemory: models.WorkingMemoryScore{
			ImportanceScore: severity.importanceScore(),
			HasBlocker:      severity == SeverityError || severity == SeverityCritical,
		},
	}

	validated, err := models.NewEvent(*event, now)
	if err != nil {
		slog.Error("failures: constructed an invalid system_error event", "component", component, "failure_type", failureType, "error", err)
		return fmt.Errorf("failures: record %s/%s: %w", component, failureType, err)
	}

	stats, err := r.pipeline.ProcessBatch(ctx, []*models.Event{validated})
	if err != nil {
		slog.Error("failures: persisting system_error event failed", "component", component, "failure_type", failureType, "error", err)
		return fmt.Errorf("failures: persist %s/%s: %w", component, failureType, err)
	}
	if stats.Errors > 0 {
		slog.Error("failures: system_error event rejected by pipeline", "component", component, "failure_type", failureType)
	}
	return nil
}

// RecordImportFailure is a convenience adapter for a source adapter's
// import step failing outright (network error, unreadable archive, ...).
func (r *Recorder) RecordImportFailure(ctx context.Context, component, message string, details map[string]any) error {
	return r.Record(ctx, component, "import_error", message, SeverityError, details)
}

// RecordCorruption is a convenience adapter for data found to be corrupt on
// read (unparseable JSON, out-of-range enum, unreadable row).
func (r *Recorder) RecordCorruption(ctx context.Context, component, message string, details map[string]any) error {
	return r.Record(ctx, component, "corruption", message, SeverityWarning, details)
}

// RecordPermissionDenied is a convenience adapter for a source or storage
// operation rejected for lack of access.
func (r *Recorder) RecordPermissionDenied(ctx context.Context, component, message string, details map[string]any) error {
	return r.Record(ctx, component, "permission_denied", message, SeverityError, details)
}

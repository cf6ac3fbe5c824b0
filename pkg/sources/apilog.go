package sources

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
)

// apiLogCursor records the byte offset already consumed, so a resumed sync
// continues mid-file instead of re-reading lines already turned into events.
type apiLogCursor struct {
	Offset int64 `json:"offset"`
}

// apiLogLine is one JSON-lines record this adapter understands. Lines that
// fail to parse are skipped, not fatal, since a log file being actively
// written can contain a partial trailing line.
type apiLogLine struct {
	Timestamp  string  `json:"timestamp"`
	SessionID  string  `json:"session_id"`
	Method     string  `json:"method"`
	Path       string  `json:"path"`
	StatusCode int     `json:"status_code"`
	DurationMS int64   `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// APILogAdapter tails a local newline-delimited JSON log of API calls.
type APILogAdapter struct {
	sourceID string
	path     string
	cursor   apiLogCursor
}

// NewAPILogAdapter builds an APILogAdapter. Expects cfg.Options["path"].
func NewAPILogAdapter(sourceID string, cfg config.SourceConfig) (*APILogAdapter, error) {
	path := cfg.Options["path"]
	if path == "" {
		return nil, fmt.Errorf("api_log source %q: options.path is required", sourceID)
	}
	return &APILogAdapter{sourceID: sourceID, path: path}, nil
}

func (a *APILogAdapter) SourceID() string          { return a.sourceID }
func (a *APILogAdapter) Type() Type                { return TypeAPILog }
func (a *APILogAdapter) SupportsIncremental() bool { return true }

func (a *APILogAdapter) Validate(ctx context.Context) error {
	f, err := os.Open(a.path)
	if err != nil {
		return fmt.Errorf("api_log source %q: %w", a.sourceID, err)
	}
	return f.Close()
}

func (a *APILogAdapter) Cursor() models.Cursor {
	c, _ := models.NewCursor(a.sourceID, a.cursor)
	return c
}

// Generate seeks to the cursor's byte offset and streams one event per
// well-formed JSON line read from there to end-of-file.
func (a *APILogAdapter) Generate(ctx context.Context, cursor *models.Cursor) (<-chan models.Event, <-chan error) {
	events := make(chan models.Event)
	errs := make(chan error, 1)

	if cursor != nil {
		_ = cursor.Decode(&a.cursor)
	}

	go func() {
		defer close(events)
		defer close(errs)

		f, err := os.Open(a.path)
		if err != nil {
			errs <- fmt.Errorf("api_log source %q: %w", a.sourceID, err)
			return
		}
		defer f.Close()

		if a.cursor.Offset > 0 {
			if _, err := f.Seek(a.cursor.Offset, io.SeekStart); err != nil {
				errs <- fmt.Errorf("api_log source %q: seek: %w", a.sourceID, err)
				return
			}
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		offset := a.cursor.Offset

		for scanner.Scan() {
			line := scanner.Bytes()
			offset += int64(len(line)) + 1 // + newline

			var rec apiLogLine
			if err := json.Unmarshal(line, &rec); err != nil {
				continue
			}

			ts, err := time.Parse(time.RFC3339, rec.Timestamp)
			if err != nil {
				continue
			}

			outcome := models.OutcomeSuccess
			if rec.Error != "" || rec.StatusCode >= 500 {
				outcome = models.OutcomeFailure
			}

			ev := models.Event{
				ProjectID: a.sourceID,
				SessionID: firstNonEmpty(rec.SessionID, a.sourceID),
				Timestamp: ts,
				EventType: models.EventTypeAction,
				Content:   fmt.Sprintf("%s %s -> %d", rec.Method, rec.Path, rec.StatusCode),
				Outcome:   &outcome,
				Metrics:   models.EventMetrics{DurationMS: rec.DurationMS},
				Evidence:  models.Evidence{Type: models.EvidenceObserved, SourceID: a.sourceID, Quality: 1.0},
				Lifecycle: models.Lifecycle{Status: models.LifecycleActive},
				IngestSourceID: a.sourceID,
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("api_log source %q: scan: %w", a.sourceID, err)
			return
		}

		a.cursor.Offset = offset
	}()

	return events, errs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

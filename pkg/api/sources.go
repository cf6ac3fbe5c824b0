package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/sources"
)

// SourceSummary is what handleListSources returns per source: enough to
// identify and schedule it, never credentials.
type SourceSummary struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Schedule string `json:"schedule"`
}

// handleListSources handles GET /sources.
func (s *Server) handleListSources(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SourceSummary, 0, len(s.cfg.Sources))
	for id, sc := range s.cfg.Sources {
		out = append(out, SourceSummary{ID: id, Type: sc.Type, Schedule: sc.Schedule})
	}
	c.JSON(http.StatusOK, out)
}

// schemaField documents one field of a source type's config shape: where
// it is read from (options, or an environment variable named by
// credentials_env) and whether it is required.
type schemaField struct {
	Name        string `json:"name"`
	Via         string `json:"via"` // "options" or "credentials_env"
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// sourceSchemas catalogues each adapter variant's config.Options /
// CredentialsEnv keys, mirroring the adapter catalogue in the source
// adapter contract: one row per type, naming the fields its constructor
// reads.
var sourceSchemas = map[string][]schemaField{
	string(sources.TypeGit): {
		{Name: "repo_path", Via: "options", Required: true, Description: "filesystem path to a git repository"},
		{Name: "branch", Via: "options", Required: false, Description: "branch to read commits from (default: repository HEAD)"},
	},
	string(sources.TypeGitHub): {
		{Name: "repo", Via: "options", Required: true, Description: "owner/name of the repository"},
		{Name: "token", Via: "credentials_env", Required: false, Description: "personal access token for private repos or higher rate limits"},
	},
	string(sources.TypeSlack): {
		{Name: "channel", Via: "options", Required: true, Description: "channel id to poll"},
		{Name: "token", Via: "credentials_env", Required: true, Description: "bot token with channel read scope"},
	},
	string(sources.TypeAPILog): {
		{Name: "path", Via: "options", Required: true, Description: "path to the log file to tail"},
	},
}

// handleGetSourceSchema handles GET /sources/schema/:type.
func (s *Server) handleGetSourceSchema(c *gin.Context) {
	typ := c.Param("type")
	fields, ok := sourceSchemas[typ]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown source type: " + typ})
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": typ, "fields": fields})
}

// CreateSourceRequest is the request body for POST /sources. Credentials
// are always passed through environment variable names (CredentialsEnv),
// never inline — the operational surface never accepts a raw secret.
type CreateSourceRequest struct {
	ID             string            `json:"id" binding:"required"`
	Type           string            `json:"type" binding:"required"`
	Schedule       string            `json:"schedule"`
	CredentialsEnv map[string]string `json:"credentials_env"`
	Options        map[string]string `json:"options"`
}

// handleCreateSource handles POST /sources: builds and validates the
// adapter, then registers it with both the resolved config (for future
// GET /sources calls) and the orchestrator (so it is immediately
// syncable). Construction/validation failures leave neither touched.
func (s *Server) handleCreateSource(c *gin.Context) {
	var req CreateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sc := config.SourceConfig{
		Type:           req.Type,
		CredentialsEnv: req.CredentialsEnv,
		Schedule:       req.Schedule,
		Options:        req.Options,
	}
	if sc.Schedule == "" {
		sc.Schedule = s.cfg.Orchestrator.DefaultSchedule
	}

	adapter, err := sources.New(req.ID, sc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := adapter.Validate(c.Request.Context()); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "source validation failed: " + err.Error()})
		return
	}

	s.mu.Lock()
	s.cfg.Sources[req.ID] = sc
	s.mu.Unlock()
	s.orch.AddSource(req.ID, adapter)

	c.JSON(http.StatusCreated, SourceSummary{ID: req.ID, Type: sc.Type, Schedule: sc.Schedule})
}

// SyncResponse is the only thing a sync call returns: summary statistics,
// never the raw events ingested.
type SyncResponse struct {
	SourceID         string `json:"source_id"`
	EventsGenerated  int    `json:"events_generated"`
	BatchesProcessed int    `json:"batches_processed"`
	Inserted         int    `json:"inserted"`
	SkippedDuplicate int    `json:"skipped_duplicate"`
	SkippedExisting  int    `json:"skipped_existing"`
	Errors           int    `json:"errors"`
	DurationMS       int64  `json:"duration_ms"`
	Attempts         int    `json:"attempts"`
}

// handleSyncSource handles POST /sources/:id/sync.
func (s *Server) handleSyncSource(c *gin.Context) {
	sourceID := c.Param("id")
	stats, err := s.orch.IngestFromSource(c.Request.Context(), sourceID)
	resp := SyncResponse{
		SourceID:         stats.SourceID,
		EventsGenerated:  stats.EventsGenerated,
		BatchesProcessed: stats.BatchesProcessed,
		Inserted:         stats.Inserted,
		SkippedDuplicate: stats.SkippedDuplicate,
		SkippedExisting:  stats.SkippedExisting,
		Errors:           stats.Errors,
		DurationMS:       stats.Duration.Milliseconds(),
		Attempts:         stats.Attempts,
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "stats": resp})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SyncStatusResponse is the response for GET /sources/:id/status.
type SyncStatusResponse struct {
	SourceID         string  `json:"source_id"`
	LastSyncAt       string  `json:"last_sync_at,omitempty"`
	LastError        string  `json:"last_error,omitempty"`
	Cycles           int     `json:"cycles"`
	SuccessfulCycles int     `json:"successful_cycles"`
	SuccessRate      float64 `json:"success_rate"`
	AvgDurationMS    float64 `json:"avg_duration_ms"`
}

// handleSourceStatus handles GET /sources/:id/status.
func (s *Server) handleSourceStatus(c *gin.Context) {
	sourceID := c.Param("id")
	st, ok := s.orch.Status(sourceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sync recorded for source " + sourceID})
		return
	}
	resp := SyncStatusResponse{
		SourceID:         st.SourceID,
		LastError:        st.LastError,
		Cycles:           st.Cycles.Cycles,
		SuccessfulCycles: st.Cycles.SuccessfulCycles,
		SuccessRate:      st.Cycles.SuccessRate,
		AvgDurationMS:    st.Cycles.AvgDurationMS,
	}
	if !st.LastSyncAt.IsZero() {
		resp.LastSyncAt = st.LastSyncAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	c.JSON(http.StatusOK, resp)
}

// handleResetSource handles POST /sources/:id/reset: clears the source's
// persisted cursor so its next sync starts a fresh full resync. The
// adapter registration itself is untouched.
func (s *Server) handleResetSource(c *gin.Context) {
	sourceID := c.Param("id")
	if err := s.cursors.DeleteCursor(c.Request.Context(), sourceID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"source_id": sourceID, "reset": true})
}

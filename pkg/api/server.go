// Package api implements the operational surface: a thin HTTP layer the
// out-of-scope CLI (or any other outer caller) drives to list sources,
// inspect a source type's config schema, create a source, trigger a sync
// (returning only summary statistics, never raw events), poll sync status,
// reset a source's cursor, and query communities. None of this is the
// memory core itself — it is the narrow door callers reach the core
// through.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
	"github.com/athenamem/episodic/pkg/orchestrator"
	"github.com/athenamem/episodic/pkg/sources"
)

// syncer narrows *orchestrator.Orchestrator to the methods this package
// calls, so tests can inject a fake instead of a live orchestrator.
type syncer interface {
	IngestFromSource(ctx context.Context, sourceID string) (orchestrator.SourceStats, error)
	Status(sourceID string) (orchestrator.SyncStatus, bool)
	SourceIDs() []string
	AddSource(id string, adapter sources.Adapter)
}

// cursorStore narrows *database.Store to the one method "reset source"
// needs.
type cursorStore interface {
	DeleteCursor(ctx context.Context, sourceID string) error
}

// communityStore narrows *database.Store to the one method the community
// query endpoint needs.
type communityStore interface {
	ListCommunities(ctx context.Context, projectID string, level int) ([]models.Community, error)
}

// healthChecker narrows the database client (or any equivalent) to a
// liveness probe so this package never depends on pkg/database directly.
type healthChecker interface {
	Ping(ctx context.Context) error
}

// Server holds every collaborator the operational surface calls through.
type Server struct {
	cfg       *config.Config
	orch      syncer
	cursors   cursorStore
	community communityStore
	health    healthChecker

	mu sync.Mutex // guards cfg.Sources against concurrent CreateSource calls
}

// NewServer builds a Server. health may be nil, in which case the health
// endpoint always reports healthy without touching the database.
func NewServer(cfg *config.Config, orch syncer, cursors cursorStore, community communityStore, health healthChecker) *Server {
	return &Server{cfg: cfg, orch: orch, cursors: cursors, community: community, health: health}
}

// Router builds the gin engine with every operational-surface route
// registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.GET("/health", s.handleHealth)

	sourcesGroup := r.Group("/sources")
	sourcesGroup.GET("", s.handleListSources)
	sourcesGroup.POST("", s.handleCreateSource)
	sourcesGroup.GET("/schema/:type", s.handleGetSourceSchema)
	sourcesGroup.POST("/:id/sync", s.handleSyncSource)
	sourcesGroup.GET("/:id/status", s.handleSourceStatus)
	sourcesGroup.POST("/:id/reset", s.handleResetSource)

	r.GET("/projects/:project_id/communities", s.handleQueryCommunities)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.health.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

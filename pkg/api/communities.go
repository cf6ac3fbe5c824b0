package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/athenamem/episodic/pkg/community"
)

// handleQueryCommunities handles GET
// /projects/:project_id/communities?level=0&q=some+text, the multi-level
// query surfaced to the outer caller: filters by level, ranks by
// name-overlap with q. Omitting q returns every community at that level in
// persisted order.
func (s *Server) handleQueryCommunities(c *gin.Context) {
	projectID := c.Param("project_id")

	level := 0
	if v := c.Query("level"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid level: " + v})
			return
		}
		level = parsed
	}

	communities, err := s.community.ListCommunities(c.Request.Context(), projectID, level)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusOK, communities)
		return
	}
	c.JSON(http.StatusOK, community.Query(communities, q))
}

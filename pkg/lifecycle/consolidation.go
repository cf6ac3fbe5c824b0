package lifecycle

import (
	"github.com/athenamem/episodic/pkg/community"
	"github.com/athenamem/episodic/pkg/models"
)

// consolidationScore cross-references an event's entity mentions against
// the known level-0 communities: the best overlap fraction becomes the
// score. An event whose mentions land squarely inside one community
// consolidates with high confidence; one mentioning nothing the graph
// knows scores 0.
func consolidationScore(e *models.Event, communities []models.Community) float64 {
	mentions := community.Mentions(e)
	if len(mentions) == 0 || len(communities) == 0 {
		return 0
	}
	names := make(map[string]struct{}, len(mentions))
	for _, m := range mentions {
		names[m.Name] = struct{}{}
	}

	best := 0.0
	for _, c := range communities {
		overlap := 0
		for _, n := range c.EntityNames {
			if _, ok := names[n]; ok {
				overlap++
			}
		}
		if frac := float64(overlap) / float64(len(mentions)); frac > best {
			best = frac
		}
	}
	return best
}

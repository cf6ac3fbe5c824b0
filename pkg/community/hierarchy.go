package community

import (
	"fmt"
	"sort"
	"strings"

	"github.com/athenamem/episodic/pkg/models"
)

// communitiesFromPartition converts a Leiden partition into the persisted
// Community shape: {entity_ids, entity_names, level, density, size,
// internal_edges, external_edges, summary}.
func communitiesFromPartition(g *Graph, part Partition, level int, projectID string) []models.Community {
	members := make(map[int64][]int64)
	for _, v := range g.nodes {
		c := part[v]
		members[c] = append(members[c], v)
	}

	reps := make([]int64, 0, len(members))
	for c := range members {
		reps = append(reps, c)
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i] < reps[j] })

	out := make([]models.Community, 0, len(reps))
	for _, c := range reps {
		ids := members[c]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		inSet := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			inSet[id] = struct{}{}
		}

		// internal pairs are only ever visited from their lower-id endpoint
		// (u > v), so they are counted once; external pairs are visited
		// only from their community-member endpoint, regardless of id
		// order, so counting every such neighbor also counts once.
		var internalEdges, externalEdges int
		for _, v := range ids {
			for u, w := range g.adjacency[v] {
				if w == 0 {
					continue
				}
				_, internal := inSet[u]
				switch {
				case internal && u > v:
					internalEdges++
				case !internal:
					externalEdges++
				}
			}
		}

		size := len(ids)
		var density float64
		if size > 1 {
			maxEdges := size * (size - 1) / 2
			density = float64(internalEdges) / float64(maxEdges)
		}

		names := make([]string, 0, len(ids))
		for _, id := range ids {
			if n := g.Name(id); n != "" {
				names = append(names, n)
			}
		}

		out = append(out, models.Community{
			ProjectID:     projectID,
			Level:         level,
			EntityIDs:     ids,
			EntityNames:   names,
			Density:       density,
			Size:          size,
			InternalEdges: internalEdges,
			ExternalEdges: externalEdges,
			Summary:       summarize(names),
		})
	}
	return out
}

func summarize(names []string) string {
	if len(names) == 0 {
		return ""
	}
	const maxShown = 5
	if len(names) <= maxShown {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(names[:maxShown], ", "), len(names)-maxShown)
}

// contractGraph builds the level+1 graph: one super-node per community,
// carrying the sum of every edge weight that crossed between two
// communities. Intra-community edges are dropped, since the community
// they described has collapsed into a single node.
func contractGraph(g *Graph, part Partition) *Graph {
	next := &Graph{
		names:     make(map[int64]string),
		adjacency: make(map[int64]map[int64]float64),
	}
	for _, v := range g.nodes {
		c := part[v]
		next.addNode(c, "")
	}
	for _, v := range g.nodes {
		cv := part[v]
		for u, w := range g.adjacency[v] {
			cu := part[u]
			// Each undirected edge is listed under both endpoints; take it
			// once, from its lower-id end.
			if cv == cu || u < v {
				continue
			}
			next.addEdge(cv, cu, w)
		}
	}
	return next
}

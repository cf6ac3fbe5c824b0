// Package community groups entities extracted from events into Leiden-style
// communities over the derived entity graph, producing a multi-level
// hierarchy that supports ranked lookup by name overlap.
package community

import "github.com/athenamem/episodic/pkg/models"

// Graph is an undirected, weighted graph over entity IDs. Directed
// relations are symmetrized: the edge weight between a and b is the sum of
// every relation weight recorded in either direction.
type Graph struct {
	nodes      []int64
	names      map[int64]string
	adjacency  map[int64]map[int64]float64
	totalEdge  float64 // sum of all edge weights (each undirected edge counted once)
}

// BuildGraph constructs a Graph from the entities and relations of one
// project. Entities with no incident relation are still included as
// isolated nodes.
func BuildGraph(entities []models.Entity, relations []models.Relation) *Graph {
	g := &Graph{
		names:     make(map[int64]string, len(entities)),
		adjacency: make(map[int64]map[int64]float64, len(entities)),
	}
	for _, e := range entities {
		g.addNode(e.ID, e.Name)
	}
	for _, r := range relations {
		g.addNode(r.FromEntityID, "")
		g.addNode(r.ToEntityID, "")
		g.addEdge(r.FromEntityID, r.ToEntityID, r.Weight)
	}
	return g
}

func (g *Graph) addNode(id int64, name string) {
	if _, ok := g.adjacency[id]; ok {
		if name != "" {
			g.names[id] = name
		}
		return
	}
	g.nodes = append(g.nodes, id)
	g.adjacency[id] = make(map[int64]float64)
	if name != "" {
		g.names[id] = name
	}
}

func (g *Graph) addEdge(a, b int64, weight float64) {
	if a == b || weight == 0 {
		return
	}
	g.adjacency[a][b] += weight
	g.adjacency[b][a] += weight
	g.totalEdge += weight
}

// Nodes returns every node id in the graph, in insertion order.
func (g *Graph) Nodes() []int64 { return g.nodes }

// Name returns the entity name for a node id, or "" if unknown.
func (g *Graph) Name(id int64) string { return g.names[id] }

// Neighbors returns the incident-edge weights of a node, keyed by the
// neighboring node id.
func (g *Graph) Neighbors(id int64) map[int64]float64 { return g.adjacency[id] }

// Degree is the sum of a node's incident edge weights.
func (g *Graph) Degree(id int64) float64 {
	var sum float64
	for _, w := range g.adjacency[id] {
		sum += w
	}
	return sum
}

// TotalWeight is m, the sum of all edge weights in the graph (each
// undirected edge counted once).
func (g *Graph) TotalWeight() float64 { return g.totalEdge }

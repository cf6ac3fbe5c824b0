package community

import "math/rand"

// Partition maps each entity (node) id to the id of its community's
// representative node.
type Partition map[int64]int64

// RunConfig parameterizes one Leiden-style detection run over a Graph.
type RunConfig struct {
	MaxIterations     int
	MinModularityGain float64
	MinCommunitySize  int
	Seed              int64
	// Resolution scales the expected-internal-edges term; 1.0 reproduces
	// the standard weighted modularity definition, >1 favors more, smaller
	// communities.
	Resolution float64
}

func (cfg RunConfig) resolution() float64 {
	if cfg.Resolution == 0 {
		return 1.0
	}
	return cfg.Resolution
}

// Run executes local-moving, refinement, and small-community merging over
// g, returning the final partition and its modularity.
func Run(g *Graph, cfg RunConfig) (Partition, float64) {
	commOf := make(Partition, len(g.nodes))
	for _, v := range g.nodes {
		commOf[v] = v
	}
	if len(g.nodes) == 0 || g.TotalWeight() == 0 {
		return commOf, 0
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	prevModularity := 0.0

	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}
	resolution := cfg.resolution()
	for iter := 0; iter < maxIter; iter++ {
		localMovingPass(g, commOf, rng, resolution)
		refinementPass(g, commOf)

		internal, degree := computeAggregates(g, commOf)
		modularity := computeModularity(g, internal, degree, resolution)
		if iter > 0 && modularity-prevModularity < cfg.MinModularityGain {
			prevModularity = modularity
			break
		}
		prevModularity = modularity
	}

	mergeSmallCommunities(g, commOf, cfg.MinCommunitySize)

	internal, degree := computeAggregates(g, commOf)
	finalModularity := computeModularity(g, internal, degree, resolution)
	return commOf, finalModularity
}

// localMovingPass visits every node in a freshly shuffled order and moves
// it into whichever neighboring community yields the largest strictly
// positive modularity gain, leaving it in place otherwise.
func localMovingPass(g *Graph, commOf Partition, rng *rand.Rand, resolution float64) bool {
	m := g.TotalWeight()
	if m == 0 {
		return false
	}

	commDegree := make(map[int64]float64)
	for _, v := range g.nodes {
		commDegree[commOf[v]] += g.Degree(v)
	}

	order := append([]int64(nil), g.nodes...)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	changed := false
	for _, v := range order {
		cFrom := commOf[v]
		degV := g.Degree(v)

		neighborWeight := make(map[int64]float64)
		for u, w := range g.adjacency[v] {
			if u == v {
				continue
			}
			neighborWeight[commOf[u]] += w
		}

		commDegree[cFrom] -= degV

		bestC, bestGain := cFrom, 0.0
		for c, kIn := range neighborWeight {
			gain := kIn/m - resolution*(degV*commDegree[c])/(2*m*m)
			if gain > bestGain {
				bestGain, bestC = gain, c
			}
		}

		commDegree[bestC] += degV
		if bestC != cFrom {
			commOf[v] = bestC
			changed = true
		}
	}
	return changed
}

// refinementPass reassigns every node with zero edge weight to its own
// community's other members to whichever neighboring community it is most
// strongly connected to.
func refinementPass(g *Graph, commOf Partition) bool {
	changed := false
	for _, v := range g.nodes {
		neighborWeight := make(map[int64]float64)
		for u, w := range g.adjacency[v] {
			if u == v {
				continue
			}
			neighborWeight[commOf[u]] += w
		}
		if neighborWeight[commOf[v]] > 0 || len(neighborWeight) == 0 {
			continue
		}
		bestC, bestW := commOf[v], -1.0
		for c, w := range neighborWeight {
			if w > bestW {
				bestW, bestC = w, c
			}
		}
		if bestC != commOf[v] {
			commOf[v] = bestC
			changed = true
		}
	}
	return changed
}

// mergeSmallCommunities folds every community below minSize into whichever
// neighboring community it shares the most edge weight with.
func mergeSmallCommunities(g *Graph, commOf Partition, minSize int) {
	if minSize <= 1 {
		return
	}
	for pass := 0; pass < 10; pass++ {
		size := make(map[int64]int)
		for _, v := range g.nodes {
			size[commOf[v]]++
		}

		merged := false
		for _, v := range g.nodes {
			c := commOf[v]
			if size[c] >= minSize {
				continue
			}
			neighborWeight := make(map[int64]float64)
			for u, w := range g.adjacency[v] {
				if commOf[u] != c {
					neighborWeight[commOf[u]] += w
				}
			}
			bestC, bestW := int64(0), -1.0
			for nc, w := range neighborWeight {
				if w > bestW {
					bestW, bestC = w, nc
				}
			}
			if bestW >= 0 {
				commOf[v] = bestC
				merged = true
			}
		}
		if !merged {
			return
		}
	}
}

// computeAggregates sums, per community, the internal edge weight (each
// internal edge counted once) and the total member degree.
func computeAggregates(g *Graph, commOf Partition) (internal, degree map[int64]float64) {
	internal = make(map[int64]float64)
	degree = make(map[int64]float64)
	for _, v := range g.nodes {
		c := commOf[v]
		degree[c] += g.Degree(v)
		for u, w := range g.adjacency[v] {
			if commOf[u] == c {
				internal[c] += w / 2
			}
		}
	}
	return internal, degree
}

// computeModularity is the standard weighted definition: sum over
// communities of (internal_edges - expected_internal) / total_edges, where
// expected_internal for community c is deg(c)^2 / (4 * total_edges) — the
// expected internal edge count under a configuration-model null model with
// the same degree sequence. At the default resolution of 1.0 this is
// exactly Newman's weighted modularity; other values scale the expected
// term, trading off community count against size.
func computeModularity(g *Graph, internal, degree map[int64]float64, resolution float64) float64 {
	m := g.TotalWeight()
	if m == 0 {
		return 0
	}
	var q float64
	for c, deg := range degree {
		expected := resolution * (deg * deg) / (4 * m)
		q += (internal[c] - expected) / m
	}
	return q
}

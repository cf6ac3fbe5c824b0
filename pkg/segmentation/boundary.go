package segmentation

import "sort"

// adaptiveThreshold computes θ = mean(S) + γ·stdev(S) for a session's
// surprise sequence.
func adaptiveThreshold(scores []float64, gamma float64) float64 {
	return mean(scores) + gamma*stdev(scores)
}

// rawBoundaries returns the positions where scores[i] exceeds the
// threshold, always including position 0 and the last position.
func rawBoundaries(scores []float64, threshold float64) []int {
	if len(scores) == 0 {
		return nil
	}
	set := map[int]struct{}{0: {}, len(scores) - 1: {}}
	for i, s := range scores {
		if s > threshold {
			set[i] = struct{}{}
		}
	}
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// chainNode is one community along the linear chain graph used to refine
// boundaries: a contiguous run of event indices [start, end].
type chainNode struct {
	start, end int // inclusive event-index range
}

// refineBoundaries builds a chain graph over the events (edge weight
// 1/(1+S_{i+1}) between consecutive events) and greedily merges adjacent
// communities — initially one per raw boundary segment — while doing so
// strictly improves weighted modularity by at least minGain, for up to
// maxIterations passes. The surviving communities' start positions become
// the refined boundary set.
func refineBoundaries(scores []float64, raw []int, maxIterations int, minGain float64) ([]int, float64) {
	n := len(scores)
	if n == 0 {
		return nil, 0
	}

	edgeWeight := make([]float64, n) // edgeWeight[i] = weight of edge (i, i+1)
	for i := 0; i < n-1; i++ {
		edgeWeight[i] = 1 / (1 + scores[i+1])
	}

	nodes := segmentsFromBoundaries(raw, n)
	totalWeight := sumEdgeWeights(edgeWeight)

	modularity := chainModularity(nodes, edgeWeight, totalWeight)
	for iter := 0; iter < maxIterations && len(nodes) > 1; iter++ {
		bestIdx := -1
		bestModularity := modularity
		for i := 0; i < len(nodes)-1; i++ {
			merged := mergeAt(nodes, i)
			m := chainModularity(merged, edgeWeight, totalWeight)
			if m > bestModularity {
				bestModularity = m
				bestIdx = i
			}
		}
		if bestIdx < 0 || totalWeight == 0 {
			break
		}
		gain := bestModularity - modularity
		if gain < minGain {
			break
		}
		nodes = mergeAt(nodes, bestIdx)
		modularity = bestModularity
	}

	boundaries := make([]int, 0, len(nodes)+1)
	for _, nd := range nodes {
		boundaries = append(boundaries, nd.start)
	}
	boundaries = append(boundaries, n-1)
	return dedupSorted(boundaries), modularity
}

func segmentsFromBoundaries(boundaries []int, n int) []chainNode {
	bs := dedupSorted(append([]int{0, n - 1}, boundaries...))
	nodes := make([]chainNode, 0, len(bs))
	for i, b := range bs {
		end := n - 1
		if i < len(bs)-1 {
			end = bs[i+1] - 1
		}
		if end < b {
			continue
		}
		nodes = append(nodes, chainNode{start: b, end: end})
	}
	return nodes
}

func mergeAt(nodes []chainNode, i int) []chainNode {
	out := make([]chainNode, 0, len(nodes)-1)
	out = append(out, nodes[:i]...)
	out = append(out, chainNode{start: nodes[i].start, end: nodes[i+1].end})
	out = append(out, nodes[i+2:]...)
	return out
}

func sumEdgeWeights(edgeWeight []float64) float64 {
	var sum float64
	for _, w := range edgeWeight {
		sum += w
	}
	return sum
}

// chainModularity computes the standard weighted modularity of the given
// chain-graph partition: sum over communities of
// (internal_edges - expected_internal) / total_edges, where expected for a
// community equals deg(c)^2 / (4*total_edges) — the same Newman
// weighted-modularity definition pkg/community uses over a general graph.
func chainModularity(nodes []chainNode, edgeWeight []float64, totalWeight float64) float64 {
	if totalWeight == 0 {
		return 0
	}
	var modularity float64
	for _, nd := range nodes {
		var internal float64
		for i := nd.start; i < nd.end; i++ {
			internal += edgeWeight[i]
		}
		// Degree of a community is twice its internal edge weight (each
		// internal edge touches two of its own nodes) plus its external
		// (boundary-crossing) edge weight.
		degree := 2 * internal
		if nd.start > 0 {
			degree += edgeWeight[nd.start-1]
		}
		if nd.end < len(edgeWeight) {
			degree += edgeWeight[nd.end]
		}
		expected := (degree * degree) / (4 * totalWeight)
		modularity += (internal - expected) / totalWeight
	}
	return modularity
}

func dedupSorted(xs []int) []int {
	seen := make(map[int]struct{}, len(xs))
	out := make([]int, 0, len(xs))
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	sort.Ints(out)
	return out
}

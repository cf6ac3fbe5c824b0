package segmentation

import "math"

const (
	emaDecay         = 0.3
	varianceEpsilon  = 1e-6
	minJaccardForLog = 0.01
	semanticWeight   = 0.6
	entityWeight     = 0.25
	temporalWeight   = 0.15
)

// surpriseScores computes the composite surprise score for every event in
// features, given a sliding window of the previous windowSize features.
// S_0 is always 0.
func surpriseScores(features []feature, windowSize int) []float64 {
	scores := make([]float64, len(features))
	for i := range features {
		if i == 0 {
			continue
		}
		start := i - windowSize
		if start < 0 {
			start = 0
		}
		window := features[start:i]
		scores[i] = compositeSurprise(window, features[i])
	}
	return scores
}

func compositeSurprise(window []feature, current feature) float64 {
	semantic := semanticTerm(window, current)
	entity := entityTerm(window, current)
	temporal := temporalTerm(window, current)
	return semanticWeight*semantic + entityWeight*entity + temporalWeight*temporal
}

// semanticTerm treats the window's embeddings as a per-dimension Gaussian,
// predicts the current embedding via an exponentially-weighted moving
// average (decay 0.3) over the window, and scores the squared prediction
// error normalized by per-dimension variance and dimension count.
func semanticTerm(window []feature, current feature) float64 {
	dims := len(current.embedding)
	if dims == 0 || len(window) == 0 {
		return 0
	}

	mean := make([]float64, dims)
	for _, w := range window {
		for d := 0; d < dims && d < len(w.embedding); d++ {
			mean[d] += w.embedding[d]
		}
	}
	for d := range mean {
		mean[d] /= float64(len(window))
	}

	variance := make([]float64, dims)
	for _, w := range window {
		for d := 0; d < dims && d < len(w.embedding); d++ {
			diff := w.embedding[d] - mean[d]
			variance[d] += diff * diff
		}
	}
	for d := range variance {
		variance[d] /= float64(len(window))
	}

	predicted := make([]float64, dims)
	copy(predicted, window[0].embedding)
	for _, w := range window[1:] {
		for d := 0; d < dims && d < len(w.embedding); d++ {
			predicted[d] = emaDecay*w.embedding[d] + (1-emaDecay)*predicted[d]
		}
	}

	var sum float64
	for d := 0; d < dims; d++ {
		diff := current.embedding[d] - predicted[d]
		sum += (diff * diff) / (variance[d] + varianceEpsilon)
	}
	return sum / float64(dims)
}

// entityTerm approximates KL divergence between the window's entity prior
// and the current event's entities as -log(max(jaccard, 0.01)).
func entityTerm(window []feature, current feature) float64 {
	prior := make(map[string]struct{})
	for _, w := range window {
		for e := range w.entities {
			prior[e] = struct{}{}
		}
	}
	j := jaccard(prior, current.entities)
	return -math.Log(math.Max(j, minJaccardForLog))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

// temporalTerm is |z|, the current temporal delta standardized against the
// window's mean and stdev; 0 if the window's variance is negligible.
func temporalTerm(window []feature, current feature) float64 {
	if len(window) == 0 {
		return 0
	}
	deltas := make([]float64, len(window))
	for i, w := range window {
		deltas[i] = w.temporalDelta
	}
	m, sd := mean(deltas), stdev(deltas)
	if sd < varianceEpsilon {
		return 0
	}
	return math.Abs((current.temporalDelta - m) / sd)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var variance float64
	for _, x := range xs {
		diff := x - m
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(xs)))
}

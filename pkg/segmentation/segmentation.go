// Package segmentation partitions a session's event stream into episodes
// at Bayesian-surprise boundaries: a per-event feature vector (semantic
// embedding, entity mentions, temporal delta) feeds a KL-divergence-style
// composite surprise score, an adaptive threshold and greedy modularity
// refinement locate boundaries, and size constraints merge or split the
// resulting ranges into well-formed episodes.
package segmentation

import (
	"context"

	"github.com/athenamem/episodic/pkg/config"
	"github.com/athenamem/episodic/pkg/models"
)

// Result is the output of one Segment call: the ordered episodes, the
// per-event surprise score (aligned by index with the input events), and
// the refined partition's modularity score.
type Result struct {
	Episodes       []models.Episode
	SurpriseScores []float64
	Modularity     float64
}

// Segment partitions events — already filtered to a single session and
// sorted chronologically — into episodes. A nil embedder degrades to the
// deterministic zero-vector fallback for the semantic term.
func Segment(ctx context.Context, events []*models.Event, embedder Embedder, cfg config.SegmentationConfig) Result {
	if len(events) == 0 {
		return Result{}
	}

	features := computeFeatures(ctx, events, embedder)
	scores := surpriseScores(features, cfg.WindowSize)

	threshold := adaptiveThreshold(scores, cfg.ThresholdGamma)
	raw := rawBoundaries(scores, threshold)
	refined, modularity := refineBoundaries(scores, raw, cfg.MaxRefinementIterations, cfg.MinModularityGain)

	ranges := buildEpisodes(refined, events, cfg.MinEpisodeSize, cfg.MaxEpisodeSize)

	episodes := make([]models.Episode, len(ranges))
	for i, r := range ranges {
		episodes[i] = toEpisode(events, scores, r, modularity)
	}

	return Result{
		Episodes:       episodes,
		SurpriseScores: scores,
		Modularity:     modularity,
	}
}

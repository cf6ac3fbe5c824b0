package segmentation

import (
	"strings"

	"github.com/athenamem/episodic/pkg/models"
)

// eventRange is a contiguous run of event indices [start, end] (inclusive)
// before it is converted to a models.Episode with timestamps and IDs.
type eventRange struct {
	start, end int
}

// buildEpisodes converts boundary cut points into event ranges, merges
// undersized ranges into their predecessor, and recursively splits
// oversized ranges at the midpoint — all measured in whitespace-split word
// tokens of the range's concatenated content.
func buildEpisodes(boundaries []int, events []*models.Event, minSize, maxSize int) []eventRange {
	raw := rangesFromBoundaries(boundaries, len(events))

	merged := make([]eventRange, 0, len(raw))
	for _, r := range raw {
		if len(merged) > 0 && tokenCount(events, r) < minSize {
			merged[len(merged)-1].end = r.end
			continue
		}
		merged = append(merged, r)
	}

	var out []eventRange
	for _, r := range merged {
		out = append(out, splitOversized(events, r, maxSize)...)
	}
	return out
}

func rangesFromBoundaries(boundaries []int, n int) []eventRange {
	bs := dedupSorted(boundaries)
	ranges := make([]eventRange, 0, len(bs))
	for i, b := range bs {
		end := n - 1
		if i < len(bs)-1 {
			end = bs[i+1] - 1
		}
		if end < b {
			continue
		}
		ranges = append(ranges, eventRange{start: b, end: end})
	}
	return ranges
}

func splitOversized(events []*models.Event, r eventRange, maxSize int) []eventRange {
	if tokenCount(events, r) <= maxSize || r.end <= r.start {
		return []eventRange{r}
	}
	mid := r.start + (r.end-r.start)/2
	left := eventRange{start: r.start, end: mid}
	right := eventRange{start: mid + 1, end: r.end}
	out := splitOversized(events, left, maxSize)
	out = append(out, splitOversized(events, right, maxSize)...)
	return out
}

func tokenCount(events []*models.Event, r eventRange) int {
	var b strings.Builder
	for i := r.start; i <= r.end && i < len(events); i++ {
		b.WriteString(events[i].Content)
		b.WriteByte(' ')
	}
	return len(strings.Fields(b.String()))
}

// toEpisode converts an eventRange plus its per-event surprise scores into
// the derived, recomputable models.Episode.
func toEpisode(events []*models.Event, scores []float64, r eventRange, modularity float64) models.Episode {
	window := scores[r.start : r.end+1]
	return models.Episode{
		SessionID:     events[r.start].SessionID,
		StartEventID:  events[r.start].ID,
		EndEventID:    events[r.end].ID,
		StartIndex:    r.start,
		EndIndex:      r.end,
		StartTime:     events[r.start].Timestamp,
		EndTime:       events[r.end].Timestamp,
		SurpriseMean:  mean(window),
		SurpriseStdev: stdev(window),
		Modularity:    modularity,
		Size:          r.end - r.start + 1,
	}
}

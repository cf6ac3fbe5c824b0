package community

import (
	"sort"
	"strings"

	"github.com/athenamem/episodic/pkg/models"
)

// QueryResult pairs a community with its relevance score for one query.
type QueryResult struct {
	Community models.Community
	Score     float64
}

// Query ranks the communities at a level by word-token overlap between q
// and the community's member entity names. Communities with no overlap
// are omitted.
func Query(communities []models.Community, q string) []QueryResult {
	terms := tokenize(q)
	if len(terms) == 0 {
		return nil
	}

	var out []QueryResult
	for _, c := range communities {
		nameTerms := make(map[string]struct{})
		for _, n := range c.EntityNames {
			for t := range tokenize(n) {
				nameTerms[t] = struct{}{}
			}
		}
		if len(nameTerms) == 0 {
			continue
		}
		overlap := 0
		for t := range terms {
			if _, ok := nameTerms[t]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		score := float64(overlap) / float64(len(terms))
		out = append(out, QueryResult{Community: c, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Community.ID < out[j].Community.ID
	})
	return out
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f != "" {
			out[f] = struct{}{}
		}
	}
	return out
}

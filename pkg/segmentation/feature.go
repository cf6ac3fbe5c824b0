package segmentation

import (
	"context"
	"regexp"
	"strings"

	"github.com/athenamem/episodic/pkg/models"
)

// Embedder requests a semantic embedding for each of a batch of texts, in
// the same batched shape pipeline.Embedder uses. A nil Embedder, or any
// error it returns, falls back to a deterministic zero vector per event —
// segmentation degrades gracefully rather than failing.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// feature is the per-event input to the surprise calculation: a semantic
// embedding, the set of entity mentions, and the temporal gap since the
// previous event in the same session.
type feature struct {
	embedding     []float64
	entities      map[string]struct{}
	temporalDelta float64 // seconds since the previous event; 0 for the first
}

// identifierPattern approximates "entity mentions" absent a dedicated NER
// collaborator: dotted/underscored identifiers and path-like tokens, the
// kind of string a code event's content typically carries (symbol names,
// file paths, error types).
var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_./]*[A-Za-z0-9_]`)

func computeFeatures(ctx context.Context, events []*models.Event, embedder Embedder) []feature {
	out := make([]feature, len(events))

	texts := make([]string, len(events))
	for i, e := range events {
		texts[i] = e.Content
	}
	embeddings := zeroEmbeddings(events)
	if embedder != nil {
		if vecs, err := embedder.EmbedBatch(ctx, texts); err == nil && len(vecs) == len(events) {
			embeddings = vecs
		}
	}

	var prevTime *models.Event
	for i, e := range events {
		out[i] = feature{
			embedding: embeddings[i],
			entities:  entitiesFor(e),
		}
		if prevTime != nil {
			out[i].temporalDelta = e.Timestamp.Sub(prevTime.Timestamp).Seconds()
		}
		prevTime = e
	}
	return out
}

// zeroEmbeddings is the degrade-gracefully fallback: one zero vector per
// event, at a fixed width so downstream per-dimension statistics stay
// well-defined even without a real embedder.
func zeroEmbeddings(events []*models.Event) [][]float64 {
	const fallbackDims = 16
	out := make([][]float64, len(events))
	for i := range events {
		out[i] = make([]float64, fallbackDims)
	}
	return out
}

// entitiesFor extracts the set of entity mentions for an event: explicit
// code metadata when present (the attached-metadata path), supplemented by
// an identifier heuristic over the event's free-text content.
func entitiesFor(e *models.Event) map[string]struct{} {
	set := make(map[string]struct{})
	add := func(s string) {
		if s != "" {
			set[s] = struct{}{}
		}
	}

	if e.Code != nil {
		add(e.Code.FilePath)
		add(e.Code.SymbolName)
		add(e.Code.GitAuthor)
		add(e.Code.ErrorType)
	}
	for _, f := range e.Context.Files {
		add(f)
	}

	for _, tok := range identifierPattern.FindAllString(e.Content, -1) {
		if strings.ContainsAny(tok, "._/") || hasUppercaseAfterFirst(tok) {
			add(tok)
		}
	}
	return set
}

func hasUppercaseAfterFirst(s string) bool {
	for i, r := range s {
		if i == 0 {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

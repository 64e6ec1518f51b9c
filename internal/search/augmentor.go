package search

import (
	"context"
	"log/slog"

	"github.com/lanternsearch/lantern/internal/store"
)

// GraphAugmentor turns a candidate's graph connectivity into a bounded
// score boost. The boost saturates: boost = cap * (1 - 1/(1 + d/k))
// where d is the confidence-weighted degree, so it approaches cap
// asymptotically and an arbitrarily connected document can never gain
// more than cap.
type GraphAugmentor struct {
	corpus Corpus
	cap    float64
	k      float64
}

// NewGraphAugmentor creates an augmentor with the given cap and
// half-saturation constant.
func NewGraphAugmentor(corpus Corpus, boostCap, k float64) *GraphAugmentor {
	if boostCap < 0 {
		boostCap = 0
	}
	if k <= 0 {
		k = 1
	}
	return &GraphAugmentor{corpus: corpus, cap: boostCap, k: k}
}

// Boosts returns the graph boost per document id for the given
// candidates. A failed edge fetch degrades to zero boosts; suggest
// never fails because the graph leg did.
func (a *GraphAugmentor) Boosts(ctx context.Context, docIDs []string) map[string]float64 {
	boosts := make(map[string]float64, len(docIDs))
	if len(docIDs) == 0 || a.cap == 0 {
		return boosts
	}

	edges, err := a.corpus.EdgesForNodes(ctx, docIDs)
	if err != nil {
		slog.Warn("graph_boost_fetch_failed", slog.String("error", err.Error()))
		return boosts
	}

	inSet := make(map[string]struct{}, len(docIDs))
	for _, id := range docIDs {
		inSet[id] = struct{}{}
	}

	degrees := make(map[string]float64, len(docIDs))
	for _, e := range edges {
		w := edgeWeight(e)
		if _, ok := inSet[e.SourceNode]; ok {
			degrees[e.SourceNode] += w
		}
		if _, ok := inSet[e.TargetNode]; ok {
			degrees[e.TargetNode] += w
		}
	}

	for id, d := range degrees {
		boosts[id] = a.cap * (1 - 1/(1 + d/a.k))
	}
	return boosts
}

// edgeWeight is the edge's contribution to the weighted degree.
// Confidence scales weight; either defaults to 1 when unset.
func edgeWeight(e *store.GraphEdge) float64 {
	w := e.Weight
	if w <= 0 {
		w = 1
	}
	c := e.Confidence
	if c <= 0 || c > 1 {
		c = 1
	}
	return w * c
}

package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lanternsearch/lantern/internal/store"
)

func TestGraphBoostSaturatesBelowCap(t *testing.T) {
	corpus := newFakeCorpus()
	for i := 0; i < 48; i++ {
		corpus.edges = append(corpus.edges, &store.GraphEdge{
			ID:         fmt.Sprintf("e%d", i),
			SourceNode: "hub",
			TargetNode: fmt.Sprintf("leaf-%d", i),
			Weight:     1,
			Confidence: 1,
		})
	}

	a := NewGraphAugmentor(corpus, 0.15, 4.0)
	boosts := a.Boosts(context.Background(), []string{"hub"})

	assert.Greater(t, boosts["hub"], 0.0)
	assert.Less(t, boosts["hub"], 0.15, "boost approaches the cap but never reaches it")
}

func TestGraphBoostMonotonicInDegree(t *testing.T) {
	a := NewGraphAugmentor(newFakeCorpus(), 0.15, 4.0)

	mk := func(n int) map[string]float64 {
		corpus := newFakeCorpus()
		for i := 0; i < n; i++ {
			corpus.edges = append(corpus.edges, &store.GraphEdge{
				ID:         fmt.Sprintf("e%d", i),
				SourceNode: "node",
				TargetNode: fmt.Sprintf("leaf-%d", i),
				Weight:     1,
				Confidence: 1,
			})
		}
		a = NewGraphAugmentor(corpus, 0.15, 4.0)
		return a.Boosts(context.Background(), []string{"node"})
	}

	one := mk(1)["node"]
	four := mk(4)["node"]
	many := mk(100)["node"]

	assert.Less(t, one, four)
	assert.Less(t, four, many)
	assert.InDelta(t, 0.075, four, 1e-9, "degree k earns exactly half the cap")
}

func TestGraphBoostNoEdges(t *testing.T) {
	a := NewGraphAugmentor(newFakeCorpus(), 0.15, 4.0)
	boosts := a.Boosts(context.Background(), []string{"lonely"})
	assert.Zero(t, boosts["lonely"])
}

func TestGraphBoostWeightsAndConfidence(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.edges = []*store.GraphEdge{
		{ID: "a", SourceNode: "n", TargetNode: "x", Weight: 2, Confidence: 0.5},
		{ID: "b", SourceNode: "y", TargetNode: "n", Weight: 3, Confidence: 1},
	}
	a := NewGraphAugmentor(corpus, 0.15, 4.0)
	boosts := a.Boosts(context.Background(), []string{"n"})

	// Weighted degree 2*0.5 + 3*1 = 4 = k, so half the cap.
	assert.InDelta(t, 0.075, boosts["n"], 1e-9)
}

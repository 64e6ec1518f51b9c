package search

import (
	"math"
	"sort"
	"time"
)

// candidate is the engine's intermediate per-document state before
// reranking.
type candidate struct {
	docID      string
	title      string
	path       string
	updatedAt  time.Time
	rawLexical float64 // bm25-style, unbounded
	lexical    float64 // normalized 0-1 within the candidate set
	similarity float64 // best chunk cosine similarity 0-1
	graphBoost float64
	fromLex    bool
	fromVec    bool
	terms      []string // matched lexical terms, for snippets
	bestChunk  string   // text of the best-matching chunk, for evidence snippets
}

// LocalReranker merges lexical score, vector similarity, capped graph
// boost, and recency decay into one deterministic order. No model
// calls; identical inputs always yield identical output order.
type LocalReranker struct {
	tuning Tuning
	now    func() time.Time
}

// NewLocalReranker creates a reranker over the given tuning. now is
// the clock used for recency decay (nil = time.Now).
func NewLocalReranker(tuning Tuning, now func() time.Time) *LocalReranker {
	if now == nil {
		now = time.Now
	}
	return &LocalReranker{tuning: tuning, now: now}
}

// Rank scores and sorts candidates in place, highest first. Ties break
// by document id ascending so repeated queries return a stable order.
func (r *LocalReranker) Rank(cands []*candidate, typingMode bool) []scored {
	recencyWeight := r.tuning.RecencyWeight
	if typingMode {
		recencyWeight = r.tuning.TypingRecencyWeight
	}
	now := r.now()

	out := make([]scored, 0, len(cands))
	for _, c := range cands {
		s := r.tuning.LexicalWeight*c.lexical +
			r.tuning.VectorWeight*c.similarity +
			c.graphBoost +
			recencyWeight*r.recencyDecay(now, c.updatedAt)
		out = append(out, scored{candidate: c, score: s})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].candidate.docID < out[j].candidate.docID
	})
	return out
}

// recencyDecay is an exponential half-life decay in [0, 1]: 1 for a
// document touched now, 0.5 after one half-life.
func (r *LocalReranker) recencyDecay(now, updatedAt time.Time) float64 {
	if updatedAt.IsZero() || r.tuning.RecencyHalfLife <= 0 {
		return 0
	}
	age := now.Sub(updatedAt)
	if age <= 0 {
		return 1
	}
	halfLives := float64(age) / float64(r.tuning.RecencyHalfLife)
	return math.Pow(0.5, halfLives)
}

// scored pairs a candidate with its final score.
type scored struct {
	candidate *candidate
	score     float64
}

// reason derives the suggestion reason from the dominant signal.
func (s scored) reason(tuning Tuning) Reason {
	lex := tuning.LexicalWeight * s.candidate.lexical
	vec := tuning.VectorWeight * s.candidate.similarity
	if s.candidate.graphBoost > lex && s.candidate.graphBoost > vec {
		return ReasonGraph
	}
	if s.candidate.fromLex && lex >= vec {
		return ReasonLexical
	}
	return ReasonSemantic
}

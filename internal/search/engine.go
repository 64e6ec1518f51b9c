package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lanternsearch/lantern/internal/embed"
	"github.com/lanternsearch/lantern/internal/store"
	"github.com/lanternsearch/lantern/internal/telemetry"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine answers suggest queries by fusing the lexical and vector
// retrieval legs, applying the graph boost, and reranking locally.
type Engine struct {
	corpus     Corpus
	vectors    store.VectorIndex
	embedder   embed.Embedder
	tuning     Tuning
	classifier Classifier
	metrics    *telemetry.QueryMetrics
	augmentor  *GraphAugmentor
	reranker   *LocalReranker
	now        func() time.Time
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithTuning overrides the default ranking parameters.
func WithTuning(t Tuning) EngineOption {
	return func(e *Engine) { e.tuning = t }
}

// WithClassifier replaces the default pattern classifier.
func WithClassifier(c Classifier) EngineOption {
	return func(e *Engine) { e.classifier = c }
}

// WithMetrics sets an optional query telemetry collector.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithClock pins the clock used for recency decay. Tests use this to
// make decay deterministic.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a suggest engine over the given corpus, vector
// index, and embedder. Returns an error if any dependency is nil.
func NewEngine(corpus Corpus, vectors store.VectorIndex, embedder embed.Embedder, opts ...EngineOption) (*Engine, error) {
	if corpus == nil {
		return nil, fmt.Errorf("%w: corpus is required", ErrNilDependency)
	}
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}

	e := &Engine{
		corpus:     corpus,
		vectors:    vectors,
		embedder:   embedder,
		tuning:     DefaultTuning(),
		classifier: NewPatternClassifier(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.augmentor = NewGraphAugmentor(corpus, e.tuning.GraphBoostCap, e.tuning.GraphBoostK)
	e.reranker = NewLocalReranker(e.tuning, e.now)
	return e, nil
}

// Suggest answers one suggest query.
//
// Both retrieval legs run in parallel; one failed leg logs and
// degrades to the other. Vector-only candidates below the cosine floor
// are dropped entirely, so an empty result set is a correct answer
// when nothing clears it. Cold-partition documents are considered only
// when the request opts in and hot results are sparse.
func (e *Engine) Suggest(ctx context.Context, req Request) (*Response, error) {
	start := e.now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return &Response{Suggestions: []*Suggestion{}, QueryType: QueryTypeMixed}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = e.tuning.DefaultLimit
	}
	if limit > e.tuning.MaxLimit {
		limit = e.tuning.MaxLimit
	}
	fetchLimit := limit * e.tuning.CandidateMultiplier

	queryType, _ := e.classifier.Classify(ctx, query)

	legs, err := e.runLegs(ctx, query, req, fetchLimit)
	if err != nil {
		return nil, err
	}

	hot, cold, bodies, err := e.assemble(ctx, legs, req)
	if err != nil {
		return nil, err
	}

	suggestions := e.rankPartition(ctx, hot, bodies, query, req.TypingMode)
	suggestions = e.aggregateDirectories(suggestions)

	if len(suggestions) < limit && req.IncludeColdPartitionFallback {
		coldLex, lexErr := e.corpus.LexicalSearch(ctx, query, req.SourceFilters, store.PartitionCold, fetchLimit)
		if lexErr != nil {
			slog.Warn("cold_lexical_leg_failed", slog.String("error", lexErr.Error()))
		} else {
			cold = e.mergeLexical(ctx, cold, coldLex, bodies)
		}
		coldSuggestions := e.rankPartition(ctx, cold, bodies, query, req.TypingMode)
		suggestions = append(suggestions, coldSuggestions...)
	}

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}

	elapsed := e.now().Sub(start)
	e.recordMetrics(query, queryType, len(suggestions), elapsed)

	return &Response{Suggestions: suggestions, QueryType: queryType, Elapsed: elapsed}, nil
}

// legResults carries the raw output of the two retrieval legs.
type legResults struct {
	lexical []*store.LexicalResult
	vector  []*store.VectorResult
}

// runLegs executes the lexical (hot partition) and vector legs in
// parallel. A single failed leg logs and degrades; both failing is an
// error.
func (e *Engine) runLegs(ctx context.Context, query string, req Request, fetchLimit int) (*legResults, error) {
	g, gctx := errgroup.WithContext(ctx)

	var (
		legs           legResults
		lexErr, vecErr error
	)

	g.Go(func() error {
		var err error
		legs.lexical, err = e.corpus.LexicalSearch(gctx, query, req.SourceFilters, store.PartitionHot, fetchLimit)
		if err != nil {
			lexErr = err
		}
		return nil
	})

	g.Go(func() error {
		if e.vectors.Count() == 0 {
			return nil
		}
		embedding, err := e.embedder.Embed(gctx, query)
		if err != nil {
			vecErr = err
			return nil
		}
		if e.metrics != nil {
			e.metrics.RecordQueryEmbedding(embedding)
		}
		legs.vector, err = e.vectors.Search(gctx, embedding, fetchLimit*2)
		if err != nil {
			vecErr = err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if lexErr != nil && vecErr != nil {
		return nil, errors.Join(lexErr, vecErr)
	}
	if lexErr != nil {
		slog.Warn("lexical_leg_failed", slog.String("error", lexErr.Error()))
	}
	if vecErr != nil {
		slog.Warn("vector_leg_failed", slog.String("error", vecErr.Error()))
	}
	return &legs, nil
}

// assemble resolves leg hits to documents and splits candidates by
// partition tier. Vector-only candidates below the similarity floor
// are dropped here. bodies carries document text for snippet building.
func (e *Engine) assemble(ctx context.Context, legs *legResults, req Request) (hot, cold map[string]*candidate, bodies map[string]string, err error) {
	byDoc := make(map[string]*candidate)

	// Vector hits are per chunk; resolve to documents keeping the best
	// similarity per document.
	if len(legs.vector) > 0 {
		chunkIDs := make([]string, 0, len(legs.vector))
		simByChunk := make(map[string]float64, len(legs.vector))
		for _, v := range legs.vector {
			chunkIDs = append(chunkIDs, v.ChunkID)
			simByChunk[v.ChunkID] = float64(v.Score)
		}
		chunks, chunkErr := e.corpus.ChunksByID(ctx, chunkIDs)
		if chunkErr != nil {
			return nil, nil, nil, fmt.Errorf("resolve vector hits: %w", chunkErr)
		}
		for _, ch := range chunks {
			sim := simByChunk[ch.ID]
			c, ok := byDoc[ch.DocumentID]
			if !ok {
				c = &candidate{docID: ch.DocumentID}
				byDoc[ch.DocumentID] = c
			}
			c.fromVec = true
			if sim > c.similarity {
				c.similarity = sim
				c.bestChunk = ch.Text
			}
		}
	}

	for _, l := range legs.lexical {
		c, ok := byDoc[l.DocumentID]
		if !ok {
			c = &candidate{docID: l.DocumentID}
			byDoc[l.DocumentID] = c
		}
		c.fromLex = true
		if l.Score > c.rawLexical {
			c.rawLexical = l.Score
		}
		c.terms = l.MatchedTerms
	}

	allowedSources := make(map[string]struct{}, len(req.SourceFilters))
	for _, f := range req.SourceFilters {
		allowedSources[f] = struct{}{}
	}

	hot = make(map[string]*candidate)
	cold = make(map[string]*candidate)
	bodies = make(map[string]string, len(byDoc))

	for id, c := range byDoc {
		doc, fetchErr := e.corpus.FetchDocument(ctx, id)
		if fetchErr != nil {
			return nil, nil, nil, fmt.Errorf("fetch candidate %s: %w", id, fetchErr)
		}
		if doc == nil || !doc.Searchable {
			continue // index orphan or tombstoned document
		}
		if len(allowedSources) > 0 {
			if _, ok := allowedSources[doc.SourceType]; !ok {
				continue
			}
		}
		if c.fromVec && !c.fromLex && c.similarity < e.tuning.MinVectorSimilarity {
			continue
		}

		c.title = doc.Title
		c.path = doc.Path
		c.updatedAt = doc.UpdatedAt
		bodies[id] = doc.Body

		if doc.Partition == store.PartitionCold {
			cold[id] = c
		} else {
			hot[id] = c
		}
	}

	normalizeLexical(hot, cold)
	return hot, cold, bodies, nil
}

// normalizeLexical scales raw bm25-style scores to [0, 1] across the
// whole candidate set so the lexical weight is comparable to cosine
// similarity.
func normalizeLexical(sets ...map[string]*candidate) {
	var maxRaw float64
	for _, set := range sets {
		for _, c := range set {
			if c.rawLexical > maxRaw {
				maxRaw = c.rawLexical
			}
		}
	}
	if maxRaw <= 0 {
		return
	}
	for _, set := range sets {
		for _, c := range set {
			c.lexical = c.rawLexical / maxRaw
		}
	}
}

// rankPartition boosts, reranks, and renders one partition's
// candidates.
func (e *Engine) rankPartition(ctx context.Context, cands map[string]*candidate, bodies map[string]string, query string, typingMode bool) []*Suggestion {
	if len(cands) == 0 {
		return []*Suggestion{}
	}

	ids := make([]string, 0, len(cands))
	list := make([]*candidate, 0, len(cands))
	for id, c := range cands {
		ids = append(ids, id)
		list = append(list, c)
	}

	boosts := e.augmentor.Boosts(ctx, ids)
	for _, c := range list {
		c.graphBoost = boosts[c.docID]
	}

	ranked := e.reranker.Rank(list, typingMode)

	suggestions := make([]*Suggestion, 0, len(ranked))
	for _, s := range ranked {
		c := s.candidate
		suggestions = append(suggestions, &Suggestion{
			DocumentID:       c.docID,
			Title:            c.title,
			Path:             c.path,
			Reason:           s.reason(e.tuning),
			Score:            s.score,
			LexicalScore:     c.lexical,
			VectorSimilarity: c.similarity,
			GraphBoost:       c.graphBoost,
			Snippet:          buildSnippet(c, bodies[c.docID], query),
			UpdatedAt:        c.updatedAt,
		})
	}
	return suggestions
}

// aggregateDirectories surfaces a parent directory as its own
// suggestion when enough of its children matched. The directory
// competes at its best member's score rather than being relegated.
func (e *Engine) aggregateDirectories(suggestions []*Suggestion) []*Suggestion {
	if e.tuning.DirectoryMinMembers <= 0 {
		return suggestions
	}

	type group struct {
		members  int
		topScore float64
		latest   time.Time
	}
	groups := make(map[string]*group)
	for _, s := range suggestions {
		if s.IsDirectory || s.Path == "" {
			continue
		}
		dir := filepath.Dir(s.Path)
		if dir == "." || dir == string(filepath.Separator) {
			continue
		}
		g, ok := groups[dir]
		if !ok {
			g = &group{}
			groups[dir] = g
		}
		g.members++
		if s.Score > g.topScore {
			g.topScore = s.Score
		}
		if s.UpdatedAt.After(g.latest) {
			g.latest = s.UpdatedAt
		}
	}

	for dir, g := range groups {
		if g.members < e.tuning.DirectoryMinMembers {
			continue
		}
		suggestions = append(suggestions, &Suggestion{
			DocumentID:  "dir:" + dir,
			Title:       filepath.Base(dir),
			Path:        dir,
			Reason:      ReasonDirectory,
			Score:       g.topScore,
			UpdatedAt:   g.latest,
			IsDirectory: true,
			MemberCount: g.members,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		// A directory ties its best member; the member stays ahead.
		if suggestions[i].IsDirectory != suggestions[j].IsDirectory {
			return !suggestions[i].IsDirectory
		}
		return suggestions[i].DocumentID < suggestions[j].DocumentID
	})
	return suggestions
}

// mergeLexical folds a cold lexical leg into the cold candidate set.
func (e *Engine) mergeLexical(ctx context.Context, cold map[string]*candidate, results []*store.LexicalResult, bodies map[string]string) map[string]*candidate {
	if cold == nil {
		cold = make(map[string]*candidate)
	}
	for _, l := range results {
		if c, ok := cold[l.DocumentID]; ok {
			c.fromLex = true
			if l.Score > c.rawLexical {
				c.rawLexical = l.Score
			}
			c.terms = l.MatchedTerms
			continue
		}
		doc, err := e.corpus.FetchDocument(ctx, l.DocumentID)
		if err != nil || doc == nil || !doc.Searchable {
			continue
		}
		cold[l.DocumentID] = &candidate{
			docID:      l.DocumentID,
			title:      doc.Title,
			path:       doc.Path,
			updatedAt:  doc.UpdatedAt,
			rawLexical: l.Score,
			fromLex:    true,
			terms:      l.MatchedTerms,
		}
		bodies[l.DocumentID] = doc.Body
	}
	normalizeLexical(cold)
	return cold
}

// recordMetrics records query telemetry if a collector is configured.
func (e *Engine) recordMetrics(query string, queryType QueryType, resultCount int, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   queryType,
		ResultCount: resultCount,
		Latency:     latency,
		Timestamp:   e.now(),
	})
}

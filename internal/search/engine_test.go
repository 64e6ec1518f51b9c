package search

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternsearch/lantern/internal/embed"
	"github.com/lanternsearch/lantern/internal/store"
)

// fakeCorpus is an in-memory Corpus with canned lexical results.
type fakeCorpus struct {
	docs    map[string]*store.Document
	chunks  map[string]*store.Chunk
	edges   []*store.GraphEdge
	lexical map[store.Partition][]*store.LexicalResult
	lexErr  error
}

func newFakeCorpus() *fakeCorpus {
	return &fakeCorpus{
		docs:    make(map[string]*store.Document),
		chunks:  make(map[string]*store.Chunk),
		lexical: make(map[store.Partition][]*store.LexicalResult),
	}
}

func (f *fakeCorpus) LexicalSearch(_ context.Context, _ string, _ []string, partitionFilter store.Partition, limit int) ([]*store.LexicalResult, error) {
	if f.lexErr != nil {
		return nil, f.lexErr
	}
	results := f.lexical[partitionFilter]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (f *fakeCorpus) EdgesForNodes(_ context.Context, nodeIDs []string) ([]*store.GraphEdge, error) {
	want := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		want[id] = struct{}{}
	}
	var out []*store.GraphEdge
	for _, e := range f.edges {
		if _, ok := want[e.SourceNode]; ok {
			out = append(out, e)
			continue
		}
		if _, ok := want[e.TargetNode]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeCorpus) FetchDocument(_ context.Context, id string) (*store.Document, error) {
	return f.docs[id], nil
}

func (f *fakeCorpus) ChunksByID(_ context.Context, ids []string) ([]*store.Chunk, error) {
	var out []*store.Chunk
	for _, id := range ids {
		if c, ok := f.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeVectors is an in-memory VectorIndex returning canned hits.
type fakeVectors struct {
	results []*store.VectorResult
	err     error
}

func (f *fakeVectors) Add(context.Context, []string, [][]float32) error { return nil }
func (f *fakeVectors) Delete(context.Context, []string) error           { return nil }
func (f *fakeVectors) Count() int                                       { return len(f.results) }
func (f *fakeVectors) Dimensions() int                                  { return embed.DefaultStaticDimensions }
func (f *fakeVectors) Save(string) error                                { return nil }
func (f *fakeVectors) Load(string) error                                { return nil }
func (f *fakeVectors) Close() error                                     { return nil }

func (f *fakeVectors) Search(_ context.Context, _ []float32, k int) ([]*store.VectorResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	results := f.results
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// addVectorDoc registers a searchable hot document with one chunk and
// a canned vector hit at the given similarity.
func addVectorDoc(c *fakeCorpus, v *fakeVectors, id, title, path string, updatedAt time.Time, sim float32) {
	c.docs[id] = &store.Document{
		ID:         id,
		SourceType: store.SourceTypeFile,
		SourceID:   path,
		Title:      title,
		Body:       "body of " + title,
		Path:       path,
		UpdatedAt:  updatedAt,
		Partition:  store.PartitionHot,
		Searchable: true,
	}
	chunkID := "chunk-" + id
	c.chunks[chunkID] = &store.Chunk{ID: chunkID, DocumentID: id, Ordinal: 0, Text: "chunk text of " + title}
	v.results = append(v.results, &store.VectorResult{ChunkID: chunkID, Score: sim})
}

// fixedEmbedder returns the same vector for every text.
type fixedEmbedder struct{ vec []float32 }

func (f *fixedEmbedder) Embed(context.Context, string) ([]float32, error) { return f.vec, nil }
func (f *fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vec
	}
	return out, nil
}
func (f *fixedEmbedder) Dimensions() int                { return len(f.vec) }
func (f *fixedEmbedder) ModelName() string              { return "fixed" }
func (f *fixedEmbedder) Available(context.Context) bool { return true }
func (f *fixedEmbedder) Close() error                   { return nil }

func newTestEngine(t *testing.T, corpus Corpus, vectors store.VectorIndex, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(corpus, vectors, embed.NewStaticEmbedder(), opts...)
	require.NoError(t, err)
	return e
}

func TestSuggestEmptyQuery(t *testing.T) {
	e := newTestEngine(t, newFakeCorpus(), &fakeVectors{})

	resp, err := e.Suggest(context.Background(), Request{Query: "   "})
	require.NoError(t, err)
	assert.Empty(t, resp.Suggestions)
}

func TestSuggestVectorFloorRejectsWeakMatch(t *testing.T) {
	corpus := newFakeCorpus()
	vectors := &fakeVectors{}
	addVectorDoc(corpus, vectors, "doc1", "Unrelated Notes", "/notes/unrelated.md", time.Now(), 0.02)

	e := newTestEngine(t, corpus, vectors)
	resp, err := e.Suggest(context.Background(), Request{Query: "quarterly budget"})
	require.NoError(t, err)
	assert.Empty(t, resp.Suggestions, "a 0.02-similarity vector-only candidate must be dropped even with no competition")
}

// The floor must hold against the real HNSW index, not just the fake:
// the index reports raw cosine similarity and the floor compares on
// the same scale, so the two cannot drift apart.
func TestSuggestVectorFloorWithRealIndex(t *testing.T) {
	ctx := context.Background()
	corpus := newFakeCorpus()

	idx, err := store.NewHNSWIndex(2)
	require.NoError(t, err)
	defer idx.Close()

	addRealDoc := func(id, title, path string, cos float64) {
		corpus.docs[id] = &store.Document{
			ID:         id,
			SourceType: store.SourceTypeFile,
			SourceID:   path,
			Title:      title,
			Body:       "body of " + title,
			Path:       path,
			UpdatedAt:  time.Now(),
			Partition:  store.PartitionHot,
			Searchable: true,
		}
		chunkID := "chunk-" + id
		corpus.chunks[chunkID] = &store.Chunk{ID: chunkID, DocumentID: id, Text: "chunk text of " + title}
		// Unit vector at the given cosine to the {1, 0} query axis.
		vec := []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
		require.NoError(t, idx.Add(ctx, []string{chunkID}, [][]float32{vec}))
	}

	addRealDoc("weak", "Unrelated Notes", "/notes/unrelated.md", 0.02)

	e, err := NewEngine(corpus, idx, &fixedEmbedder{vec: []float32{1, 0}})
	require.NoError(t, err)

	resp, err := e.Suggest(ctx, Request{Query: "quarterly budget"})
	require.NoError(t, err)
	assert.Empty(t, resp.Suggestions,
		"a near-orthogonal chunk in the real index must not clear the similarity floor")

	// Control: a genuinely similar chunk surfaces through the same path.
	addRealDoc("strong", "Quarterly Budget", "/docs/budget.md", 0.72)

	resp, err = e.Suggest(ctx, Request{Query: "quarterly budget"})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "strong", resp.Suggestions[0].DocumentID)
	assert.InDelta(t, 0.72, resp.Suggestions[0].VectorSimilarity, 0.01)
}

func TestSuggestGraphBoostCannotOvertakeStrongMatch(t *testing.T) {
	corpus := newFakeCorpus()
	vectors := &fakeVectors{}
	now := time.Now()

	addVectorDoc(corpus, vectors, "strong", "Quarterly Plan", "/docs/plan.docx", now, 0.72)
	addVectorDoc(corpus, vectors, "weak", "Meeting Stub", "/misc/stub.md", now, 0.31)

	// 48 edges on the weak document.
	for i := 0; i < 48; i++ {
		corpus.edges = append(corpus.edges, &store.GraphEdge{
			ID:         fmt.Sprintf("edge-%d", i),
			SourceNode: "weak",
			TargetNode: fmt.Sprintf("other-%d", i),
			EdgeType:   "references",
			Weight:     1,
			Confidence: 1,
		})
	}

	e := newTestEngine(t, corpus, vectors)
	resp, err := e.Suggest(context.Background(), Request{Query: "quarterly plan"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(resp.Suggestions), 2)

	assert.Equal(t, "strong", resp.Suggestions[0].DocumentID)
	assert.Equal(t, "weak", resp.Suggestions[1].DocumentID, "the graph-heavy document still surfaces, just not first")
	assert.Less(t, resp.Suggestions[1].GraphBoost, e.tuning.GraphBoostCap)
	assert.Greater(t, resp.Suggestions[1].GraphBoost, 0.0)
}

func TestSuggestTypingModeSimilarityDominatesRecency(t *testing.T) {
	corpus := newFakeCorpus()
	vectors := &fakeVectors{}
	now := time.Now()

	tuning := DefaultTuning()
	tuning.MinVectorSimilarity = 0.05 // keep the weak cohort in play

	addVectorDoc(corpus, vectors, "old-similar", "Architecture Overview", "/docs/arch.md", now.AddDate(0, 0, -120), 0.72)
	for i := 0; i < 260; i++ {
		id := fmt.Sprintf("fresh-%03d", i)
		addVectorDoc(corpus, vectors, id, "Daily Note", fmt.Sprintf("/notes/daily-%03d.md", i), now, 0.19)
	}

	e := newTestEngine(t, corpus, vectors, WithTuning(tuning))
	resp, err := e.Suggest(context.Background(), Request{Query: "system architecture", TypingMode: true, Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Suggestions)

	assert.Equal(t, "old-similar", resp.Suggestions[0].DocumentID,
		"one stale high-similarity document outranks a large fresh weakly-similar population")
}

func TestSuggestMergesLexicalAndVectorLegs(t *testing.T) {
	corpus := newFakeCorpus()
	vectors := &fakeVectors{}
	now := time.Now()

	addVectorDoc(corpus, vectors, "doc1", "Project Roadmap", "/docs/roadmap.md", now, 0.55)
	corpus.docs["doc1"].Body = "The roadmap covers the next two quarters of delivery."
	corpus.lexical[store.PartitionHot] = []*store.LexicalResult{
		{DocumentID: "doc1", Score: 4.2, MatchedTerms: []string{"roadmap"}},
	}

	e := newTestEngine(t, corpus, vectors)
	resp, err := e.Suggest(context.Background(), Request{Query: "roadmap"})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1, "both legs hitting the same doc yields one suggestion")

	s := resp.Suggestions[0]
	assert.Equal(t, ReasonLexical, s.Reason)
	assert.Equal(t, 1.0, s.LexicalScore, "sole lexical hit normalizes to 1")
	assert.InDelta(t, 0.55, s.VectorSimilarity, 1e-9)
	assert.Contains(t, s.Snippet, "roadmap")
}

func TestSuggestVectorOnlyReasonSemantic(t *testing.T) {
	corpus := newFakeCorpus()
	vectors := &fakeVectors{}
	addVectorDoc(corpus, vectors, "doc1", "Holiday Itinerary", "/docs/trip.md", time.Now(), 0.6)

	e := newTestEngine(t, corpus, vectors)
	resp, err := e.Suggest(context.Background(), Request{Query: "vacation plans"})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)

	s := resp.Suggestions[0]
	assert.Equal(t, ReasonSemantic, s.Reason)
	assert.Equal(t, "chunk text of Holiday Itinerary", s.Snippet,
		"vector evidence without title overlap shows the matching chunk")
}

func TestSuggestDirectoryAggregation(t *testing.T) {
	corpus := newFakeCorpus()
	vectors := &fakeVectors{}
	now := time.Now()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("member-%d", i)
		addVectorDoc(corpus, vectors, id, fmt.Sprintf("Spec Part %d", i), fmt.Sprintf("/work/specs/part-%d.md", i), now, 0.5+0.05*float32(i))
	}
	addVectorDoc(corpus, vectors, "loner", "Stray Note", "/misc/stray.md", now, 0.45)

	e := newTestEngine(t, corpus, vectors)
	resp, err := e.Suggest(context.Background(), Request{Query: "specification"})
	require.NoError(t, err)

	var dir *Suggestion
	var topMember float64
	for _, s := range resp.Suggestions {
		if s.IsDirectory {
			dir = s
			continue
		}
		if strings.HasPrefix(s.Path, "/work/specs/") && s.Score > topMember {
			topMember = s.Score
		}
	}
	require.NotNil(t, dir, "three matches under one directory surface the directory itself")
	assert.Equal(t, "/work/specs", dir.Path)
	assert.Equal(t, ReasonDirectory, dir.Reason)
	assert.Equal(t, 3, dir.MemberCount)
	assert.Equal(t, topMember, dir.Score, "the directory competes at its best member's score")

	// No directory suggestion for the single stray match.
	for _, s := range resp.Suggestions {
		if s.IsDirectory {
			assert.NotEqual(t, "/misc", s.Path)
		}
	}
}

func TestSuggestColdPartitionFallback(t *testing.T) {
	corpus := newFakeCorpus()
	vectors := &fakeVectors{}
	now := time.Now()

	addVectorDoc(corpus, vectors, "hot1", "Active Plan", "/docs/active.md", now, 0.6)
	corpus.docs["cold1"] = &store.Document{
		ID:         "cold1",
		SourceType: store.SourceTypeFile,
		SourceID:   "/archive/old.md",
		Title:      "Archived Plan",
		Body:       "archived plan contents",
		Path:       "/archive/old.md",
		UpdatedAt:  now.AddDate(-1, 0, 0),
		Partition:  store.PartitionCold,
		Searchable: true,
	}
	corpus.lexical[store.PartitionCold] = []*store.LexicalResult{
		{DocumentID: "cold1", Score: 3.0, MatchedTerms: []string{"plan"}},
	}

	e := newTestEngine(t, corpus, vectors)

	resp, err := e.Suggest(context.Background(), Request{Query: "plan"})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1, "cold documents stay hidden without the fallback opt-in")

	resp, err = e.Suggest(context.Background(), Request{Query: "plan", IncludeColdPartitionFallback: true})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 2)
	assert.Equal(t, "hot1", resp.Suggestions[0].DocumentID, "hot results rank ahead of cold fill")
	assert.Equal(t, "cold1", resp.Suggestions[1].DocumentID)
}

func TestSuggestVectorLegFailureDegrades(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.docs["doc1"] = &store.Document{
		ID: "doc1", SourceType: store.SourceTypeFile, Title: "Notes", Body: "meeting notes",
		Path: "/docs/notes.md", UpdatedAt: time.Now(), Partition: store.PartitionHot, Searchable: true,
	}
	corpus.lexical[store.PartitionHot] = []*store.LexicalResult{
		{DocumentID: "doc1", Score: 2.0, MatchedTerms: []string{"notes"}},
	}
	vectors := &fakeVectors{
		results: []*store.VectorResult{{ChunkID: "missing", Score: 0.9}},
		err:     assert.AnError,
	}

	e := newTestEngine(t, corpus, vectors)
	resp, err := e.Suggest(context.Background(), Request{Query: "notes"})
	require.NoError(t, err, "a single failed leg degrades gracefully")
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "doc1", resp.Suggestions[0].DocumentID)
}

func TestSuggestBothLegsFailing(t *testing.T) {
	corpus := newFakeCorpus()
	corpus.lexErr = assert.AnError
	vectors := &fakeVectors{
		results: []*store.VectorResult{{ChunkID: "missing", Score: 0.9}},
		err:     assert.AnError,
	}

	e := newTestEngine(t, corpus, vectors)
	_, err := e.Suggest(context.Background(), Request{Query: "anything"})
	require.Error(t, err)
}

func TestSuggestStableTieBreakByDocumentID(t *testing.T) {
	corpus := newFakeCorpus()
	vectors := &fakeVectors{}
	now := time.Now()

	// Identical signals in different directories; only the id differs.
	addVectorDoc(corpus, vectors, "bbb", "Twin B", "/x/twin-b.md", now, 0.5)
	addVectorDoc(corpus, vectors, "aaa", "Twin A", "/y/twin-a.md", now, 0.5)

	e := newTestEngine(t, corpus, vectors)
	resp, err := e.Suggest(context.Background(), Request{Query: "twin"})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 2)
	assert.Equal(t, "aaa", resp.Suggestions[0].DocumentID)
	assert.Equal(t, "bbb", resp.Suggestions[1].DocumentID)
}

func TestSuggestSkipsUnsearchableAndOrphans(t *testing.T) {
	corpus := newFakeCorpus()
	vectors := &fakeVectors{}
	now := time.Now()

	addVectorDoc(corpus, vectors, "visible", "Visible", "/docs/visible.md", now, 0.6)
	addVectorDoc(corpus, vectors, "hidden", "Hidden", "/docs/hidden.md", now, 0.8)
	corpus.docs["hidden"].Searchable = false

	// Orphan: chunk hit whose document no longer exists.
	corpus.chunks["chunk-gone"] = &store.Chunk{ID: "chunk-gone", DocumentID: "gone", Text: "stale"}
	vectors.results = append(vectors.results, &store.VectorResult{ChunkID: "chunk-gone", Score: 0.9})

	e := newTestEngine(t, corpus, vectors)
	resp, err := e.Suggest(context.Background(), Request{Query: "visible"})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "visible", resp.Suggestions[0].DocumentID)
}

func TestSuggestSourceFilter(t *testing.T) {
	corpus := newFakeCorpus()
	vectors := &fakeVectors{}
	addVectorDoc(corpus, vectors, "file1", "File Doc", "/docs/file.md", time.Now(), 0.6)
	corpus.docs["file1"].SourceType = "file"

	e := newTestEngine(t, corpus, vectors)

	resp, err := e.Suggest(context.Background(), Request{Query: "doc", SourceFilters: []string{"calendar"}})
	require.NoError(t, err)
	assert.Empty(t, resp.Suggestions)

	resp, err = e.Suggest(context.Background(), Request{Query: "doc", SourceFilters: []string{"file"}})
	require.NoError(t, err)
	assert.Len(t, resp.Suggestions, 1)
}

func TestNewEngineNilDependencies(t *testing.T) {
	_, err := NewEngine(nil, &fakeVectors{}, embed.NewStaticEmbedder())
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(newFakeCorpus(), nil, embed.NewStaticEmbedder())
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(newFakeCorpus(), &fakeVectors{}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, s.OpenAndMigrate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDoc(path, title, body string) *Document {
	return &Document{
		ID:         DocumentID(SourceTypeFile, path),
		SourceType: SourceTypeFile,
		SourceID:   path,
		Title:      title,
		Body:       body,
		Path:       path,
		UpdatedAt:  time.Now(),
		Risk:       RiskNone,
		Partition:  PartitionHot,
		Searchable: true,
	}
}

func TestOpenAndMigrateIdempotent(t *testing.T) {
	s := newTestStore(t, Options{})
	require.NoError(t, s.OpenAndMigrate())
	require.NoError(t, s.OpenAndMigrate())
}

func TestUpsertReplacesChunkSetWholesale(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	doc := testDoc("/home/u/plan.docx", "Quarterly Plan", "budget planning review")
	first := []*Chunk{
		{ID: ChunkID(doc.ID, 0), DocumentID: doc.ID, Ordinal: 0, Text: "budget planning"},
		{ID: ChunkID(doc.ID, 1), DocumentID: doc.ID, Ordinal: 1, Text: "review schedule"},
		{ID: ChunkID(doc.ID, 2), DocumentID: doc.ID, Ordinal: 2, Text: "appendix"},
	}
	require.NoError(t, s.UpsertDocument(ctx, doc, first))

	// Re-upsert with fewer chunks: the old set must be gone entirely.
	second := []*Chunk{
		{ID: ChunkID(doc.ID, 0), DocumentID: doc.ID, Ordinal: 0, Text: "revised budget"},
	}
	require.NoError(t, s.UpsertDocument(ctx, doc, second))

	chunks, err := s.ChunksForDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "revised budget", chunks[0].Text)

	count, err := s.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-upsert must not accumulate duplicates")
}

func TestIngestionAttemptCurrency(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	modTime := time.Now().Add(-time.Hour)

	// No attempt recorded: not current.
	current, err := s.IsIngestionAttemptCurrent(ctx, SourceTypeFile, "/a.docx", modTime)
	require.NoError(t, err)
	assert.False(t, current)

	// Success at modTime: current for the same or older modTime.
	require.NoError(t, s.RecordIngestionAttempt(ctx, SourceTypeFile, "/a.docx", "/a.docx", modTime, OutcomeSuccess))
	current, err = s.IsIngestionAttemptCurrent(ctx, SourceTypeFile, "/a.docx", modTime)
	require.NoError(t, err)
	assert.True(t, current)

	// File modified since: no longer current.
	current, err = s.IsIngestionAttemptCurrent(ctx, SourceTypeFile, "/a.docx", modTime.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, current)

	// Unsupported and failed are cached as current.
	for _, outcome := range []Outcome{OutcomeUnsupported, OutcomeFailed} {
		require.NoError(t, s.RecordIngestionAttempt(ctx, SourceTypeFile, "/b.bin", "/b.bin", modTime, outcome))
		current, err = s.IsIngestionAttemptCurrent(ctx, SourceTypeFile, "/b.bin", modTime)
		require.NoError(t, err)
		assert.True(t, current, "outcome %s should be cached", outcome)
	}

	// Partial is never current, even with an up-to-date fingerprint.
	require.NoError(t, s.RecordIngestionAttempt(ctx, SourceTypeFile, "/slow.pdf", "/slow.pdf", modTime, OutcomePartial))
	current, err = s.IsIngestionAttemptCurrent(ctx, SourceTypeFile, "/slow.pdf", modTime)
	require.NoError(t, err)
	assert.False(t, current, "partial attempts must always be retried")
}

func TestPurgeFileDocumentsForExtensions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	modTime := time.Now().Add(-time.Hour)
	paths := []string{"/u/one.doc", "/u/two.docx", "/u/three.pdf", "/u/four.txt"}
	for _, p := range paths {
		doc := testDoc(p, filepath.Base(p), "content of "+p)
		doc.UpdatedAt = modTime
		require.NoError(t, s.UpsertDocument(ctx, doc, nil))
		require.NoError(t, s.RecordIngestionAttempt(ctx, SourceTypeFile, p, p, modTime, OutcomeSuccess))
	}

	removed, err := s.PurgeFileDocumentsForExtensions(ctx, []string{"doc", "docx"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// Purged documents are gone; attempts no longer current despite an
	// unchanged updatedAt.
	for _, p := range []string{"/u/one.doc", "/u/two.docx"} {
		doc, err := s.FetchDocument(ctx, DocumentID(SourceTypeFile, p))
		require.NoError(t, err)
		assert.Nil(t, doc)

		current, err := s.IsIngestionAttemptCurrent(ctx, SourceTypeFile, p, modTime)
		require.NoError(t, err)
		assert.False(t, current, "purge must invalidate the attempt for %s", p)
	}

	// Other documents and attempts untouched.
	for _, p := range []string{"/u/three.pdf", "/u/four.txt"} {
		doc, err := s.FetchDocument(ctx, DocumentID(SourceTypeFile, p))
		require.NoError(t, err)
		require.NotNil(t, doc)

		current, err := s.IsIngestionAttemptCurrent(ctx, SourceTypeFile, p, modTime)
		require.NoError(t, err)
		assert.True(t, current)
	}
}

func TestDeleteDocumentsForPathCascadesEdges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	inside := testDoc("/u/projects/alpha/notes.md", "Alpha Notes", "alpha notes")
	outside := testDoc("/u/other/beta.md", "Beta", "beta notes")
	require.NoError(t, s.UpsertDocument(ctx, inside, []*Chunk{
		{ID: ChunkID(inside.ID, 0), DocumentID: inside.ID, Ordinal: 0, Text: "alpha notes"},
	}))
	require.NoError(t, s.UpsertDocument(ctx, outside, nil))

	now := time.Now()
	require.NoError(t, s.InsertGraphEdges(ctx, []*GraphEdge{
		{ID: "e1", SourceNode: inside.ID, TargetNode: outside.ID, EdgeType: "references", Weight: 1, EventTime: now, UpdatedAt: now},
		{ID: "e2", SourceNode: outside.ID, TargetNode: inside.ID, EdgeType: "references", Weight: 1, EventTime: now, UpdatedAt: now},
		{ID: "e3", SourceNode: outside.ID, TargetNode: "entity:misc", EdgeType: "mentions", Weight: 1, EventTime: now, UpdatedAt: now},
	}))

	count, err := s.DeleteDocumentsForPath(ctx, SourceTypeFile, "/u/projects/alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// No dangling edges: both edges touching the removed node are gone.
	edges, err := s.EdgesForNodes(ctx, []string{inside.ID, outside.ID})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "e3", edges[0].ID)

	chunks, err := s.ChunksForDocument(ctx, inside.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestDeleteDocumentsForPathPrefixIsLiteral(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	// Underscores in paths must not act as LIKE wildcards.
	keep := testDoc("/u/myXdir/keep.md", "Keep", "keep")
	drop := testDoc("/u/my_dir/drop.md", "Drop", "drop")
	require.NoError(t, s.UpsertDocument(ctx, keep, nil))
	require.NoError(t, s.UpsertDocument(ctx, drop, nil))

	count, err := s.DeleteDocumentsForPath(ctx, SourceTypeFile, "/u/my_dir")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	doc, err := s.FetchDocument(ctx, keep.ID)
	require.NoError(t, err)
	assert.NotNil(t, doc)
}

func TestLexicalSearchRanksTitleAndBody(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	docs := []*Document{
		testDoc("/u/roadmap.docx", "Product Roadmap", "release milestones and planning"),
		testDoc("/u/groceries.txt", "Groceries", "milk eggs bread"),
		testDoc("/u/retro.md", "Sprint Retro", "planning discussion notes"),
	}
	for _, d := range docs {
		require.NoError(t, s.UpsertDocument(ctx, d, nil))
	}

	results, err := s.LexicalSearch(ctx, "planning roadmap", nil, "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, DocumentID(SourceTypeFile, "/u/roadmap.docx"), results[0].DocumentID)

	for _, r := range results {
		assert.NotEqual(t, DocumentID(SourceTypeFile, "/u/groceries.txt"), r.DocumentID)
	}
}

func TestLexicalSearchPartitionFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	hot := testDoc("/u/current.md", "Current Plan", "planning now")
	cold := testDoc("/u/archive/old.md", "Old Plan", "planning archive")
	cold.Partition = PartitionCold
	require.NoError(t, s.UpsertDocument(ctx, hot, nil))
	require.NoError(t, s.UpsertDocument(ctx, cold, nil))

	results, err := s.LexicalSearch(ctx, "planning", nil, PartitionHot, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hot.ID, results[0].DocumentID)

	results, err = s.LexicalSearch(ctx, "planning", nil, "", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestQueueSnapshotRing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{QueueReclaimBytes: 1})

	makeItems := func(n int) []IngestionEvent {
		items := make([]IngestionEvent, n)
		for i := range items {
			items[i] = IngestionEvent{
				SourceType: SourceTypeFile,
				SourceID:   fmt.Sprintf("/u/f%04d.txt", i),
				Path:       fmt.Sprintf("/u/f%04d.txt", i),
				OccurredAt: time.Now(),
			}
		}
		return items
	}

	require.NoError(t, s.SaveQueueSnapshot(ctx, makeItems(240)))
	require.NoError(t, s.SaveQueueSnapshot(ctx, makeItems(480)))

	loaded, err := s.LoadLatestQueueSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, QueueSnapshotCapacity)

	// Exactly the most recent 128 of the 480, in original order.
	for i, item := range loaded {
		want := fmt.Sprintf("/u/f%04d.txt", 480-QueueSnapshotCapacity+i)
		assert.Equal(t, want, item.SourceID)
	}

	// Reclaim clears history; load returns empty until the next save.
	reclaimed, err := s.ReclaimQueueSnapshotStorageIfNeeded(ctx)
	require.NoError(t, err)
	assert.True(t, reclaimed)

	loaded, err = s.LoadLatestQueueSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, s.SaveQueueSnapshot(ctx, makeItems(5)))
	loaded, err = s.LoadLatestQueueSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 5)
}

func TestReclaimBelowThresholdIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{QueueReclaimBytes: 1 << 30})

	require.NoError(t, s.SaveQueueSnapshot(ctx, []IngestionEvent{{SourceID: "/a"}}))
	reclaimed, err := s.ReclaimQueueSnapshotStorageIfNeeded(ctx)
	require.NoError(t, err)
	assert.False(t, reclaimed)

	loaded, err := s.LoadLatestQueueSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "retrieval.db")

	s, err := New(Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.OpenAndMigrate())

	doc := testDoc("/u/persist.md", "Persist", "survives restart")
	require.NoError(t, s.UpsertDocument(ctx, doc, []*Chunk{
		{ID: ChunkID(doc.ID, 0), DocumentID: doc.ID, Ordinal: 0, Text: "survives restart", Embedding: []float32{0.1, 0.2, 0.3}},
	}))
	require.NoError(t, s.Close())

	s2 := newTestStore(t, Options{Path: path})
	got, err := s2.FetchDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Persist", got.Title)

	chunks, err := s2.ChunksForDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, chunks[0].Embedding)
}

func TestUpsertMaintainsVectorIndex(t *testing.T) {
	ctx := context.Background()
	vectors, err := NewHNSWIndex(3)
	require.NoError(t, err)
	s := newTestStore(t, Options{Vectors: vectors})

	doc := testDoc("/u/vec.md", "Vec", "vector doc")
	require.NoError(t, s.UpsertDocument(ctx, doc, []*Chunk{
		{ID: ChunkID(doc.ID, 0), DocumentID: doc.ID, Ordinal: 0, Text: "vector doc", Embedding: []float32{1, 0, 0}},
	}))
	assert.Equal(t, 1, vectors.Count())

	// Replacement chunk set evicts the old vector.
	require.NoError(t, s.UpsertDocument(ctx, doc, []*Chunk{
		{ID: ChunkID(doc.ID, 0), DocumentID: doc.ID, Ordinal: 0, Text: "updated", Embedding: []float32{0, 1, 0}},
	}))
	assert.Equal(t, 1, vectors.Count())

	_, err = s.DeleteDocumentsForPath(ctx, SourceTypeFile, "/u/vec.md")
	require.NoError(t, err)
	assert.Equal(t, 0, vectors.Count())
}

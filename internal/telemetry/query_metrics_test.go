package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	cases := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{0, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{200 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{3 * time.Second, BucketP1000},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LatencyToBucket(tc.latency), "latency %s", tc.latency)
	}
}

func TestRingEvictsOldest(t *testing.T) {
	r := newRing[string](3)
	assert.Empty(t, r.items())

	r.add("a")
	r.add("b")
	assert.Equal(t, []string{"a", "b"}, r.items())
	assert.Equal(t, 2, r.size())

	r.add("c")
	r.add("d")
	assert.Equal(t, []string{"b", "c", "d"}, r.items())
	assert.Equal(t, 3, r.size())
}

func TestRingDefaultCapacity(t *testing.T) {
	r := newRing[int](0)
	for i := 0; i < 150; i++ {
		r.add(i)
	}
	assert.Equal(t, 100, r.size())
	assert.Equal(t, 50, r.items()[0])
}

func TestExtractTerms(t *testing.T) {
	assert.Nil(t, ExtractTerms(""))
	assert.Nil(t, ExtractTerms("a an"))
	assert.Equal(t, []string{"quarterly", "budget"}, ExtractTerms("Quarterly Budget"))
	assert.Equal(t, []string{"tax", "return", "2025"}, ExtractTerms("  tax  return 2025 "))
}

func TestRecordAggregates(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "invoice march", QueryType: QueryTypeLexical, ResultCount: 4, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "onboarding checklist", QueryType: QueryTypeSemantic, ResultCount: 0, Latency: 80 * time.Millisecond})
	m.Record(QueryEvent{Query: "invoice april", QueryType: QueryTypeMixed, ResultCount: 2, Latency: 30 * time.Millisecond})

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.QueryTypeCounts[QueryTypeLexical])
	assert.Equal(t, int64(1), snap.QueryTypeCounts[QueryTypeSemantic])
	assert.Equal(t, int64(1), snap.QueryTypeCounts[QueryTypeMixed])

	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP100])

	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"onboarding checklist"}, snap.ZeroResultQueries)
	assert.InDelta(t, 33.3, snap.ZeroResultPercentage(), 0.1)
}

func TestSnapshotTopTermsSorted(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	for i := 0; i < 3; i++ {
		m.Record(QueryEvent{Query: "expense report", QueryType: QueryTypeLexical, ResultCount: 1})
	}
	m.Record(QueryEvent{Query: "expense policy", QueryType: QueryTypeLexical, ResultCount: 1})

	terms := m.Snapshot().TopTerms
	require.NotEmpty(t, terms)
	assert.Equal(t, "expense", terms[0].Term)
	assert.Equal(t, int64(4), terms[0].Count)
}

func TestExactRepeatDetection(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.Record(QueryEvent{Query: "vacation policy", QueryType: QueryTypeLexical, ResultCount: 1})
	m.Record(QueryEvent{Query: "Vacation Policy ", QueryType: QueryTypeLexical, ResultCount: 1})
	m.Record(QueryEvent{Query: "something else", QueryType: QueryTypeLexical, ResultCount: 1})

	snap := m.Snapshot()
	// Normalization makes the second query an exact repeat.
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	assert.InDelta(t, 1.0/3.0, snap.ExactRepeatRate, 0.001)
	assert.Equal(t, int64(2), snap.UniqueQueryCount)
}

func TestSimilarEmbeddingDetection(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	m.RecordQueryEmbedding([]float32{1, 0, 0})
	m.RecordQueryEmbedding([]float32{0, 1, 0})       // orthogonal, no hit
	m.RecordQueryEmbedding([]float32{0.99, 0.01, 0}) // near-duplicate of the first

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.SimilarQueryCount)

	// Empty and mismatched-dimension embeddings are ignored.
	m.RecordQueryEmbedding(nil)
	m.RecordQueryEmbedding([]float32{1, 0})
	assert.Equal(t, int64(1), m.Snapshot().SimilarQueryCount)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 0.001)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.001)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity(nil, nil))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestRepetitionSummary(t *testing.T) {
	empty := &QueryMetricsSnapshot{}
	assert.Equal(t, "No queries recorded", empty.RepetitionSummary())

	snap := &QueryMetricsSnapshot{
		TotalQueries:     10,
		ExactRepeatRate:  0.25,
		SimilarQueryRate: 0.1,
		UniqueQueryCount: 8,
	}
	assert.Equal(t, "exact=25.0%, similar=10.0%, unique=8", snap.RepetitionSummary())
}

// captureStore records flush calls for inspection.
type captureStore struct {
	mu        sync.Mutex
	types     map[QueryType]int64
	terms     map[string]int64
	latencies map[LatencyBucket]int64
	flushes   int
}

func newCaptureStore() *captureStore {
	return &captureStore{
		types:     make(map[QueryType]int64),
		terms:     make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
	}
}

func (c *captureStore) SaveQueryTypeCounts(_ string, counts map[QueryType]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushes++
	for k, v := range counts {
		c.types[k] += v
	}
	return nil
}

func (c *captureStore) GetQueryTypeCounts(_, _ string) (map[QueryType]int64, error) {
	return nil, nil
}

func (c *captureStore) UpsertTermCounts(terms map[string]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range terms {
		c.terms[k] += v
	}
	return nil
}

func (c *captureStore) GetTopTerms(int) ([]TermCount, error) { return nil, nil }

func (c *captureStore) AddZeroResultQuery(string, time.Time) error { return nil }

func (c *captureStore) GetZeroResultQueries(int) ([]string, error) { return nil, nil }

func (c *captureStore) SaveLatencyCounts(_ string, counts map[LatencyBucket]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range counts {
		c.latencies[k] += v
	}
	return nil
}

func (c *captureStore) GetLatencyCounts(_, _ string) (map[LatencyBucket]int64, error) {
	return nil, nil
}

func (c *captureStore) Close() error { return nil }

func TestFlushWritesDeltasOnce(t *testing.T) {
	store := newCaptureStore()
	cfg := DefaultQueryMetricsConfig()
	cfg.FlushInterval = 0 // flush manually
	m := NewQueryMetricsWithConfig(store, cfg)

	m.Record(QueryEvent{Query: "payroll schedule", QueryType: QueryTypeLexical, ResultCount: 1, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "payroll taxes", QueryType: QueryTypeMixed, ResultCount: 1, Latency: 20 * time.Millisecond})

	require.NoError(t, m.Flush())
	// A second flush with nothing new writes nothing.
	require.NoError(t, m.Flush())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.flushes)
	assert.Equal(t, int64(1), store.types[QueryTypeLexical])
	assert.Equal(t, int64(1), store.types[QueryTypeMixed])
	assert.Equal(t, int64(2), store.terms["payroll"])
	assert.Equal(t, int64(1), store.latencies[BucketP10])
	assert.Equal(t, int64(1), store.latencies[BucketP50])
}

func TestFlushWithoutStore(t *testing.T) {
	m := NewQueryMetrics(nil)
	m.Record(QueryEvent{Query: "anything goes", QueryType: QueryTypeLexical, ResultCount: 1})
	assert.NoError(t, m.Flush())
	assert.NoError(t, m.Close())
}

func TestCloseFlushesAndStopsRecording(t *testing.T) {
	store := newCaptureStore()
	m := NewQueryMetrics(store)

	m.Record(QueryEvent{Query: "offsite agenda", QueryType: QueryTypeSemantic, ResultCount: 3})
	require.NoError(t, m.Close())
	require.NoError(t, m.Close()) // idempotent

	store.mu.Lock()
	assert.Equal(t, int64(1), store.types[QueryTypeSemantic])
	store.mu.Unlock()

	// Events after Close are dropped.
	m.Record(QueryEvent{Query: "late", QueryType: QueryTypeLexical, ResultCount: 1})
	m.RecordQueryEmbedding([]float32{1, 0})
	assert.Equal(t, int64(1), m.Snapshot().TotalQueries)
}

func TestConfigDefaultsApplied(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{})
	defer m.Close()

	assert.Equal(t, 100, m.config.TopTermsCapacity)
	assert.Equal(t, 500, m.config.RecentQueriesCapacity)
	assert.InDelta(t, 0.95, m.config.SimilarityThreshold, 0.001)
}

func TestRecordConcurrent(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m.Record(QueryEvent{Query: "shared drive cleanup", QueryType: QueryTypeLexical, ResultCount: n % 2})
			m.RecordQueryEmbedding([]float32{1, float32(n)})
			_ = m.Snapshot()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.Snapshot().TotalQueries)
}

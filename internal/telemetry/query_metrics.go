// Package telemetry collects local query statistics used to tune
// suggest ranking. Nothing leaves the machine; aggregates are kept in
// memory and periodically flushed to a small SQLite database.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryType classifies how a query was answered.
type QueryType string

const (
	QueryTypeLexical  QueryType = "lexical"
	QueryTypeSemantic QueryType = "semantic"
	QueryTypeMixed    QueryType = "mixed"
)

// LatencyBucket names a histogram bucket for query latency.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket maps a query duration onto its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch ms := d.Milliseconds(); {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent describes one completed suggest query.
type QueryEvent struct {
	Query       string
	QueryType   QueryType
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult reports whether the query found nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// ring is a fixed-capacity FIFO buffer, safe for concurrent use.
type ring[T any] struct {
	mu   sync.RWMutex
	buf  []T
	next int
	n    int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = item
	r.next = (r.next + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// items returns the buffered values oldest first.
func (r *ring[T]) items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, r.n)
	if r.n < len(r.buf) {
		return append(out, r.buf[:r.n]...)
	}
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

func (r *ring[T]) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.n
}

// ExtractTerms splits a query into lowercase terms, dropping anything
// shorter than three characters.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount pairs a query term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QueryMetricsSnapshot is a point-in-time copy of the collector state.
type QueryMetricsSnapshot struct {
	QueryTypeCounts     map[QueryType]int64     `json:"query_type_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	Since               time.Time               `json:"since"`

	ExactRepeatCount  int64   `json:"exact_repeat_count"`
	ExactRepeatRate   float64 `json:"exact_repeat_rate"`
	SimilarQueryCount int64   `json:"similar_query_count"`
	SimilarQueryRate  float64 `json:"similar_query_rate"`
	UniqueQueryCount  int64   `json:"unique_query_count"`
}

// ZeroResultPercentage returns the share of queries with no results.
func (s *QueryMetricsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// RepetitionSummary renders the repetition metrics for log lines and
// the doctor report.
func (s *QueryMetricsSnapshot) RepetitionSummary() string {
	if s.TotalQueries == 0 {
		return "No queries recorded"
	}
	return fmt.Sprintf("exact=%.1f%%, similar=%.1f%%, unique=%d",
		s.ExactRepeatRate*100, s.SimilarQueryRate*100, s.UniqueQueryCount)
}

// QueryMetricsStore persists aggregated query metrics.
type QueryMetricsStore interface {
	// SaveQueryTypeCounts adds counts into the row for date.
	SaveQueryTypeCounts(date string, counts map[QueryType]int64) error

	// GetQueryTypeCounts sums counts over an inclusive date range.
	GetQueryTypeCounts(from, to string) (map[QueryType]int64, error)

	// UpsertTermCounts adds term frequencies into the stored totals.
	UpsertTermCounts(terms map[string]int64) error

	// GetTopTerms returns the most frequent terms, highest first.
	GetTopTerms(limit int) ([]TermCount, error)

	// AddZeroResultQuery appends to the bounded zero-result log.
	AddZeroResultQuery(query string, timestamp time.Time) error

	// GetZeroResultQueries returns recent zero-result queries,
	// newest first.
	GetZeroResultQueries(limit int) ([]string, error)

	// SaveLatencyCounts adds histogram counts into the row for date.
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error

	// GetLatencyCounts sums histogram counts over a date range.
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)

	Close() error
}

// QueryMetricsConfig tunes the in-memory collector.
type QueryMetricsConfig struct {
	TopTermsCapacity    int
	ZeroResultsCapacity int
	// FlushInterval controls background persistence; zero disables it.
	FlushInterval time.Duration

	// Repetition tracking. Embedding similarity is sampled against a
	// small window because comparisons are O(window * dims).
	RecentQueriesCapacity    int
	RecentEmbeddingsCapacity int
	SimilarityThreshold      float64
}

// DefaultQueryMetricsConfig returns the production defaults.
func DefaultQueryMetricsConfig() QueryMetricsConfig {
	return QueryMetricsConfig{
		TopTermsCapacity:         100,
		ZeroResultsCapacity:      100,
		FlushInterval:            60 * time.Second,
		RecentQueriesCapacity:    500,
		RecentEmbeddingsCapacity: 10,
		SimilarityThreshold:      0.95,
	}
}

func (c *QueryMetricsConfig) applyDefaults() {
	def := DefaultQueryMetricsConfig()
	if c.TopTermsCapacity <= 0 {
		c.TopTermsCapacity = def.TopTermsCapacity
	}
	if c.ZeroResultsCapacity <= 0 {
		c.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if c.RecentQueriesCapacity <= 0 {
		c.RecentQueriesCapacity = def.RecentQueriesCapacity
	}
	if c.RecentEmbeddingsCapacity <= 0 {
		c.RecentEmbeddingsCapacity = def.RecentEmbeddingsCapacity
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = def.SimilarityThreshold
	}
}

// QueryMetrics aggregates query telemetry in memory. All methods are
// safe for concurrent use.
type QueryMetrics struct {
	mu sync.RWMutex

	queryTypes      map[QueryType]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *ring[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	startTime       time.Time

	// Repetition tracking: an LRU of normalized query hashes catches
	// exact repeats, a sampled embedding window catches paraphrases.
	recentQueries     *lru.Cache[string, struct{}]
	exactRepeatCount  int64
	recentEmbeddings  *ring[[]float32]
	similarQueryCount int64

	// Deltas accumulated since the last flush. The store's upserts
	// add counts, so flushing running totals would double-count.
	pendingTypes     map[QueryType]int64
	pendingTerms     map[string]int64
	pendingLatencies map[LatencyBucket]int64

	store       QueryMetricsStore
	config      QueryMetricsConfig
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewQueryMetrics builds a collector with default configuration. A nil
// store keeps metrics in memory only.
func NewQueryMetrics(store QueryMetricsStore) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultQueryMetricsConfig())
}

// NewQueryMetricsWithConfig builds a collector with explicit tuning.
func NewQueryMetricsWithConfig(store QueryMetricsStore, cfg QueryMetricsConfig) *QueryMetrics {
	cfg.applyDefaults()

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		queryTypes:       make(map[QueryType]int64),
		topTerms:         topTerms,
		zeroResults:      newRing[string](cfg.ZeroResultsCapacity),
		latencies:        make(map[LatencyBucket]int64),
		startTime:        time.Now(),
		recentQueries:    recentQueries,
		recentEmbeddings: newRing[[]float32](cfg.RecentEmbeddingsCapacity),
		pendingTypes:     make(map[QueryType]int64),
		pendingTerms:     make(map[string]int64),
		pendingLatencies: make(map[LatencyBucket]int64),
		store:            store,
		config:           cfg,
		stopCh:           make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}
	return m
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record folds one query event into the aggregates.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.queryTypes[event.QueryType]++
	m.pendingTypes[event.QueryType]++
	m.totalQueries++

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++
	m.pendingLatencies[bucket]++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.pendingTerms[term]++
	}

	if event.IsZeroResult() {
		m.zeroResults.add(event.Query)
		m.zeroResultCount++
	}

	key := hashQuery(event.Query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.exactRepeatCount++
	}
	m.recentQueries.Add(key, struct{}{})
}

// hashQuery normalizes a query and hashes it for the repeat LRU. Half
// a SHA-256 keeps the keys short.
func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}

// RecordQueryEmbedding samples a query embedding for similarity
// tracking. Optional; without it only exact repeats are counted.
func (m *QueryMetrics) RecordQueryEmbedding(embedding []float32) {
	if len(embedding) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	for _, prev := range m.recentEmbeddings.items() {
		if cosineSimilarity(embedding, prev) > m.config.SimilarityThreshold {
			m.similarQueryCount++
			break
		}
	}

	// Copy before storing; the caller may reuse the slice.
	kept := make([]float32, len(embedding))
	copy(kept, embedding)
	m.recentEmbeddings.add(kept)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Snapshot copies the current aggregates for reporting.
func (m *QueryMetrics) Snapshot() *QueryMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *QueryMetrics) snapshotLocked() *QueryMetricsSnapshot {
	typeCounts := make(map[QueryType]int64, len(m.queryTypes))
	for k, v := range m.queryTypes {
		typeCounts[k] = v
	}

	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	var topTerms []TermCount
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sort.Slice(topTerms, func(i, j int) bool {
		return topTerms[i].Count > topTerms[j].Count
	})

	var exactRate, similarRate float64
	if m.totalQueries > 0 {
		exactRate = float64(m.exactRepeatCount) / float64(m.totalQueries)
		similarRate = float64(m.similarQueryCount) / float64(m.totalQueries)
	}

	return &QueryMetricsSnapshot{
		QueryTypeCounts:     typeCounts,
		TopTerms:            topTerms,
		ZeroResultQueries:   m.zeroResults.items(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		Since:               m.startTime,
		ExactRepeatCount:    m.exactRepeatCount,
		ExactRepeatRate:     exactRate,
		SimilarQueryCount:   m.similarQueryCount,
		SimilarQueryRate:    similarRate,
		UniqueQueryCount:    int64(m.recentQueries.Len()),
	}
}

// Flush persists counts accumulated since the previous flush. A nil
// store is a no-op. On error the drained deltas are dropped rather
// than retried; the in-memory aggregates still have them.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	types := m.pendingTypes
	terms := m.pendingTerms
	latencies := m.pendingLatencies
	m.pendingTypes = make(map[QueryType]int64)
	m.pendingTerms = make(map[string]int64)
	m.pendingLatencies = make(map[LatencyBucket]int64)
	m.mu.Unlock()

	if len(types) == 0 && len(terms) == 0 && len(latencies) == 0 {
		return nil
	}

	today := time.Now().Format("2006-01-02")
	if err := m.store.SaveQueryTypeCounts(today, types); err != nil {
		return err
	}
	if err := m.store.UpsertTermCounts(terms); err != nil {
		return err
	}
	return m.store.SaveLatencyCounts(today, latencies)
}

// Close stops the flush loop and writes a final flush. Safe to call
// more than once.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}
	return m.Flush()
}

package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex implements VectorIndex over coder/hnsw, a pure Go HNSW
// graph. Chunk ids (strings) are mapped to internal uint64 keys.
type HNSWIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	idMap   map[string]uint64 // chunk ID -> internal key
	keyMap  map[uint64]string // internal key -> chunk ID
	nextKey uint64

	closed bool
}

// hnswMetadata stores ID mappings for persistence.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Dims    int
}

var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty cosine-distance HNSW index for
// embeddings of the given dimension count.
func NewHNSWIndex(dims int) (*HNSWIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %d", dims)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 32
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:  graph,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

// Add inserts vectors with their ids, replacing existing entries.
func (s *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.dims {
			return DimensionMismatchError{Expected: s.dims, Got: len(v)}
		}
	}

	for i, id := range ids {
		// Lazy deletion on replace: orphan the old key instead of
		// removing the node, which coder/hnsw handles badly for the
		// last node in the graph.
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}

	return nil
}

// Search finds the k nearest chunks to the query embedding.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != s.dims {
		return nil, DimensionMismatchError{Expected: s.dims, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	// Over-fetch to compensate for lazily deleted orphans.
	orphans := s.graph.Len() - len(s.keyMap)
	if orphans < 0 {
		orphans = 0
	}
	nodes := s.graph.Search(normalized, k+orphans)

	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // orphaned by lazy deletion
		}
		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, &VectorResult{
			ChunkID:  id,
			Distance: distance,
			Score:    cosineDistanceToScore(distance),
		})
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

// Delete removes vectors by id using lazy deletion.
func (s *HNSWIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Dimensions returns the embedding dimension count.
func (s *HNSWIndex) Dimensions() int { return s.dims }

// OrphanStats reports live vector count and the number of graph nodes
// orphaned by lazy deletion.
func (s *HNSWIndex) OrphanStats() (live, orphaned int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, 0
	}
	live = len(s.idMap)
	orphaned = s.graph.Len() - live
	if orphaned < 0 {
		orphaned = 0
	}
	return live, orphaned
}

// Compact rebuilds the graph from live nodes only, dropping every
// node orphaned by lazy deletion. Returns the number of orphans
// removed. Search blocks for the duration; callers should run this
// when the index is idle.
func (s *HNSWIndex) Compact(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("vector index is closed")
	}

	orphans := s.graph.Len() - len(s.idMap)
	if orphans <= 0 {
		return 0, nil
	}

	rebuilt := hnsw.NewGraph[uint64]()
	rebuilt.Distance = s.graph.Distance
	rebuilt.M = s.graph.M
	rebuilt.EfSearch = s.graph.EfSearch
	rebuilt.Ml = s.graph.Ml

	newIDMap := make(map[string]uint64, len(s.idMap))
	newKeyMap := make(map[uint64]string, len(s.idMap))

	var nextKey uint64
	for id, oldKey := range s.idMap {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		vec, ok := s.graph.Lookup(oldKey)
		if !ok {
			continue
		}
		key := nextKey
		nextKey++
		rebuilt.Add(hnsw.MakeNode(key, vec))
		newIDMap[id] = key
		newKeyMap[key] = id
	}

	s.graph = rebuilt
	s.idMap = newIDMap
	s.keyMap = newKeyMap
	s.nextKey = nextKey

	return orphans, nil
}

// Save persists the graph and id mappings atomically (temp + rename).
func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *HNSWIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{IDMap: s.idMap, NextKey: s.nextKey, Dims: s.dims}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and id mappings from disk.
func (s *HNSWIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	var meta hnswMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		_ = metaFile.Close()
		return fmt.Errorf("decode metadata: %w", err)
	}
	_ = metaFile.Close()

	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.dims = meta.Dims
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		s.keyMap[key] = id
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}
	return nil
}

// Close releases resources. Idempotent.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// cosineDistanceToScore converts cosine distance (0-2) back to raw
// cosine similarity, clamped at 0 so anti-correlated vectors score
// zero instead of negative. Downstream similarity floors compare
// against this value, so it must stay on the raw cosine scale.
func cosineDistanceToScore(distance float32) float32 {
	score := 1.0 - distance
	if score < 0 {
		return 0
	}
	return score
}

// CosineSimilarity computes the cosine similarity of two vectors.
// Returns 0 for mismatched or zero-length inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
)

// BleveLexicalIndex is the alternative LexicalIndex backend: Bleve v2
// with its standard analyzer over title and body fields. Single
// process only (BoltDB exclusive lock); FTS5 remains the default.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

// bleveDocument is the indexed shape: title weighted implicitly by
// appearing in both fields.
type bleveDocument struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// NewBleveLexicalIndex opens or creates a Bleve index at path. An
// empty path creates an in-memory index for tests. A corrupted index
// is cleared and recreated (the caller reindexes).
func NewBleveLexicalIndex(path string) (*BleveLexicalIndex, error) {
	mapping := bleve.NewIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		} else if err != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w", path, removeErr)
			}
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open lexical index: %w", err)
	}

	return &BleveLexicalIndex{index: idx, path: path}, nil
}

// Index adds documents to the index.
func (b *BleveLexicalIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument{Title: doc.Title, Body: doc.Body}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search returns ranked matches over title+body.
func (b *BleveLexicalIndex) Search(ctx context.Context, queryStr string, limit int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalResult{}, nil
	}

	titleQuery := bleve.NewMatchQuery(queryStr)
	titleQuery.SetField("title")
	bodyQuery := bleve.NewMatchQuery(queryStr)
	bodyQuery.SetField("body")
	query := bleve.NewDisjunctionQuery(titleQuery, bodyQuery)

	req := bleve.NewSearchRequest(query)
	req.Size = limit
	req.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	results := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &LexicalResult{
			DocumentID:   hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	return results, nil
}

// Delete removes documents from the index.
func (b *BleveLexicalIndex) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Close closes the index. Idempotent.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// matchedTerms extracts the matched terms from a hit's locations.
func matchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for _, locations := range hit.Locations {
		for term := range locations {
			terms[term] = struct{}{}
		}
	}
	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}

// LexicalBackend selects the lexical search implementation.
type LexicalBackend string

const (
	// LexicalBackendFTS5 uses the store's SQLite FTS5 mirror (default,
	// shares the single-writer connection and WAL mode).
	LexicalBackendFTS5 LexicalBackend = "fts5"
	// LexicalBackendBleve uses a Bleve v2 index beside the store.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// NewLexicalBackend returns the alternative backend for the given
// name, or nil when the built-in FTS5 mirror should serve queries.
func NewLexicalBackend(backend string, dataDir string) (LexicalIndex, error) {
	switch LexicalBackend(backend) {
	case LexicalBackendFTS5, "":
		return nil, nil
	case LexicalBackendBleve:
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "lexical.bleve")
		}
		return NewBleveLexicalIndex(path)
	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: fts5, bleve)", backend)
	}
}

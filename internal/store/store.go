package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Options configures a Store.
type Options struct {
	// Path is the SQLite database path. Empty means in-memory (tests).
	Path string

	// Vectors is the chunk-embedding index kept in sync on upsert and
	// delete. Optional; nil disables vector maintenance.
	Vectors VectorIndex

	// Lexical is an alternative lexical backend (Bleve). When nil the
	// built-in FTS5 mirror serves LexicalSearch.
	Lexical LexicalIndex

	// QueueReclaimBytes is the snapshot storage threshold for
	// destructive compaction. Zero means DefaultQueueReclaimBytes.
	QueueReclaimBytes int64
}

// Store is the single-writer persistent retrieval store. All mutation
// is serialized behind a mutex and a single SQLite connection; a file
// lock guards against concurrent daemon instances.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	lock   *flock.Flock
	opts   Options
	closed bool

	stopWords map[string]struct{}
}

// New opens the database connection and acquires the exclusive file
// lock. Call OpenAndMigrate before using the store.
func New(opts Options) (*Store, error) {
	dsn := ":memory:"
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		dsn = opts.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{
		db:        db,
		path:      opts.Path,
		opts:      opts,
		stopWords: BuildStopWordMap(DefaultStopWords),
	}

	if opts.Path != "" {
		s.lock = flock.New(opts.Path + ".lock")
		locked, err := s.lock.TryLock()
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to acquire store lock: %w", err)
		}
		if !locked {
			_ = db.Close()
			return nil, fmt.Errorf("store is locked by another process: %s", opts.Path)
		}
	}

	return s, nil
}

// OpenAndMigrate performs idempotent schema setup. Safe to call on
// every start.
func (s *Store) OpenAndMigrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id             TEXT PRIMARY KEY,
		source_type    TEXT NOT NULL,
		source_id      TEXT NOT NULL,
		title          TEXT NOT NULL DEFAULT '',
		body           TEXT NOT NULL DEFAULT '',
		path           TEXT NOT NULL DEFAULT '',
		updated_at     INTEGER NOT NULL,
		risk           TEXT NOT NULL DEFAULT 'none',
		partition_tier TEXT NOT NULL DEFAULT 'hot',
		searchable     INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source_type, source_id);
	CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		ordinal     INTEGER NOT NULL,
		text        TEXT NOT NULL,
		embedding   BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

	CREATE TABLE IF NOT EXISTS graph_edges (
		id          TEXT PRIMARY KEY,
		source_node TEXT NOT NULL,
		target_node TEXT NOT NULL,
		edge_type   TEXT NOT NULL,
		confidence  REAL NOT NULL DEFAULT 0,
		weight      REAL NOT NULL DEFAULT 0,
		source_type TEXT NOT NULL DEFAULT '',
		event_time  INTEGER NOT NULL DEFAULT 0,
		updated_at  INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_edges_source ON graph_edges(source_node);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON graph_edges(target_node);

	CREATE TABLE IF NOT EXISTS ingestion_attempts (
		source_type TEXT NOT NULL,
		source_id   TEXT NOT NULL,
		path        TEXT NOT NULL DEFAULT '',
		updated_at  INTEGER NOT NULL,
		outcome     TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		PRIMARY KEY (source_type, source_id)
	);

	CREATE TABLE IF NOT EXISTS queue_snapshots (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		saved_at   INTEGER NOT NULL,
		item_count INTEGER NOT NULL,
		payload    BLOB NOT NULL
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
		doc_id UNINDEXED,
		title,
		body,
		tokenize='unicode61'
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// UpsertDocument replaces the document row and its entire chunk set
// atomically. The previous chunk set is removed wholesale; there is no
// partial chunk update.
func (s *Store) UpsertDocument(ctx context.Context, doc *Document, chunks []*Chunk) error {
	if doc == nil {
		return fmt.Errorf("nil document")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	oldChunkIDs, err := s.chunkIDsForDocuments(ctx, []string{doc.ID})
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents
			(id, source_type, source_id, title, body, path, updated_at, risk, partition_tier, searchable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.SourceType, doc.SourceID, doc.Title, doc.Body, doc.Path,
		doc.UpdatedAt.UnixNano(), string(doc.Risk), string(doc.Partition), boolToInt(doc.Searchable))
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear chunks for %s: %w", doc.ID, err)
	}
	for _, ch := range chunks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, document_id, ordinal, text, embedding) VALUES (?, ?, ?, ?, ?)`,
			ch.ID, doc.ID, ch.Ordinal, ch.Text, encodeEmbedding(ch.Embedding))
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", ch.ID, err)
		}
	}

	// Refresh the FTS mirror (FTS5 has no REPLACE).
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE doc_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear FTS row for %s: %w", doc.ID, err)
	}
	if doc.Searchable {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents_fts (doc_id, title, body) VALUES (?, ?, ?)`,
			doc.ID, s.preTokenize(doc.Title), s.preTokenize(doc.Body))
		if err != nil {
			return fmt.Errorf("failed to index FTS row for %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert for %s: %w", doc.ID, err)
	}

	// Keep the vector index in step with the committed chunk set.
	if s.opts.Vectors != nil {
		if len(oldChunkIDs) > 0 {
			if err := s.opts.Vectors.Delete(ctx, oldChunkIDs); err != nil {
				return fmt.Errorf("failed to evict stale vectors for %s: %w", doc.ID, err)
			}
		}
		ids := make([]string, 0, len(chunks))
		vecs := make([][]float32, 0, len(chunks))
		for _, ch := range chunks {
			if len(ch.Embedding) == 0 {
				continue
			}
			ids = append(ids, ch.ID)
			vecs = append(vecs, ch.Embedding)
		}
		if len(ids) > 0 {
			if err := s.opts.Vectors.Add(ctx, ids, vecs); err != nil {
				return fmt.Errorf("failed to add vectors for %s: %w", doc.ID, err)
			}
		}
	}

	if s.opts.Lexical != nil && doc.Searchable {
		if err := s.opts.Lexical.Index(ctx, []*Document{doc}); err != nil {
			return fmt.Errorf("failed to index lexical backend for %s: %w", doc.ID, err)
		}
	}

	return nil
}

// DeleteDocumentsForPath removes every document of the source type
// whose path starts with the prefix, cascading chunks, FTS rows,
// vector entries, and graph edges referencing the removed nodes.
// Returns the number of documents removed.
func (s *Store) DeleteDocumentsForPath(ctx context.Context, sourceType, pathPrefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	// Exact prefix match; LIKE would treat _ in paths as a wildcard.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM documents WHERE source_type = ? AND substr(path, 1, length(?)) = ?`,
		sourceType, pathPrefix, pathPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to find documents under %s: %w", pathPrefix, err)
	}
	var docIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, err
		}
		docIDs = append(docIDs, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	if len(docIDs) == 0 {
		return 0, nil
	}
	return len(docIDs), s.deleteDocuments(ctx, docIDs)
}

// PurgeFileDocumentsForExtensions deletes all file-sourced documents
// whose path extension is in the set and invalidates their
// ingestion-attempt entries, so a subsequent backfill treats them as
// never-attempted even though updatedAt is unchanged. This is the
// recovery path after an extractor bug fix.
func (s *Store) PurgeFileDocumentsForExtensions(ctx context.Context, extensions []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var docIDs []string
	for _, ext := range extensions {
		suffix := "." + strings.ToLower(strings.TrimPrefix(ext, "."))
		rows, err := s.db.QueryContext(ctx,
			`SELECT id FROM documents WHERE source_type = ? AND substr(lower(path), -length(?)) = ?`,
			SourceTypeFile, suffix, suffix)
		if err != nil {
			return 0, fmt.Errorf("failed to find documents for extension %s: %w", ext, err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return 0, err
			}
			docIDs = append(docIDs, id)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return 0, err
		}
		_ = rows.Close()

		_, err = s.db.ExecContext(ctx,
			`DELETE FROM ingestion_attempts WHERE source_type = ? AND substr(lower(path), -length(?)) = ?`,
			SourceTypeFile, suffix, suffix)
		if err != nil {
			return 0, fmt.Errorf("failed to invalidate attempts for extension %s: %w", ext, err)
		}
	}

	if len(docIDs) == 0 {
		return 0, nil
	}
	return len(docIDs), s.deleteDocuments(ctx, docIDs)
}

// deleteDocuments removes documents with all dependent state. Caller
// holds the mutex.
func (s *Store) deleteDocuments(ctx context.Context, docIDs []string) error {
	chunkIDs, err := s.chunkIDsForDocuments(ctx, docIDs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders, args := inClause(docIDs)

	stmts := []string{
		fmt.Sprintf(`DELETE FROM chunks WHERE document_id IN (%s)`, placeholders),
		fmt.Sprintf(`DELETE FROM documents_fts WHERE doc_id IN (%s)`, placeholders),
		// No dangling edges: prune anything referencing a removed node.
		fmt.Sprintf(`DELETE FROM graph_edges WHERE source_node IN (%s)`, placeholders),
		fmt.Sprintf(`DELETE FROM graph_edges WHERE target_node IN (%s)`, placeholders),
		fmt.Sprintf(`DELETE FROM documents WHERE id IN (%s)`, placeholders),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to delete documents: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document delete: %w", err)
	}

	if s.opts.Vectors != nil && len(chunkIDs) > 0 {
		if err := s.opts.Vectors.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("failed to evict vectors: %w", err)
		}
	}
	if s.opts.Lexical != nil {
		if err := s.opts.Lexical.Delete(ctx, docIDs); err != nil {
			return fmt.Errorf("failed to delete from lexical backend: %w", err)
		}
	}

	return nil
}

// RecordIngestionAttempt upserts the attempt fingerprint for a source.
func (s *Store) RecordIngestionAttempt(ctx context.Context, sourceType, sourceID, path string, updatedAt time.Time, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_attempts (source_type, source_id, path, updated_at, outcome, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_type, source_id) DO UPDATE SET
			path = excluded.path,
			updated_at = excluded.updated_at,
			outcome = excluded.outcome,
			recorded_at = excluded.recorded_at`,
		sourceType, sourceID, path, updatedAt.UnixNano(), string(outcome), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record ingestion attempt: %w", err)
	}
	return nil
}

// IsIngestionAttemptCurrent reports whether a recorded attempt makes
// re-extraction redundant: the recorded outcome must be terminal-and-
// cacheable (success, unsupported, failed) and the recorded updatedAt
// must be at least the queried one. Partial attempts are never
// current.
func (s *Store) IsIngestionAttemptCurrent(ctx context.Context, sourceType, sourceID string, updatedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, fmt.Errorf("store is closed")
	}

	var recordedAt int64
	var outcome string
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at, outcome FROM ingestion_attempts WHERE source_type = ? AND source_id = ?`,
		sourceType, sourceID).Scan(&recordedAt, &outcome)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query ingestion attempt: %w", err)
	}

	switch Outcome(outcome) {
	case OutcomeSuccess, OutcomeUnsupported, OutcomeFailed:
		return recordedAt >= updatedAt.UnixNano(), nil
	default:
		// Partial is always re-attempted.
		return false, nil
	}
}

// LexicalSearch runs a ranked full-text match over title+body.
// sourceFilters restricts source types (empty = all); partitionFilter
// restricts the tier (empty = all).
func (s *Store) LexicalSearch(ctx context.Context, queryText string, sourceFilters []string, partitionFilter Partition, limit int) ([]*LexicalResult, error) {
	if limit <= 0 {
		limit = 20
	}
	if strings.TrimSpace(queryText) == "" {
		return []*LexicalResult{}, nil
	}

	if s.opts.Lexical != nil {
		return s.lexicalSearchBackend(ctx, queryText, sourceFilters, partitionFilter, limit)
	}

	tokens := FilterStopWords(TokenizeText(queryText), s.stopWords)
	if len(tokens) == 0 {
		return []*LexicalResult{}, nil
	}
	// FTS5 OR-matches so a single overlapping term still surfaces.
	matchExpr := strings.Join(tokens, " OR ")

	query := `
		SELECT f.doc_id, bm25(documents_fts) AS score
		FROM documents_fts f
		JOIN documents d ON d.id = f.doc_id
		WHERE documents_fts MATCH ? AND d.searchable = 1`
	args := []any{matchExpr}
	if len(sourceFilters) > 0 {
		ph, fargs := inClause(sourceFilters)
		query += fmt.Sprintf(" AND d.source_type IN (%s)", ph)
		args = append(args, fargs...)
	}
	if partitionFilter != "" {
		query += " AND d.partition_tier = ?"
		args = append(args, string(partitionFilter))
	}
	query += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		// FTS5 errors on exotic match syntax; treat as no results.
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return []*LexicalResult{}, nil
		}
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	defer rows.Close()

	var results []*LexicalResult
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		// FTS5 bm25() is negative where lower is better.
		results = append(results, &LexicalResult{DocumentID: id, Score: -score, MatchedTerms: tokens})
	}
	return results, rows.Err()
}

// lexicalSearchBackend routes the query through the alternative
// backend and applies source/partition filters after the fact.
func (s *Store) lexicalSearchBackend(ctx context.Context, queryText string, sourceFilters []string, partitionFilter Partition, limit int) ([]*LexicalResult, error) {
	raw, err := s.opts.Lexical.Search(ctx, queryText, limit*4)
	if err != nil {
		return nil, err
	}
	if len(sourceFilters) == 0 && partitionFilter == "" {
		if len(raw) > limit {
			raw = raw[:limit]
		}
		return raw, nil
	}

	allowed := make(map[string]struct{}, len(sourceFilters))
	for _, f := range sourceFilters {
		allowed[f] = struct{}{}
	}
	filtered := make([]*LexicalResult, 0, limit)
	for _, r := range raw {
		doc, err := s.fetchDocumentLocked(ctx, r.DocumentID)
		if err != nil || doc == nil {
			continue
		}
		if len(sourceFilters) > 0 {
			if _, ok := allowed[doc.SourceType]; !ok {
				continue
			}
		}
		if partitionFilter != "" && doc.Partition != partitionFilter {
			continue
		}
		filtered = append(filtered, r)
		if len(filtered) >= limit {
			break
		}
	}
	return filtered, nil
}

// InsertGraphEdges upserts edges by id.
func (s *Store) InsertGraphEdges(ctx context.Context, edges []*GraphEdge) error {
	if len(edges) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO graph_edges
			(id, source_node, target_node, edge_type, confidence, weight, source_type, event_time, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		_, err := stmt.ExecContext(ctx, e.ID, e.SourceNode, e.TargetNode, e.EdgeType,
			e.Confidence, e.Weight, e.SourceType, e.EventTime.UnixNano(), e.UpdatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert edge %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// EdgesForNodes returns all edges touching any of the node ids.
func (s *Store) EdgesForNodes(ctx context.Context, nodeIDs []string) ([]*GraphEdge, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ph, args := inClause(nodeIDs)
	args = append(args, args...)
	query := fmt.Sprintf(`
		SELECT id, source_node, target_node, edge_type, confidence, weight, source_type, event_time, updated_at
		FROM graph_edges WHERE source_node IN (%s) OR target_node IN (%s)`, ph, ph)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []*GraphEdge
	for rows.Next() {
		var e GraphEdge
		var eventTime, updatedAt int64
		if err := rows.Scan(&e.ID, &e.SourceNode, &e.TargetNode, &e.EdgeType,
			&e.Confidence, &e.Weight, &e.SourceType, &eventTime, &updatedAt); err != nil {
			return nil, err
		}
		e.EventTime = time.Unix(0, eventTime)
		e.UpdatedAt = time.Unix(0, updatedAt)
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// FetchDocument returns a document by id, or nil if absent.
func (s *Store) FetchDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	return s.fetchDocumentLocked(ctx, id)
}

func (s *Store) fetchDocumentLocked(ctx context.Context, id string) (*Document, error) {
	var doc Document
	var updatedAt int64
	var searchable int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source_type, source_id, title, body, path, updated_at, risk, partition_tier, searchable
		FROM documents WHERE id = ?`, id).
		Scan(&doc.ID, &doc.SourceType, &doc.SourceID, &doc.Title, &doc.Body, &doc.Path,
			&updatedAt, (*string)(&doc.Risk), (*string)(&doc.Partition), &searchable)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document %s: %w", id, err)
	}
	doc.UpdatedAt = time.Unix(0, updatedAt)
	doc.Searchable = searchable != 0
	return &doc, nil
}

// DocumentCount returns the number of documents in the store.
func (s *Store) DocumentCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// DocumentsUnderPath returns up to limit documents whose path starts
// with the prefix, most recently updated first. Used for directory
// sibling lookups when building graph edges.
func (s *Store) DocumentsUnderPath(ctx context.Context, pathPrefix string, limit int) ([]*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if limit <= 0 {
		limit = 100
	}

	// Exact prefix match; LIKE would treat _ in paths as a wildcard.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_type, source_id, title, body, path, updated_at, risk, partition_tier, searchable
		FROM documents WHERE substr(path, 1, length(?)) = ?
		ORDER BY updated_at DESC LIMIT ?`,
		pathPrefix, pathPrefix, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents under %s: %w", pathPrefix, err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		var updatedAt int64
		var searchable int
		if err := rows.Scan(&doc.ID, &doc.SourceType, &doc.SourceID, &doc.Title, &doc.Body, &doc.Path,
			&updatedAt, (*string)(&doc.Risk), (*string)(&doc.Partition), &searchable); err != nil {
			return nil, err
		}
		doc.UpdatedAt = time.Unix(0, updatedAt)
		doc.Searchable = searchable != 0
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// ChunksByID returns chunks by id, embeddings included.
func (s *Store) ChunksByID(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ph, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, document_id, ordinal, text, embedding FROM chunks WHERE id IN (%s)`, ph), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// ChunksForDocument returns a document's chunks in ordinal order.
func (s *Store) ChunksForDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, ordinal, text, embedding FROM chunks WHERE document_id = ? ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// IterateChunkEmbeddings streams every stored chunk embedding, used to
// rebuild the in-memory vector index on start.
func (s *Store) IterateChunkEmbeddings(ctx context.Context, fn func(chunkID string, embedding []float32) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return err
		}
		emb := decodeEmbedding(blob)
		if len(emb) == 0 {
			continue
		}
		if err := fn(id, emb); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SaveQueueSnapshot persists the most recent pending events for crash
// recovery. Only the newest QueueSnapshotCapacity items are kept, in
// original relative order.
func (s *Store) SaveQueueSnapshot(ctx context.Context, items []IngestionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	kept := items
	if len(kept) > QueueSnapshotCapacity {
		kept = kept[len(kept)-QueueSnapshotCapacity:]
	}
	payload, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("failed to encode queue snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO queue_snapshots (saved_at, item_count, payload) VALUES (?, ?, ?)`,
		time.Now().UnixNano(), len(kept), payload)
	if err != nil {
		return fmt.Errorf("failed to save queue snapshot: %w", err)
	}
	return nil
}

// LoadLatestQueueSnapshot returns the most recent snapshot's items,
// oldest-of-the-kept-window first, or empty if none exists.
func (s *Store) LoadLatestQueueSnapshot(ctx context.Context) ([]IngestionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM queue_snapshots ORDER BY id DESC LIMIT 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return []IngestionEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queue snapshot: %w", err)
	}

	var items []IngestionEvent
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("failed to decode queue snapshot: %w", err)
	}
	return items, nil
}

// ReclaimQueueSnapshotStorageIfNeeded destructively clears historical
// snapshot rows once their storage crosses the configured threshold.
// After reclaiming, LoadLatestQueueSnapshot returns empty until a new
// snapshot is saved. Returns whether a reclaim happened.
func (s *Store) ReclaimQueueSnapshotStorageIfNeeded(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, fmt.Errorf("store is closed")
	}

	threshold := s.opts.QueueReclaimBytes
	if threshold <= 0 {
		threshold = DefaultQueueReclaimBytes
	}

	var bytes int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(payload)), 0) FROM queue_snapshots`).Scan(&bytes)
	if err != nil {
		return false, fmt.Errorf("failed to measure snapshot storage: %w", err)
	}
	if bytes <= threshold {
		return false, nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM queue_snapshots`); err != nil {
		return false, fmt.Errorf("failed to reclaim snapshot storage: %w", err)
	}
	slog.Info("queue_snapshot_storage_reclaimed", slog.Int64("bytes", bytes))
	return true, nil
}

// Close checkpoints the WAL, releases the file lock, and closes the
// database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	if s.opts.Lexical != nil {
		_ = s.opts.Lexical.Close()
	}
	return err
}

// chunkIDsForDocuments returns chunk ids for the given documents.
// Caller holds the mutex.
func (s *Store) chunkIDsForDocuments(ctx context.Context, docIDs []string) ([]string, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}
	ph, args := inClause(docIDs)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id FROM chunks WHERE document_id IN (%s)`, ph), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// preTokenize applies the shared tokenizer so FTS matching behaves the
// same as query-side tokenization.
func (s *Store) preTokenize(text string) string {
	return strings.Join(FilterStopWords(TokenizeText(text), s.stopWords), " ")
}

type chunkScanner interface {
	Scan(dest ...any) error
}

func scanChunk(rows chunkScanner) (*Chunk, error) {
	var ch Chunk
	var blob []byte
	if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Ordinal, &ch.Text, &blob); err != nil {
		return nil, err
	}
	ch.Embedding = decodeEmbedding(blob)
	return &ch, nil
}

func inClause(values []string) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return strings.Join(placeholders, ","), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodeEmbedding packs float32s as little-endian bytes.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding unpacks little-endian float32 bytes.
func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

package telemetry

import (
	"database/sql"
	"fmt"
	"time"
)

// zeroResultKeep bounds the persisted zero-result query log.
const zeroResultKeep = 100

const metricsSchema = `
CREATE TABLE IF NOT EXISTS query_type_stats (
	date TEXT NOT NULL,
	query_type TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, query_type)
);

CREATE TABLE IF NOT EXISTS query_terms (
	term TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 1,
	last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

CREATE TABLE IF NOT EXISTS zero_result_queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS query_latency_stats (
	date TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, bucket)
);
`

// SQLiteMetricsStore persists query metrics in SQLite.
type SQLiteMetricsStore struct {
	db *sql.DB
}

// NewSQLiteMetricsStore wraps db and creates the metrics tables if
// they are missing. The connection stays owned by the caller.
func NewSQLiteMetricsStore(db *sql.DB) (*SQLiteMetricsStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, err := db.Exec(metricsSchema); err != nil {
		return nil, fmt.Errorf("create metrics schema: %w", err)
	}
	return &SQLiteMetricsStore{db: db}, nil
}

// addCounts runs stmt once per key/count pair inside a transaction.
func (s *SQLiteMetricsStore) addCounts(query string, rows map[string]int64, fixed ...any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, count := range rows {
		args := append(append([]any{}, fixed...), key, count)
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("upsert count for %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// sumCounts runs a two-column (key, total) query into a map.
func (s *SQLiteMetricsStore) sumCounts(query string, args ...any) (map[string]int64, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var total int64
		if err := rows.Scan(&key, &total); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out[key] = total
	}
	return out, rows.Err()
}

// SaveQueryTypeCounts adds counts into the daily query type rows.
func (s *SQLiteMetricsStore) SaveQueryTypeCounts(date string, counts map[QueryType]int64) error {
	rows := make(map[string]int64, len(counts))
	for qt, n := range counts {
		rows[string(qt)] = n
	}
	return s.addCounts(`
		INSERT INTO query_type_stats (date, query_type, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, query_type) DO UPDATE SET count = count + excluded.count
	`, rows, date)
}

// GetQueryTypeCounts sums query type counts over a date range.
func (s *SQLiteMetricsStore) GetQueryTypeCounts(from, to string) (map[QueryType]int64, error) {
	raw, err := s.sumCounts(`
		SELECT query_type, SUM(count)
		FROM query_type_stats
		WHERE date >= ? AND date <= ?
		GROUP BY query_type
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query type counts: %w", err)
	}

	counts := make(map[QueryType]int64, len(raw))
	for k, v := range raw {
		counts[QueryType(k)] = v
	}
	return counts, nil
}

// UpsertTermCounts adds term frequencies into the stored totals.
func (s *SQLiteMetricsStore) UpsertTermCounts(terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}
	return s.addCounts(`
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`, terms)
}

// GetTopTerms returns the most frequent terms, highest first.
func (s *SQLiteMetricsStore) GetTopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`
		SELECT term, count
		FROM query_terms
		ORDER BY count DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// AddZeroResultQuery appends a query to the zero-result log, trimming
// it to the newest zeroResultKeep entries.
func (s *SQLiteMetricsStore) AddZeroResultQuery(query string, timestamp time.Time) error {
	if _, err := s.db.Exec(`
		INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)
	`, query, timestamp); err != nil {
		return fmt.Errorf("insert zero-result query: %w", err)
	}

	if _, err := s.db.Exec(`
		DELETE FROM zero_result_queries
		WHERE id NOT IN (
			SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?
		)
	`, zeroResultKeep); err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

// GetZeroResultQueries returns recent zero-result queries, newest
// first.
func (s *SQLiteMetricsStore) GetZeroResultQueries(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT query FROM zero_result_queries ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// SaveLatencyCounts adds histogram counts into the daily rows.
func (s *SQLiteMetricsStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	rows := make(map[string]int64, len(counts))
	for bucket, n := range counts {
		rows[string(bucket)] = n
	}
	return s.addCounts(`
		INSERT INTO query_latency_stats (date, bucket, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
	`, rows, date)
}

// GetLatencyCounts sums histogram counts over a date range.
func (s *SQLiteMetricsStore) GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	raw, err := s.sumCounts(`
		SELECT bucket, SUM(count)
		FROM query_latency_stats
		WHERE date >= ? AND date <= ?
		GROUP BY bucket
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}

	counts := make(map[LatencyBucket]int64, len(raw))
	for k, v := range raw {
		counts[LatencyBucket(k)] = v
	}
	return counts, nil
}

// Close is a no-op; the database handle is shared with the caller.
func (s *SQLiteMetricsStore) Close() error {
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// maxInArgs bounds the number of bound parameters in one IN (...) list.
const maxInArgs = 500

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// StoreOption configures a SQLiteStore.
type StoreOption func(*SQLiteStore)

// WithLogger sets the logger used to report skipped malformed columns.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *SQLiteStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private
// in-memory database on a single connection.
func NewSQLiteStore(dbPath string, opts ...StoreOption) (*SQLiteStore, error) {
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS papers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		abstract TEXT NOT NULL DEFAULT '',
		year INTEGER,
		journal TEXT NOT NULL DEFAULT '',
		doi TEXT UNIQUE,
		authors TEXT NOT NULL DEFAULT '[]',
		citations_count INTEGER NOT NULL DEFAULT 0,
		embedding BLOB,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_papers_year ON papers(year);

	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		meta TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (key, category)
	);

	CREATE INDEX IF NOT EXISTS idx_tags_key ON tags(key);

	CREATE TABLE IF NOT EXISTS tag_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		group_type TEXT NOT NULL DEFAULT '',
		meta TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tag_group_tags (
		group_id INTEGER NOT NULL REFERENCES tag_groups(id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		weight REAL NOT NULL DEFAULT 1.0,
		PRIMARY KEY (group_id, tag_id)
	);

	CREATE INDEX IF NOT EXISTS idx_tag_group_tags_tag ON tag_group_tags(tag_id);

	CREATE TABLE IF NOT EXISTS paper_tags (
		paper_id INTEGER NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		weight REAL NOT NULL DEFAULT 1.0,
		source TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (paper_id, tag_id)
	);

	CREATE INDEX IF NOT EXISTS idx_paper_tags_tag ON paper_tags(tag_id);

	CREATE TABLE IF NOT EXISTS paper_citations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		citing_paper_id INTEGER NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
		cited_paper_id INTEGER NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
		confidence REAL NOT NULL DEFAULT 1.0,
		source TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (citing_paper_id, cited_paper_id)
	);

	CREATE INDEX IF NOT EXISTS idx_citations_cited ON paper_citations(cited_paper_id);

	CREATE TABLE IF NOT EXISTS interaction_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		query_text TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '[]',
		group_keys TEXT NOT NULL DEFAULT '[]',
		paper_ids TEXT NOT NULL DEFAULT '[]',
		paper_id INTEGER,
		rank INTEGER,
		score REAL,
		extra TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_interaction_logs_type_time ON interaction_logs(event_type, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Begin starts a unit of work.
func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, logger: s.logger}, nil
}

// Stats returns row counts.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	counts := []struct {
		query string
		dst   *int64
	}{
		{`SELECT COUNT(*) FROM papers`, &st.Papers},
		{`SELECT COUNT(*) FROM papers WHERE embedding IS NOT NULL`, &st.EmbeddedPapers},
		{`SELECT COUNT(*) FROM tags`, &st.Tags},
		{`SELECT COUNT(*) FROM tag_groups`, &st.TagGroups},
		{`SELECT COUNT(*) FROM paper_citations`, &st.Citations},
		{`SELECT COUNT(*) FROM interaction_logs`, &st.Interactions},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, err
		}
	}
	return &st, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteTx implements Tx over a database/sql transaction.
type sqliteTx struct {
	tx     *sql.Tx
	logger *zap.Logger
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// int64Chunks splits ids into slices of at most maxInArgs, dropping duplicates.
func int64Chunks(ids []int64) [][]any {
	seen := make(map[int64]struct{}, len(ids))
	var chunks [][]any
	var cur []any
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		cur = append(cur, id)
		if len(cur) == maxInArgs {
			chunks = append(chunks, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

func stringChunks(keys []string) [][]any {
	seen := make(map[string]struct{}, len(keys))
	var chunks [][]any
	var cur []any
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		cur = append(cur, k)
		if len(cur) == maxInArgs {
			chunks = append(chunks, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeJSON unmarshals s into dst, leaving dst untouched for empty input.
func decodeJSON(s string, dst any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}

// decodeColumn decodes a JSON column of row id in table. A malformed value is
// logged and leaves dst untouched so the rest of the row is still usable.
func (t *sqliteTx) decodeColumn(table string, id int64, column, s string, dst any) {
	if err := decodeJSON(s, dst); err != nil {
		t.logger.Debug("skipping malformed column",
			zap.String("table", table),
			zap.Int64("id", id),
			zap.String("column", column),
			zap.Error(err))
	}
}

// encodeEmbedding stores a vector as little-endian float32 bytes.
func encodeEmbedding(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding is the inverse of encodeEmbedding. A blob whose length is not
// a multiple of 4 decodes to nil.
func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

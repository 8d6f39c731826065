package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	// Both SQLite drivers are linked; config selects one at open time.
	// modernc is pure Go and the default, mattn is cgo and opt-in for
	// installs that already ship a compiler toolchain.
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by DocStoreConfig.Driver.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite (default)
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3
)

// DocStoreConfig configures the SQLite chunk store.
type DocStoreConfig struct {
	// Path is the database file, or ":memory:" for tests.
	Path string

	// Driver selects the SQL driver: "sqlite" (default) or "sqlite3".
	Driver string
}

// DocStore persists chunk content and file tracking records in SQLite.
// It is the durable side of the hnsw vector backend: the graph holds
// embeddings, the docstore holds everything needed to turn a match back
// into a document.
type DocStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// OpenDocStore opens (or creates) the chunk database. A database that
// fails validation is cleared and recreated: the docstore is derived
// state and a rebuild beats failing every query until someone deletes
// the file by hand.
func OpenDocStore(cfg DocStoreConfig) (*DocStore, error) {
	driver, err := resolveDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := openSQLite(driver, cfg.Path)
	if err != nil {
		if cfg.Path == ":memory:" {
			return nil, err
		}
		slog.Warn("docstore failed validation, recreating",
			slog.String("path", cfg.Path),
			slog.String("error", err.Error()))
		removeSQLiteFiles(cfg.Path)
		db, err = openSQLite(driver, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("reopen docstore after clear: %w", err)
		}
	}

	s := &DocStore{db: db, path: cfg.Path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize docstore schema: %w", err)
	}
	return s, nil
}

func resolveDriver(name string) (string, error) {
	switch name {
	case "", DriverModernc:
		return DriverModernc, nil
	case DriverMattn:
		return DriverMattn, nil
	default:
		return "", fmt.Errorf("unknown sqlite driver %q (want %q or %q)", name, DriverModernc, DriverMattn)
	}
}

// openSQLite opens a connection pool of size one and validates the file.
// Pragmas are set with explicit statements rather than DSN parameters so
// the same code path works for both drivers.
func openSQLite(driver, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create docstore directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// Single writer. This also keeps ":memory:" coherent, since each new
	// connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := validateSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// validateSQLite runs an integrity check so corruption surfaces at open
// time instead of as confusing errors mid-query.
func validateSQLite(db *sql.DB) error {
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned %q", result)
	}

	// A fresh database has no tables yet; only an unreadable master
	// table counts as damage.
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'chunks'`).Scan(&name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("schema probe: %w", err)
	}
	return nil
}

func removeSQLiteFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove sqlite file", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
}

func (s *DocStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id         TEXT PRIMARY KEY,
		path       TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL,
		kind       TEXT NOT NULL DEFAULT '',
		language   TEXT NOT NULL DEFAULT '',
		start_line INTEGER NOT NULL DEFAULT 0,
		end_line   INTEGER NOT NULL DEFAULT 0,
		metadata   TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);

	CREATE TABLE IF NOT EXISTS files (
		path         TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		size         INTEGER NOT NULL DEFAULT 0,
		mod_time     INTEGER NOT NULL DEFAULT 0,
		chunk_count  INTEGER NOT NULL DEFAULT 0,
		indexed_at   INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put upserts chunks in one transaction. Re-indexing a chunk keeps its
// original created_at.
func (s *DocStore) Put(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("docstore is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, path, title, content, kind, language, start_line, end_line, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			title = excluded.title,
			content = excluded.content,
			kind = excluded.kind,
			language = excluded.language,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare chunk upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		meta, err := encodeMetadata(c.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for chunk %s: %w", c.ID, err)
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		updated := c.UpdatedAt
		if updated.IsZero() {
			updated = created
		}
		_, err = stmt.ExecContext(ctx,
			c.ID, c.Path, c.Title, c.Content, c.Kind, c.Language,
			c.StartLine, c.EndLine, meta, created.Unix(), updated.Unix())
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// Get returns the chunks for the given IDs, in input order. Unknown IDs
// are skipped rather than reported: callers resolve search hits, and a
// hit for a chunk deleted moments ago is not an error.
func (s *DocStore) Get(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("docstore is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, path, title, content, kind, language, start_line, end_line, metadata, created_at, updated_at
		FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// ByPath returns all chunks of one source file, ordered by start line.
func (s *DocStore) ByPath(ctx context.Context, path string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("docstore is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, title, content, kind, language, start_line, end_line, metadata, created_at, updated_at
		FROM chunks WHERE path = ? ORDER BY start_line`, path)
	if err != nil {
		return nil, fmt.Errorf("query chunks by path: %w", err)
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes chunks by ID.
func (s *DocStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("docstore is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM chunks WHERE id IN (%s)", strings.Join(placeholders, ","))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// DeleteByPath removes every chunk of one source file and returns the IDs
// removed so callers can evict them from the other indexes.
func (s *DocStore) DeleteByPath(ctx context.Context, path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("docstore is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("query chunk ids by path: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return nil, fmt.Errorf("delete chunks by path: %w", err)
	}
	return ids, nil
}

// Count returns the number of stored chunks.
func (s *DocStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("docstore is closed")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// SaveFile upserts a file tracking record.
func (s *DocStore) SaveFile(ctx context.Context, rec *FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("docstore is closed")
	}

	indexedAt := rec.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (path, content_hash, size, mod_time, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			size = excluded.size,
			mod_time = excluded.mod_time,
			chunk_count = excluded.chunk_count,
			indexed_at = excluded.indexed_at`,
		rec.Path, rec.ContentHash, rec.Size, rec.ModTime.Unix(), rec.ChunkCount, indexedAt.Unix())
	if err != nil {
		return fmt.Errorf("save file record: %w", err)
	}
	return nil
}

// GetFile returns the tracking record for a path, or nil when the file has
// never been indexed.
func (s *DocStore) GetFile(ctx context.Context, path string) (*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("docstore is closed")
	}

	rec, err := scanFileRecord(s.db.QueryRowContext(ctx, `
		SELECT path, content_hash, size, mod_time, chunk_count, indexed_at
		FROM files WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// AllFiles returns every tracked file.
func (s *DocStore) AllFiles(ctx context.Context) ([]*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("docstore is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, content_hash, size, mod_time, chunk_count, indexed_at
		FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var out []*FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteFile drops a file tracking record.
func (s *DocStore) DeleteFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("docstore is closed")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return nil
}

// Close releases the database handle. Safe to call twice.
func (s *DocStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var (
		c                  Chunk
		meta               string
		createdAt, updated int64
	)
	err := row.Scan(&c.ID, &c.Path, &c.Title, &c.Content, &c.Kind, &c.Language,
		&c.StartLine, &c.EndLine, &meta, &createdAt, &updated)
	if err != nil {
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	c.Metadata, err = decodeMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("decode metadata for chunk %s: %w", c.ID, err)
	}
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	c.UpdatedAt = time.Unix(updated, 0).UTC()
	return &c, nil
}

func scanFileRecord(row rowScanner) (*FileRecord, error) {
	var (
		rec                FileRecord
		modTime, indexedAt int64
	)
	err := row.Scan(&rec.Path, &rec.ContentHash, &rec.Size, &modTime, &rec.ChunkCount, &indexedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan file record: %w", err)
	}
	rec.ModTime = time.Unix(modTime, 0).UTC()
	rec.IndexedAt = time.Unix(indexedAt, 0).UTC()
	return &rec, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(s string) (map[string]string, error) {
	if s == "" || s == "{}" || s == "null" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

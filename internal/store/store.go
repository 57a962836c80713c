// Package store owns the single-table schema and the typed query
// vocabulary the VFS is built on (spec component C). It only relies on the
// portable SQL subset documented by the VFS contract: CREATE TABLE IF NOT
// EXISTS, parameterized INSERT ... ON CONFLICT DO UPDATE, SELECT ... WHERE
// path = ? / WHERE path LIKE ? ESCAPE ?, aggregate MIN/MAX, and
// substr(blob, start, len). Every query is written with "?" placeholders and
// rebound for the active driver. The upserts use INSERT ... ON CONFLICT
// (path) DO UPDATE, which Postgres and SQLite accept and MySQL does not, so
// the store does not run against MySQL as written.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tablefs/tablefs/internal/metrics"
)

// Row is one entry in the filesystem table (spec §3). A path ending in "/"
// is an explicit directory; otherwise it's a file. Content is nil for
// directory rows.
type Row struct {
	Path       string
	CreatedAt  int64 // ms since epoch
	ModifiedAt int64 // ms since epoch
	Size       int64
	ETag       string
	Content    []byte
	Meta       *string
}

// IsDir reports whether the row is an explicit directory.
func (r *Row) IsDir() bool {
	return strings.HasSuffix(r.Path, "/")
}

// Store wraps a *sql.DB and the single table it owns.
type Store struct {
	db        *sql.DB
	driver    string
	tableName string
}

// New wraps an existing *sql.DB. driverName must be one of "postgres",
// "mysql", or "sqlite"/"sqlite3"; it selects placeholder rebinding and the
// content column type (BYTEA or BLOB) used by EnsureSchema.
func New(db *sql.DB, driverName, tableName string) *Store {
	if tableName == "" {
		tableName = "filesystem"
	}
	return &Store{db: db, driver: driverName, tableName: tableName}
}

// DB returns the underlying connection, for callers that need it directly
// (migrations, connection-pool metrics).
func (s *Store) DB() *sql.DB { return s.db }

// EnsureSchema creates the filesystem table if it doesn't already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	contentType := "BYTEA"
	if s.driver == "mysql" || strings.HasPrefix(s.driver, "sqlite") {
		contentType = "BLOB"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		path TEXT PRIMARY KEY,
		created_at BIGINT NOT NULL,
		modified_at BIGINT NOT NULL,
		size BIGINT NOT NULL DEFAULT 0,
		etag TEXT NOT NULL DEFAULT '',
		content %s,
		meta TEXT
	)`, s.tableName, contentType)
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpdateConnectionMetrics publishes current pool stats.
func (s *Store) UpdateConnectionMetrics() {
	metrics.SetDBConnectionsOpen(s.db.Stats().OpenConnections)
}

// rebind rewrites "?" placeholders into the active driver's dialect.
// Postgres needs "$1", "$2", ...; MySQL and SQLite accept "?" as-is.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, name, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(name, time.Since(start)) }()
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, name, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(name, time.Since(start)) }()
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, name, query string, args ...interface{}) *sql.Row {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(name, time.Since(start)) }()
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// NowMillis returns the current time as ms-since-epoch, the unit stored in
// created_at/modified_at.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// GetByPath returns the row with the exact key path, or nil if absent.
func (s *Store) GetByPath(ctx context.Context, path string) (*Row, error) {
	row := s.queryRow(ctx, "get_by_path",
		fmt.Sprintf(`SELECT path, created_at, modified_at, size, etag, content, meta FROM %s WHERE path = ?`, s.tableName),
		path)
	r, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get by path %s: %w", path, err)
	}
	return r, nil
}

// ExistsWithPrefix reports whether any row other than exclude matches the
// LIKE prefix (used to detect implicit directories).
func (s *Store) ExistsWithPrefix(ctx context.Context, likePrefix, exclude string) (bool, error) {
	var exists bool
	err := s.queryRow(ctx, "exists_prefix",
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE path LIKE ? ESCAPE '\' AND path != ?)`, s.tableName),
		likePrefix, exclude).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists with prefix %s: %w", likePrefix, err)
	}
	return exists, nil
}

// ListPrefix returns every row whose path matches the LIKE prefix, in
// lexicographic path order, excluding the row equal to exclude.
func (s *Store) ListPrefix(ctx context.Context, likePrefix, exclude string) ([]Row, error) {
	rows, err := s.query(ctx, "list_prefix",
		fmt.Sprintf(`SELECT path, created_at, modified_at, size, etag, content, meta FROM %s WHERE path LIKE ? ESCAPE '\' AND path != ? ORDER BY path`, s.tableName),
		likePrefix, exclude)
	if err != nil {
		return nil, fmt.Errorf("list prefix %s: %w", likePrefix, err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		r, err := scanRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list prefix: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// AggregateTimes returns MIN(created_at)/MAX(modified_at) across every row
// under likePrefix, used to derive an implicit directory's birthtime/mtime.
// found is false when no row matched.
func (s *Store) AggregateTimes(ctx context.Context, likePrefix string) (minCreated, maxModified int64, found bool, err error) {
	var minC, maxM sql.NullInt64
	var count int64
	row := s.queryRow(ctx, "aggregate_times",
		fmt.Sprintf(`SELECT MIN(created_at), MAX(modified_at), COUNT(*) FROM %s WHERE path LIKE ? ESCAPE '\'`, s.tableName),
		likePrefix)
	if err := row.Scan(&minC, &maxM, &count); err != nil {
		return 0, 0, false, fmt.Errorf("aggregate times %s: %w", likePrefix, err)
	}
	if count == 0 {
		return 0, 0, false, nil
	}
	return minC.Int64, maxM.Int64, true, nil
}

// InsertDir inserts an explicit-directory row. Callers must check for
// EEXIST/ENOENT themselves (mkdir's contract); this is a plain insert.
func (s *Store) InsertDir(ctx context.Context, path string, now int64) error {
	_, err := s.exec(ctx, "insert_dir",
		fmt.Sprintf(`INSERT INTO %s (path, created_at, modified_at, size, etag, content, meta) VALUES (?, ?, ?, 0, '', NULL, NULL)`, s.tableName),
		path, now, now)
	if err != nil {
		return fmt.Errorf("insert dir %s: %w", path, err)
	}
	return nil
}

// UpsertFile inserts or updates a file row keyed by path.
func (s *Store) UpsertFile(ctx context.Context, path string, content []byte, etag string, now int64) error {
	_, err := s.exec(ctx, "upsert_file",
		fmt.Sprintf(`INSERT INTO %s (path, created_at, modified_at, size, etag, content, meta)
		 VALUES (?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT (path) DO UPDATE SET
			content = EXCLUDED.content,
			size = EXCLUDED.size,
			etag = EXCLUDED.etag,
			modified_at = EXCLUDED.modified_at`, s.tableName),
		path, now, now, int64(len(content)), etag, content)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", path, err)
	}
	return nil
}

// UpsertCopy inserts or overwrites dstPath with the content/etag/size of a
// source row, stamping fresh created_at/modified_at.
func (s *Store) UpsertCopy(ctx context.Context, dstPath string, content []byte, size int64, etag string, now int64) error {
	_, err := s.exec(ctx, "upsert_copy",
		fmt.Sprintf(`INSERT INTO %s (path, created_at, modified_at, size, etag, content, meta)
		 VALUES (?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT (path) DO UPDATE SET
			content = EXCLUDED.content,
			size = EXCLUDED.size,
			etag = EXCLUDED.etag,
			created_at = EXCLUDED.created_at,
			modified_at = EXCLUDED.modified_at`, s.tableName),
		dstPath, now, now, size, etag, content)
	if err != nil {
		return fmt.Errorf("upsert copy %s: %w", dstPath, err)
	}
	return nil
}

// UpsertFileRef inserts or updates a file row whose content lives in an
// external blob store: content is NULL, meta carries the reference, and
// size/etag are passed in explicitly since they can't be derived from
// content here.
func (s *Store) UpsertFileRef(ctx context.Context, path string, size int64, etag, metaRef string, now int64) error {
	_, err := s.exec(ctx, "upsert_file_ref",
		fmt.Sprintf(`INSERT INTO %s (path, created_at, modified_at, size, etag, content, meta)
		 VALUES (?, ?, ?, ?, ?, NULL, ?)
		 ON CONFLICT (path) DO UPDATE SET
			content = NULL,
			size = EXCLUDED.size,
			etag = EXCLUDED.etag,
			meta = EXCLUDED.meta,
			modified_at = EXCLUDED.modified_at`, s.tableName),
		path, now, now, size, etag, metaRef)
	if err != nil {
		return fmt.Errorf("upsert file ref %s: %w", path, err)
	}
	return nil
}

// DeleteByPath deletes the row with the exact key path. Returns the number
// of rows removed (0 or 1).
func (s *Store) DeleteByPath(ctx context.Context, path string) (int64, error) {
	res, err := s.exec(ctx, "delete_by_path", fmt.Sprintf(`DELETE FROM %s WHERE path = ?`, s.tableName), path)
	if err != nil {
		return 0, fmt.Errorf("delete by path %s: %w", path, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeletePathAndPrefix deletes the explicit row at path (if any) and every
// row under the LIKE prefix beneath it.
func (s *Store) DeletePathAndPrefix(ctx context.Context, path, likePrefix string) (int64, error) {
	res, err := s.exec(ctx, "delete_path_and_prefix",
		fmt.Sprintf(`DELETE FROM %s WHERE path = ? OR path LIKE ? ESCAPE '\'`, s.tableName),
		path, likePrefix)
	if err != nil {
		return 0, fmt.Errorf("delete path and prefix %s: %w", path, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RenamePath updates a single row's path (file-to-file rename).
func (s *Store) RenamePath(ctx context.Context, oldPath, newPath string, now int64) error {
	_, err := s.exec(ctx, "rename_path",
		fmt.Sprintf(`UPDATE %s SET path = ?, modified_at = ? WHERE path = ?`, s.tableName),
		newPath, now, oldPath)
	if err != nil {
		return fmt.Errorf("rename path %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanRow(row *sql.Row) (*Row, error) {
	var r Row
	var content []byte
	var meta sql.NullString
	if err := row.Scan(&r.Path, &r.CreatedAt, &r.ModifiedAt, &r.Size, &r.ETag, &content, &meta); err != nil {
		return nil, err
	}
	r.Content = content
	if meta.Valid {
		r.Meta = &meta.String
	}
	return &r, nil
}

func scanRows(rows *sql.Rows) (*Row, error) {
	var r Row
	var content []byte
	var meta sql.NullString
	if err := rows.Scan(&r.Path, &r.CreatedAt, &r.ModifiedAt, &r.Size, &r.ETag, &content, &meta); err != nil {
		return nil, err
	}
	r.Content = content
	if meta.Valid {
		r.Meta = &meta.String
	}
	return &r, nil
}

// ReadChunk reads a single bounded chunk of a file's content, 1-indexed,
// used by the streaming read adapter (spec §4.1 createReadStream). Returns
// an empty slice once offset is past the end of content.
func (s *Store) ReadChunk(ctx context.Context, path string, offset1Indexed, size int64) ([]byte, error) {
	var chunk []byte
	err := s.queryRow(ctx, "read_chunk",
		fmt.Sprintf(`SELECT substr(content, ?, ?) FROM %s WHERE path = ?`, s.tableName),
		offset1Indexed, size, path).Scan(&chunk)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", path, err)
	}
	return chunk, nil
}

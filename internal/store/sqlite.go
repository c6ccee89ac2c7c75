package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLite keeps records in a local SQLite database.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens the SQLite database at databasePath.
func NewSQLite(ctx context.Context, databasePath string, logger *slog.Logger) (*SQLite, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn = fmt.Sprintf("%s%s_pragma=busy_timeout=10000&_pragma=journal_mode=WAL&_pragma=synchronous=FULL", dsn, sep)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite has a single writer anyway and this keeps
	// transactions from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLite{
		db:     db,
		logger: logger.With("component", "store_sqlite"),
	}, nil
}

// RunMigrations executes the embedded sqlite/*.sql files in order.
func (s *SQLite) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	names, err := migrationFiles(filesystem, "sqlite")
	if err != nil {
		return err
	}
	for _, name := range names {
		content, err := fs.ReadFile(filesystem, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		s.logger.Debug("migration applied", "file", name)
	}
	return nil
}

func (s *SQLite) Read(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read record %s: %w", key, err)
	}
	return value, nil
}

const sqliteUpsert = `
INSERT INTO records (key, value, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (key) DO UPDATE SET
    value = excluded.value,
    updated_at = CURRENT_TIMESTAMP;`

func (s *SQLite) Write(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, key, nonNil(value)); err != nil {
		return fmt.Errorf("write record %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete record %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Take(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `DELETE FROM records WHERE key = ? RETURNING value`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("take record %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLite) Apply(ctx context.Context, ops []Op) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range ops {
		if op.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, op.Key); err != nil {
				return fmt.Errorf("apply delete %s: %w", op.Key, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, sqliteUpsert, op.Key, nonNil(op.Value)); err != nil {
			return fmt.Errorf("apply put %s: %w", op.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply: %w", err)
	}
	return nil
}

func (s *SQLite) Scan(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT key FROM records
WHERE substr(key, 1, length(?)) = ?
ORDER BY key;`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("scan records %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan record key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record keys: %w", err)
	}
	return keys, nil
}

func (s *SQLite) Append(ctx context.Context, stream string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO journal (stream, value) VALUES (?, ?)`, stream, nonNil(value)); err != nil {
		return fmt.Errorf("append journal %s: %w", stream, err)
	}
	return nil
}

func (s *SQLite) Tail(ctx context.Context, stream string, limit int) ([][]byte, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT value FROM (
    SELECT id, value FROM journal WHERE stream = ? ORDER BY id DESC LIMIT ?
) ORDER BY id ASC;`, stream, limit)
	if err != nil {
		return nil, fmt.Errorf("tail journal %s: %w", stream, err)
	}
	defer rows.Close()

	var entries [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal %s: %w", stream, err)
	}
	return entries, nil
}

// Ping ensures the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

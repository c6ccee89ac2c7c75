package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps records in a Postgres table through a pgx pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres opens a connection pool to databaseURL.
func NewPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	p := &Postgres{
		pool:   pool,
		logger: logger.With("component", "store_postgres"),
	}
	if err := p.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return p, nil
}

// RunMigrations executes the embedded postgres/*.sql files in order, each in
// its own transaction.
func (p *Postgres) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	names, err := migrationFiles(filesystem, "postgres")
	if err != nil {
		return err
	}
	for _, name := range names {
		content, err := fs.ReadFile(filesystem, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if len(content) == 0 {
			continue
		}
		err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, string(content))
			return err
		})
		if err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		p.logger.Debug("migration applied", "file", name)
	}
	return nil
}

func (p *Postgres) Read(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM records WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read record %s: %w", key, err)
	}
	return value, nil
}

const postgresUpsert = `
INSERT INTO records (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET
    value = EXCLUDED.value,
    updated_at = NOW();`

func (p *Postgres) Write(ctx context.Context, key string, value []byte) error {
	if _, err := p.pool.Exec(ctx, postgresUpsert, key, nonNil(value)); err != nil {
		return fmt.Errorf("write record %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete record %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Take(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.pool.QueryRow(ctx, `DELETE FROM records WHERE key = $1 RETURNING value`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("take record %s: %w", key, err)
	}
	return value, nil
}

func (p *Postgres) Apply(ctx context.Context, ops []Op) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, op := range ops {
			if op.Delete {
				if _, err := tx.Exec(ctx, `DELETE FROM records WHERE key = $1`, op.Key); err != nil {
					return fmt.Errorf("apply delete %s: %w", op.Key, err)
				}
				continue
			}
			if _, err := tx.Exec(ctx, postgresUpsert, op.Key, nonNil(op.Value)); err != nil {
				return fmt.Errorf("apply put %s: %w", op.Key, err)
			}
		}
		return nil
	})
}

func (p *Postgres) Scan(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT key FROM records WHERE starts_with(key, $1) ORDER BY key`, prefix)
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

func (p *Postgres) Append(ctx context.Context, stream string, value []byte) error {
	if _, err := p.pool.Exec(ctx, `INSERT INTO journal (stream, value) VALUES ($1, $2)`, stream, nonNil(value)); err != nil {
		return fmt.Errorf("append journal %s: %w", stream, err)
	}
	return nil
}

func (p *Postgres) Tail(ctx context.Context, stream string, limit int) ([][]byte, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
SELECT value FROM (
    SELECT id, value FROM journal WHERE stream = $1 ORDER BY id DESC LIMIT $2
) t ORDER BY id ASC;`, stream, limit)
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
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

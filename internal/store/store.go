package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// ErrNotFound is returned by Read and Take when the key holds no record.
var ErrNotFound = errors.New("record not found")

// Store is a durable key/value record store. Single-key writes are atomic;
// Apply is the only multi-key commit.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Take atomically reads and deletes key.
	Take(ctx context.Context, key string) ([]byte, error)
	// Apply commits all ops or none of them.
	Apply(ctx context.Context, ops []Op) error
	// Scan lists keys starting with prefix in lexical order.
	Scan(ctx context.Context, prefix string) ([]string, error)
	// Append adds value to the end of an append-only journal stream.
	Append(ctx context.Context, stream string, value []byte) error
	// Tail returns up to limit most recent journal entries, oldest first.
	Tail(ctx context.Context, stream string, limit int) ([][]byte, error)

	Ping(ctx context.Context) error
	Close() error
}

// Op is a single staged mutation for Apply.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Put stages a write of value at key.
func Put(key string, value []byte) Op {
	return Op{Key: key, Value: value}
}

// Del stages a delete of key.
func Del(key string) Op {
	return Op{Key: key, Delete: true}
}

// Journal streams.
const (
	StreamRoster    = "roster"
	StreamLedger    = "ledger"
	StreamReconcile = "reconcile"
)

// Config selects and configures a backend.
type Config struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
	Redis       RedisConfig
}

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Open builds the backend named by cfg.Driver and runs its migrations.
func Open(ctx context.Context, cfg Config, migrations fs.FS, logger *slog.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		s, err := NewSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		if err := s.RunMigrations(ctx, migrations); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := NewPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := s.RunMigrations(ctx, migrations); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case DriverRedis:
		s := NewRedis(cfg.Redis, logger)
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// ReadInt reads a decimal integer record. ok is false when the key is absent.
func ReadInt(ctx context.Context, s Store, key string) (n int64, ok bool, err error) {
	raw, err := s.Read(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	n, err = strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse integer record %s: %w", key, err)
	}
	return n, true, nil
}

// Int encodes n the way ReadInt expects it.
func Int(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}

// migrationFiles returns the .sql files in dir sorted by name.
func migrationFiles(filesystem fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(filesystem, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, dir+"/"+entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

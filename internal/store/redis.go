package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisConfig defines connection parameters for Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	UseTLS   bool
	// Prefix namespaces every key this store touches.
	Prefix string
}

// Redis keeps records as plain string keys and journals as lists.
type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedis returns a Redis-backed store based on cfg.
func NewRedis(cfg RedisConfig, logger *slog.Logger) *Redis {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return NewRedisWithClient(redis.NewClient(opts), cfg.Prefix, logger)
}

// NewRedisWithClient wraps an existing go-redis client.
func NewRedisWithClient(client *redis.Client, prefix string, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "store_redis"),
	}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) journalKey(stream string) string {
	return r.prefix + "journal:" + stream
}

func (r *Redis) Read(ctx context.Context, key string) ([]byte, error) {
	res, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return res, nil
}

func (r *Redis) Write(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), nonNil(value), 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Take(ctx context.Context, key string) ([]byte, error) {
	res, err := r.client.GetDel(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis getdel %s: %w", key, err)
	}
	return res, nil
}

func (r *Redis) Apply(ctx context.Context, ops []Op) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			if op.Delete {
				pipe.Del(ctx, r.key(op.Key))
				continue
			}
			pipe.Set(ctx, r.key(op.Key), nonNil(op.Value), 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis apply: %w", err)
	}
	return nil
}

func (r *Redis) Scan(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(r.key(prefix)) + "*"
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Redis) Append(ctx context.Context, stream string, value []byte) error {
	if err := r.client.RPush(ctx, r.journalKey(stream), nonNil(value)).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", stream, err)
	}
	return nil
}

func (r *Redis) Tail(ctx context.Context, stream string, limit int) ([][]byte, error) {
	if limit <= 0 {
		limit = 100
	}
	res, err := r.client.LRange(ctx, r.journalKey(stream), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", stream, err)
	}
	entries := make([][]byte, 0, len(res))
	for _, v := range res {
		entries = append(entries, []byte(v))
	}
	return entries, nil
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases Redis resources.
func (r *Redis) Close() error {
	return r.client.Close()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

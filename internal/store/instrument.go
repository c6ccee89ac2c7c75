package store

import (
	"context"
	"errors"
	"time"

	"shopbot/internal/metrics"
)

// Instrumented records latency for every call on the wrapped Store.
type Instrumented struct {
	Store
	driver  string
	metrics *metrics.Metrics
}

// Instrument wraps s. A nil m returns s unchanged.
func Instrument(s Store, driver string, m *metrics.Metrics) Store {
	if m == nil {
		return s
	}
	if driver == "" {
		driver = DriverSQLite
	}
	return &Instrumented{Store: s, driver: driver, metrics: m}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	i.metrics.StoreLatency.WithLabelValues(i.driver, op).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) {
		i.metrics.Error("store")
	}
}

func (i *Instrumented) Read(ctx context.Context, key string) (v []byte, err error) {
	defer func(start time.Time) { i.observe("read", start, err) }(time.Now())
	return i.Store.Read(ctx, key)
}

func (i *Instrumented) Write(ctx context.Context, key string, value []byte) (err error) {
	defer func(start time.Time) { i.observe("write", start, err) }(time.Now())
	return i.Store.Write(ctx, key, value)
}

func (i *Instrumented) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { i.observe("delete", start, err) }(time.Now())
	return i.Store.Delete(ctx, key)
}

func (i *Instrumented) Take(ctx context.Context, key string) (v []byte, err error) {
	defer func(start time.Time) { i.observe("take", start, err) }(time.Now())
	return i.Store.Take(ctx, key)
}

func (i *Instrumented) Apply(ctx context.Context, ops []Op) (err error) {
	defer func(start time.Time) { i.observe("apply", start, err) }(time.Now())
	return i.Store.Apply(ctx, ops)
}

func (i *Instrumented) Scan(ctx context.Context, prefix string) (keys []string, err error) {
	defer func(start time.Time) { i.observe("scan", start, err) }(time.Now())
	return i.Store.Scan(ctx, prefix)
}

func (i *Instrumented) Append(ctx context.Context, stream string, value []byte) (err error) {
	defer func(start time.Time) { i.observe("append", start, err) }(time.Now())
	return i.Store.Append(ctx, stream, value)
}

func (i *Instrumented) Tail(ctx context.Context, stream string, limit int) (entries [][]byte, err error) {
	defer func(start time.Time) { i.observe("tail", start, err) }(time.Now())
	return i.Store.Tail(ctx, stream, limit)
}

func (i *Instrumented) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { i.observe("ping", start, err) }(time.Now())
	return i.Store.Ping(ctx)
}

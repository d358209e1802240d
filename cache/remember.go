package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"golang.org/x/sync/singleflight"
)

// Reader wraps a Store with cache-or-compute semantics.
// Cache failures are logged and the value is computed; they never fail a read.
type Reader struct {
	Store  Store
	TTL    time.Duration
	Logger *log.Logger

	group singleflight.Group
}

func NewReader(store Store, ttl time.Duration, logger *log.Logger) *Reader {
	if logger == nil {
		logger = log.Default()
	}
	return &Reader{Store: store, TTL: ttl, Logger: logger}
}

// Remember returns the cached JSON value at key or computes, stores and
// returns it. Concurrent misses on the same key share one compute, which
// runs detached from any single caller's cancellation; a cancelled caller
// returns ctx.Err() while the others keep waiting.
//
// A value is not stored when an invalidation happened while it was being
// computed. An invalidation landing between that check and the Set can
// still leave a stale entry until its TTL.
func Remember[T any](ctx context.Context, r *Reader, key string, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := r.lookup(ctx, key, new(T)); ok {
		return *v.(*T), nil
	}

	ch := r.group.DoChan(key, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		gen := r.generation(shared)
		out, err := compute(shared)
		if err != nil {
			return nil, err
		}
		if r.generation(shared) != gen {
			r.Logger.Printf("[Cache] not storing %s: invalidated during compute", key)
			return out, nil
		}
		r.store(shared, key, out)
		return out, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// generation returns the current GenerationKey value, "" when unset.
func (r *Reader) generation(ctx context.Context) string {
	gen, _, err := r.Store.Get(ctx, GenerationKey)
	if err != nil {
		r.Logger.Printf("[Cache] get %s failed: %v", GenerationKey, err)
	}
	return gen
}

func (r *Reader) lookup(ctx context.Context, key string, dst any) (any, bool) {
	raw, ok, err := r.Store.Get(ctx, key)
	if err != nil {
		r.Logger.Printf("[Cache] get %s failed: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		r.Logger.Printf("[Cache] discarding undecodable entry %s: %v", key, err)
		return nil, false
	}
	return dst, true
}

func (r *Reader) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.Logger.Printf("[Cache] encode %s failed: %v", key, err)
		return
	}
	if err := r.Store.Set(ctx, key, string(data), r.TTL); err != nil {
		r.Logger.Printf("[Cache] set %s failed: %v", key, err)
	}
}

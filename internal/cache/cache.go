// Package cache memoizes reconciliation reads.
//
// Values are stored JSON-encoded under a logical key ("all", "id:<id>",
// "email:<email>"). Entries never expire and nothing in this package
// removes a single entry: the only way to drop cached results is Clear.
// Writes elsewhere in the application do not touch the cache unless the
// caller clears it explicitly, so a cached result can be stale right after
// a successful write.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"
)

// KeyAll is the key of the full student listing.
const KeyAll = "all"

// KeyID is the key of a student looked up by id.
func KeyID(id int64) string {
	return "id:" + strconv.FormatInt(id, 10)
}

// KeyEmail is the key of a student looked up by email. Emails compare
// case-insensitively, so the key is lower-cased.
func KeyEmail(email string) string {
	return "email:" + strings.ToLower(email)
}

// Store is a cache backend.
type Store interface {
	// Get returns the raw value under key; ok is false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	// Clear drops every entry owned by this store.
	Clear(ctx context.Context) error
}

// ResultCache wraps a Store with read-through loading.
type ResultCache struct {
	store Store
	group singleflight.Group
	log   *slog.Logger
}

// New wraps store. A nil logger means slog.Default().
func New(store Store, log *slog.Logger) *ResultCache {
	if log == nil {
		log = slog.Default()
	}
	return &ResultCache{store: store, log: log.With(slog.String("component", "cache"))}
}

// Clear drops every cached result.
func (c *ResultCache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	return nil
}

// Remember returns the cached value under key, or calls load and caches
// its result. A load error is returned as is and nothing is cached.
//
// Concurrent misses on the same key within this process share one load.
// That load runs detached from any single caller's cancellation, so a
// disconnecting client never fails the others waiting on it; each caller
// stops waiting when its own ctx is done. Every caller receives its own
// decoded copy of a shared result.
//
// Backend failures never fail the read: they are logged and treated as a
// miss (on Get) or ignored (on Set).
func Remember[T any](ctx context.Context, c *ResultCache, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T

	if raw, ok, err := c.store.Get(ctx, key); err != nil {
		c.log.WarnContext(ctx, "cache get failed", slog.String("key", key), slog.String("error", err.Error()))
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		c.log.WarnContext(ctx, "discarding undecodable cache entry", slog.String("key", key))
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(v)
		if err != nil {
			c.log.WarnContext(loadCtx, "cannot encode cache entry", slog.String("key", key), slog.String("error", err.Error()))
			return loaded{value: v}, nil
		}
		if err := c.store.Set(loadCtx, key, raw); err != nil {
			c.log.WarnContext(loadCtx, "cache set failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return loaded{value: v, raw: raw}, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return zero, res.Err
	}

	l, ok := res.Val.(loaded)
	if !ok {
		return zero, errors.New("cache: unexpected value type")
	}

	// the value itself is shared by every waiter; hand each one a copy
	if res.Shared && l.raw != nil {
		var v T
		if err := json.Unmarshal(l.raw, &v); err == nil {
			return v, nil
		}
	}

	out, ok := l.value.(T)
	if !ok {
		return zero, errors.New("cache: unexpected value type")
	}
	return out, nil
}

// loaded is what one shared load hands to its waiters.
type loaded struct {
	value any
	raw   []byte
}

// Package cache unifies the fast cache, the durable store and the in-process
// fallback store behind one read/write contract per entity type.
//
// Reads sequence the tiers fastest-first and backfill faster tiers on a hit
// from a slower one. Writes treat the durable store as the source of truth,
// coarsely invalidate the fast cache for the ticker, and fall back to the
// in-process store when the durable tier is down. "No data" is a valid
// terminal state on every read path, never an error.
package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"market-data-cache/internal/memstore"
	"market-data-cache/internal/models"
	"market-data-cache/internal/tiers"
)

// Facade provides the per-entity-type get/set operations.
type Facade struct {
	tiers *tiers.Manager
	mem   *memstore.Store
	ttl   time.Duration
	log   *zap.Logger
}

func NewFacade(t *tiers.Manager, mem *memstore.Store, ttl time.Duration, log *zap.Logger) *Facade {
	return &Facade{tiers: t, mem: mem, ttl: ttl, log: log}
}

// cacheGet loads a cached record slice from the fast cache. Errors are
// absorbed and treated as a miss.
func (f *Facade) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	rdb := f.tiers.Redis()
	if rdb == nil || key == "" {
		return false
	}
	found, err := rdb.GetJSON(ctx, key, dest)
	if err != nil {
		f.log.Warn("fast cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return found
}

// cacheSet writes through to the fast cache. Errors are absorbed.
func (f *Facade) cacheSet(ctx context.Context, key string, value interface{}) {
	rdb := f.tiers.Redis()
	if rdb == nil || key == "" {
		return
	}
	if err := rdb.SetJSON(ctx, key, value, f.ttl); err != nil {
		f.log.Warn("fast cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate deletes every fast-cache key issued for (dataset, ticker). The
// facade cannot enumerate each filter combination previously cached, so it
// trades precision for correctness and drops them all.
func (f *Facade) invalidate(ctx context.Context, entity models.EntityType, ticker string) {
	rdb := f.tiers.Redis()
	if rdb == nil {
		return
	}
	pattern := tiers.InvalidationPattern(string(entity), ticker)
	if _, err := rdb.DeletePattern(ctx, pattern); err != nil {
		f.log.Warn("fast cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

// InvalidateTicker deletes the ticker's fast-cache keys across every entity
// type. It never touches the durable store or the fallback store. The
// returned bool reports whether every pattern was processed without a cache
// I/O error.
func (f *Facade) InvalidateTicker(ctx context.Context, ticker string) bool {
	rdb := f.tiers.Redis()
	if rdb == nil {
		return true
	}
	ok := true
	for _, entity := range models.AllEntityTypes() {
		pattern := tiers.InvalidationPattern(string(entity), ticker)
		if _, err := rdb.DeletePattern(ctx, pattern); err != nil {
			f.log.Warn("fast cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
			ok = false
		}
	}
	return ok
}

// writeOutcome applies the write-path tail shared by every entity type:
// coarse invalidation, fallback merge when the fallback tier is in use, and
// the overall success rule (at least one tier accepted the write, or no tier
// is configured at all).
func (f *Facade) writeOutcome(ctx context.Context, entity models.EntityType, ticker string,
	durableTried, durableOK bool, records []models.Record) bool {

	f.invalidate(ctx, entity, ticker)

	memUsed := f.tiers.Mode() == tiers.ModeMemoryOnly || (durableTried && !durableOK)
	if memUsed {
		f.mem.Merge(entity, ticker, records)
	}

	if durableTried {
		return durableOK || memUsed
	}
	return true
}

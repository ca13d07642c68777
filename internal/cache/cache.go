// Package cache implements the two-tier fingerprint cache: an in-process
// TTL map in front of the persistent ledger_cache_entries table.
//
// The cache is an optimisation only. Every failure reading the table is
// reported as a miss so callers fall through to the ledger.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/rxledger/rxledger/internal/conf"
	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/datastore/repository"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/fingerprint"
	"github.com/rxledger/rxledger/internal/logger"
)

// FingerprintCache maps fingerprints to the ledger index they were recorded at.
type FingerprintCache struct {
	memory *gocache.Cache
	table  repository.CacheRepository
	log    logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
	janitor  sync.WaitGroup

	memoryHits  atomic.Uint64
	tableHits   atomic.Uint64
	misses      atomic.Uint64
	tableErrors atomic.Uint64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	MemoryItems int    `json:"memory_items"`
	MemoryHits  uint64 `json:"memory_hits"`
	TableHits   uint64 `json:"table_hits"`
	Misses      uint64 `json:"misses"`
	TableErrors uint64 `json:"table_errors"`
}

// New creates a FingerprintCache. A positive CleanupInterval starts a
// janitor goroutine that runs until Close; with zero, expired items are only
// dropped lazily on access.
func New(table repository.CacheRepository, settings conf.CacheSettings, log logger.Logger) *FingerprintCache {
	if log == nil {
		log = logger.Global().Module("cache")
	}
	ttl := settings.TTL
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c := &FingerprintCache{
		memory: gocache.New(ttl, 0),
		table:  table,
		log:    log,
		stop:   make(chan struct{}),
	}
	if settings.CleanupInterval > 0 {
		c.janitor.Go(func() { c.runJanitor(settings.CleanupInterval) })
	}
	return c
}

func (c *FingerprintCache) runJanitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.memory.DeleteExpired()
		case <-c.stop:
			return
		}
	}
}

// Close stops the janitor and waits for it to exit. It is safe to call more
// than once.
func (c *FingerprintCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.janitor.Wait()
}

// Get returns the cached entry for fp, consulting memory then the table.
// A table hit is promoted to memory.
func (c *FingerprintCache) Get(ctx context.Context, fp fingerprint.Fingerprint) (*entities.CacheEntry, bool) {
	if v, ok := c.memory.Get(string(fp)); ok {
		if entry, ok := v.(entities.CacheEntry); ok {
			c.memoryHits.Add(1)
			return &entry, true
		}
	}

	entry, err := c.table.Get(ctx, string(fp))
	switch {
	case err == nil:
		c.tableHits.Add(1)
		c.memory.SetDefault(string(fp), *entry)
		return entry, true
	case errors.Is(err, repository.ErrCacheEntryNotFound):
		c.misses.Add(1)
		return nil, false
	default:
		c.tableErrors.Add(1)
		c.log.Warn("cache table read failed, treating as miss",
			logger.String("fingerprint", fp.Short()),
			logger.Error(err))
		return nil, false
	}
}

// Put writes entry to both tiers. ObservedAt defaults to now.
func (c *FingerprintCache) Put(ctx context.Context, entry entities.CacheEntry) error {
	if entry.ObservedAt.IsZero() {
		entry.ObservedAt = time.Now().UTC()
	}
	if err := c.table.Upsert(ctx, &entry); err != nil {
		c.memory.Delete(entry.Fingerprint)
		return errors.New(err).
			Component("cache").
			Category(errors.CategoryCache).
			Context("fingerprint", entry.Fingerprint).
			Context("operation", "cache_put").
			Build()
	}
	c.memory.SetDefault(entry.Fingerprint, entry)
	return nil
}

// Invalidate drops fp from both tiers.
func (c *FingerprintCache) Invalidate(ctx context.Context, fp fingerprint.Fingerprint) error {
	c.memory.Delete(string(fp))
	if err := c.table.Delete(ctx, string(fp)); err != nil {
		return errors.New(err).
			Component("cache").
			Category(errors.CategoryCache).
			Context("fingerprint", string(fp)).
			Build()
	}
	return nil
}

// Clear empties both tiers and returns the number of table rows removed.
func (c *FingerprintCache) Clear(ctx context.Context) (int64, error) {
	c.memory.Flush()
	removed, err := c.table.Clear(ctx)
	if err != nil {
		return 0, errors.New(err).
			Component("cache").
			Category(errors.CategoryCache).
			Context("operation", "cache_clear").
			Build()
	}
	c.log.Info("fingerprint cache cleared", logger.Int64("rows_removed", removed))
	return removed, nil
}

// Stats returns the current counters.
func (c *FingerprintCache) Stats() Stats {
	return Stats{
		MemoryItems: c.memory.ItemCount(),
		MemoryHits:  c.memoryHits.Load(),
		TableHits:   c.tableHits.Load(),
		Misses:      c.misses.Load(),
		TableErrors: c.tableErrors.Load(),
	}
}

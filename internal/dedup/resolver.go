// Package dedup decides whether a fingerprint is already recorded on the
// ledger, consulting the fingerprint cache first and the ledger second.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/fingerprint"
	"github.com/rxledger/rxledger/internal/ledger"
	"github.com/rxledger/rxledger/internal/logger"
	"github.com/rxledger/rxledger/internal/observability/metrics"
)

// ErrCheckFailed is returned when the ledger tier could not be consulted.
// A submission must not write to the ledger after this error.
var ErrCheckFailed = errors.NewStd("dedup check failed")

// Cache is the fingerprint cache as seen by the resolver.
type Cache interface {
	Get(ctx context.Context, fp fingerprint.Fingerprint) (*entities.CacheEntry, bool)
	Put(ctx context.Context, entry entities.CacheEntry) error
}

// Ledger is the authoritative lookup.
type Ledger interface {
	Lookup(ctx context.Context, fp fingerprint.Fingerprint) (*ledger.Record, bool, error)
}

// Resolution is the result of a dedup check.
type Resolution struct {
	Hit       bool
	Record    *ledger.Record // set on Hit
	FromCache bool
}

// Resolver implements the two-tier dedup check.
type Resolver struct {
	cache   Cache
	ledger  Ledger
	log     logger.Logger
	metrics metrics.Recorder
}

// NewResolver creates a Resolver. recorder may be nil.
func NewResolver(cache Cache, l Ledger, log logger.Logger, recorder metrics.Recorder) *Resolver {
	if log == nil {
		log = logger.Global().Module("dedup")
	}
	return &Resolver{
		cache:   cache,
		ledger:  l,
		log:     log,
		metrics: metrics.OrNoOp(recorder),
	}
}

// Resolve answers from the cache when it has the fingerprint, otherwise from
// the ledger. A ledger hit refreshes the cache.
func (r *Resolver) Resolve(ctx context.Context, fp fingerprint.Fingerprint) (Resolution, error) {
	start := time.Now()
	defer func() { r.metrics.RecordDuration(metrics.OpResolve, time.Since(start).Seconds()) }()

	if entry, ok := r.cache.Get(ctx, fp); ok {
		r.metrics.RecordOperation(metrics.OpResolve, metrics.TierCache)
		r.log.Debug("dedup hit in cache",
			logger.String("fingerprint", fp.Short()),
			logger.Uint64("ledger_index", entry.LedgerIndex))
		return Resolution{Hit: true, Record: recordFromEntry(fp, entry), FromCache: true}, nil
	}
	return r.resolveLedger(ctx, metrics.OpResolve, fp)
}

// ResolveFresh skips the cache tier. Used to reconcile after a rejected or
// timed out append, where only the ledger can answer.
func (r *Resolver) ResolveFresh(ctx context.Context, fp fingerprint.Fingerprint) (Resolution, error) {
	start := time.Now()
	defer func() { r.metrics.RecordDuration(metrics.OpResolveLive, time.Since(start).Seconds()) }()
	return r.resolveLedger(ctx, metrics.OpResolveLive, fp)
}

func (r *Resolver) resolveLedger(ctx context.Context, op string, fp fingerprint.Fingerprint) (Resolution, error) {
	rec, found, err := r.ledger.Lookup(ctx, fp)
	if err != nil {
		r.metrics.RecordOperation(op, metrics.TierError)
		r.metrics.RecordError(op, "ledger_lookup")
		r.log.Warn("dedup ledger lookup failed",
			logger.String("fingerprint", fp.Short()),
			logger.Error(err))
		return Resolution{}, errors.New(fmt.Errorf("%w: %w", ErrCheckFailed, err)).
			Component("dedup").
			Category(errors.CategoryDedup).
			Context("fingerprint", string(fp)).
			Context("operation", op).
			Build()
	}
	if !found {
		r.metrics.RecordOperation(op, metrics.TierMiss)
		return Resolution{}, nil
	}

	r.metrics.RecordOperation(op, metrics.TierLedger)
	entry := entities.CacheEntry{
		Fingerprint: string(fp),
		LedgerIndex: rec.Index,
		TxHash:      rec.TxHash,
		BlockNumber: rec.BlockNumber,
	}
	if err := r.cache.Put(ctx, entry); err != nil {
		r.log.Warn("failed to refresh fingerprint cache",
			logger.String("fingerprint", fp.Short()),
			logger.Error(err))
	}
	return Resolution{Hit: true, Record: rec}, nil
}

// recordFromEntry rebuilds the identifying part of a ledger record.
// Detections, timestamp and submitter are not cached, so it is Partial.
func recordFromEntry(fp fingerprint.Fingerprint, entry *entities.CacheEntry) *ledger.Record {
	return &ledger.Record{
		Index:       entry.LedgerIndex,
		Fingerprint: fp,
		TxHash:      entry.TxHash,
		BlockNumber: entry.BlockNumber,
		Partial:     true,
	}
}

// Package recording runs a verification submission end to end: detect,
// fingerprint, dedup, persist inspection rows, then append to the ledger.
//
// Submissions of the same fingerprint are serialised in-process; the
// contract's duplicate guard covers writers in other processes.
package recording

import (
	"context"
	"fmt"
	"time"

	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/datastore/repository"
	"github.com/rxledger/rxledger/internal/dedup"
	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/fingerprint"
	"github.com/rxledger/rxledger/internal/ledger"
	"github.com/rxledger/rxledger/internal/logger"
	"github.com/rxledger/rxledger/internal/observability/metrics"
)

// ErrLocalInconsistency marks a ledger write that succeeded while the local
// store could not be brought in line with it.
var ErrLocalInconsistency = errors.NewStd("local store inconsistent with ledger")

// ErrSubmissionInFlight is returned when the caller's context ends while
// another submission of the same fingerprint holds the lock.
var ErrSubmissionInFlight = errors.NewStd("submission of the same image in flight")

// ErrReviewedMismatch is returned on a retry whose detections differ from
// stored inspections that have already been reviewed.
var ErrReviewedMismatch = errors.NewStd("stored inspections already reviewed and differ from detections")

// reconcileTimeout bounds the fresh lookup after a rejected or timed out append.
const reconcileTimeout = 30 * time.Second

// Resolver is the dedup check.
type Resolver interface {
	Resolve(ctx context.Context, fp fingerprint.Fingerprint) (dedup.Resolution, error)
	ResolveFresh(ctx context.Context, fp fingerprint.Fingerprint) (dedup.Resolution, error)
}

// Ledger is the write side of the ledger client.
type Ledger interface {
	Append(ctx context.Context, fp fingerprint.Fingerprint, detections []detection.Detection) (*ledger.Record, error)
}

// CacheWriter records successful appends in the fingerprint cache.
type CacheWriter interface {
	Put(ctx context.Context, entry entities.CacheEntry) error
}

// Deps are the collaborators of an Orchestrator. Crops, Logger and Metrics
// are optional.
type Deps struct {
	Detector    detection.Detector
	Resolver    Resolver
	Ledger      Ledger
	Inspections repository.InspectionRepository
	Cache       CacheWriter
	Crops       *CropStore
	Logger      logger.Logger
	Metrics     metrics.Recorder
}

// SubmitRequest is one image submission.
type SubmitRequest struct {
	Image       []byte
	LotID       *string
	SubmittedBy *string
}

// Orchestrator implements Submit.
type Orchestrator struct {
	detector    detection.Detector
	resolver    Resolver
	ledger      Ledger
	inspections repository.InspectionRepository
	cache       CacheWriter
	crops       *CropStore
	log         logger.Logger
	metrics     metrics.Recorder

	locks *keyedMutex
}

// New creates an Orchestrator.
func New(d Deps) (*Orchestrator, error) {
	switch {
	case d.Detector == nil:
		return nil, missingDep("detector")
	case d.Resolver == nil:
		return nil, missingDep("resolver")
	case d.Ledger == nil:
		return nil, missingDep("ledger")
	case d.Inspections == nil:
		return nil, missingDep("inspections")
	case d.Cache == nil:
		return nil, missingDep("cache")
	}
	log := d.Logger
	if log == nil {
		log = logger.Global().Module("recording")
	}
	return &Orchestrator{
		detector:    d.Detector,
		resolver:    d.Resolver,
		ledger:      d.Ledger,
		inspections: d.Inspections,
		cache:       d.Cache,
		crops:       d.Crops,
		log:         log,
		metrics:     metrics.OrNoOp(d.Metrics),
		locks:       newKeyedMutex(),
	}, nil
}

// Submit records one image. Detector failures, failed dedup checks and local
// persistence failures before the ledger write are returned as errors; every
// ledger outcome is reported through the Outcome.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*Outcome, error) {
	start := time.Now()
	out, err := o.submit(ctx, req)
	o.metrics.RecordDuration(metrics.OpSubmit, time.Since(start).Seconds())
	if err != nil {
		o.metrics.RecordError(metrics.OpSubmit, submitErrorType(err))
		return nil, err
	}
	o.metrics.RecordOperation(metrics.OpSubmit, out.Kind.String())
	if out.Inconsistent() {
		o.metrics.RecordError(metrics.OpSubmit, "inconsistency")
	}
	return out, nil
}

func (o *Orchestrator) submit(ctx context.Context, req SubmitRequest) (*Outcome, error) {
	if len(req.Image) == 0 {
		return nil, errors.Newf("image is empty").
			Component("recording").
			Category(errors.CategoryValidation).
			Build()
	}

	detections, err := o.detector.Detect(ctx, req.Image)
	if err != nil {
		return nil, err
	}
	if len(detections) == 0 {
		o.log.Info("submission has no detections")
		return &Outcome{Kind: KindNoDetections, Detections: []detection.Detection{}}, nil
	}

	fp := fingerprint.Of(req.Image)
	log := o.log.With(logger.String("fingerprint", fp.Short()))

	unlock, err := o.locks.Lock(ctx, string(fp))
	if err != nil {
		log.Info("gave up waiting for in-flight submission", logger.Error(err))
		return nil, errors.New(fmt.Errorf("%w: %w", ErrSubmissionInFlight, err)).
			Component("recording").
			Category(errors.CategoryTimeout).
			Context("fingerprint", string(fp)).
			Build()
	}
	defer unlock()

	res, err := o.resolver.Resolve(ctx, fp)
	if err != nil {
		return nil, err
	}
	if res.Hit {
		log.Info("submission already verified",
			logger.Uint64("ledger_index", res.Record.Index),
			logger.Bool("from_cache", res.FromCache))
		return &Outcome{
			Kind:        KindAlreadyVerified,
			Fingerprint: fp,
			Record:      res.Record,
			FromCache:   res.FromCache,
			Detections:  detections,
		}, nil
	}

	rows, err := o.persist(ctx, fp, req, detections)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Fingerprint: fp, Detections: detections, Inspections: rows}

	rec, err := o.ledger.Append(ctx, fp, detections)
	if err != nil {
		return o.reconcile(ctx, out, err), nil
	}

	out.Kind = KindRecorded
	out.Record = rec
	out.Reason = o.cacheRecord(ctx, rec)
	log.Info("verification recorded",
		logger.Uint64("ledger_index", rec.Index),
		logger.String("tx_hash", rec.TxHash),
		logger.Int("inspections", len(rows)))
	return out, nil
}

// persist stores one PENDING row per detection. Rows left behind by an
// earlier submission whose ledger write failed are reused when they match
// the detections by position; a lot or user given now only fills rows that
// have none. Non-matching PENDING rows are replaced.
func (o *Orchestrator) persist(ctx context.Context, fp fingerprint.Fingerprint, req SubmitRequest, detections []detection.Detection) ([]entities.InspectionRecord, error) {
	existing, err := o.inspections.ListByFingerprint(ctx, string(fp))
	if err != nil {
		return nil, persistError(fp, err)
	}
	if len(existing) > 0 && !rowsMatch(existing, detections) {
		return o.replace(ctx, fp, req, existing, detections)
	}
	if len(existing) > 0 {
		if req.LotID != nil || req.SubmittedBy != nil {
			if err := o.inspections.FillMissing(ctx, string(fp), req.LotID, req.SubmittedBy); err != nil {
				return nil, persistError(fp, err)
			}
			if existing, err = o.inspections.ListByFingerprint(ctx, string(fp)); err != nil {
				return nil, persistError(fp, err)
			}
		}
		o.log.Info("retrying ledger write for stored inspections",
			logger.String("fingerprint", fp.Short()),
			logger.Int("inspections", len(existing)))
		return existing, nil
	}

	records := o.newRecords(fp, req.Image, detections, req.LotID, req.SubmittedBy)
	if err := o.inspections.CreateBatch(ctx, records); err != nil {
		return nil, persistError(fp, err)
	}
	return derefRecords(records), nil
}

// replace swaps stale PENDING rows for rows built from the current
// detections. Lot and user carry over from the stale rows when the request
// gives none.
func (o *Orchestrator) replace(ctx context.Context, fp fingerprint.Fingerprint, req SubmitRequest, existing []entities.InspectionRecord, detections []detection.Detection) ([]entities.InspectionRecord, error) {
	lotID, submittedBy := req.LotID, req.SubmittedBy
	for i := range existing {
		if lotID == nil {
			lotID = existing[i].LotID
		}
		if submittedBy == nil {
			submittedBy = existing[i].SubmittedBy
		}
	}

	records := o.newRecords(fp, req.Image, detections, lotID, submittedBy)
	err := o.inspections.ReplacePending(ctx, string(fp), records)
	if errors.Is(err, repository.ErrInspectionReviewed) {
		return nil, errors.New(fmt.Errorf("%w: %w", ErrReviewedMismatch, err)).
			Component("recording").
			Category(errors.CategoryConflict).
			Context("fingerprint", string(fp)).
			Build()
	}
	if err != nil {
		return nil, persistError(fp, err)
	}
	o.log.Warn("detections changed since the failed ledger write, inspections replaced",
		logger.String("fingerprint", fp.Short()),
		logger.Int("previous", len(existing)),
		logger.Int("inspections", len(records)))
	return derefRecords(records), nil
}

func (o *Orchestrator) newRecords(fp fingerprint.Fingerprint, img []byte, detections []detection.Detection, lotID, submittedBy *string) []*entities.InspectionRecord {
	refs, err := o.crops.Save(fp, img, detections)
	if err != nil {
		o.log.Warn("failed to store crops",
			logger.String("fingerprint", fp.Short()),
			logger.Error(err))
	}

	records := make([]*entities.InspectionRecord, len(detections))
	for i, d := range detections {
		records[i] = &entities.InspectionRecord{
			Fingerprint: string(fp),
			Position:    i,
			Result:      d.Combined,
			Confidence:  d.Confidence(),
			BBox:        d.BBox,
			CropRef:     refs[i],
			SubmittedBy: submittedBy,
			LotID:       lotID,
			Status:      entities.StatusPending,
		}
	}
	return records
}

// rowsMatch reports whether stored rows describe the same regions as
// detections, position by position.
func rowsMatch(rows []entities.InspectionRecord, detections []detection.Detection) bool {
	if len(rows) != len(detections) {
		return false
	}
	for i, row := range rows {
		d := detections[i]
		if row.Position != i || row.Result != d.Combined || row.BBox != d.BBox {
			return false
		}
	}
	return true
}

func derefRecords(records []*entities.InspectionRecord) []entities.InspectionRecord {
	rows := make([]entities.InspectionRecord, len(records))
	for i, r := range records {
		rows[i] = *r
	}
	return rows
}

// reconcile turns a failed append into an outcome. A rejection or a mining
// timeout may mean the fingerprint is on the ledger after all, so only a
// fresh ledger read decides.
func (o *Orchestrator) reconcile(ctx context.Context, out *Outcome, appendErr error) *Outcome {
	log := o.log.With(logger.String("fingerprint", out.Fingerprint.Short()))
	out.Kind = KindRecordingFailed
	out.Reason = appendErr

	rejected := errors.Is(appendErr, ledger.ErrRejected)
	timedOut := errors.Is(appendErr, ledger.ErrTimeout)
	if !rejected && !timedOut {
		log.Warn("ledger write failed, inspections kept", logger.Error(appendErr))
		return out
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
	defer cancel()
	res, err := o.resolver.ResolveFresh(rctx, out.Fingerprint)
	if err != nil {
		log.Warn("reconciliation lookup failed", logger.Error(err))
		out.Reason = errors.Join(appendErr, err)
		return out
	}
	if !res.Hit {
		log.Warn("ledger write failed, fingerprint not on ledger", logger.Error(appendErr))
		return out
	}

	out.Record = res.Record
	out.Reason = nil
	if rejected {
		// Another writer recorded the same content first.
		out.Kind = KindAlreadyVerified
		log.Info("append rejected, fingerprint already on ledger",
			logger.Uint64("ledger_index", res.Record.Index))
		return out
	}
	out.Kind = KindRecorded
	log.Info("append timed out but transaction landed",
		logger.Uint64("ledger_index", res.Record.Index))
	return out
}

// cacheRecord writes the new record to the cache. Failure leaves the chain
// ahead of the local store and is reported as a critical inconsistency.
func (o *Orchestrator) cacheRecord(ctx context.Context, rec *ledger.Record) error {
	err := o.cache.Put(ctx, entities.CacheEntry{
		Fingerprint: string(rec.Fingerprint),
		LedgerIndex: rec.Index,
		TxHash:      rec.TxHash,
		BlockNumber: rec.BlockNumber,
	})
	if err == nil {
		return nil
	}
	o.log.Error("ledger record written but cache update failed",
		logger.String("fingerprint", rec.Fingerprint.Short()),
		logger.Uint64("ledger_index", rec.Index),
		logger.String("tx_hash", rec.TxHash),
		logger.Error(err))
	return errors.New(fmt.Errorf("%w: %w", ErrLocalInconsistency, err)).
		Component("recording").
		Category(errors.CategoryInconsistency).
		Priority(errors.PriorityCritical).
		Context("fingerprint", string(rec.Fingerprint)).
		Context("ledger_index", rec.Index).
		Context("tx_hash", rec.TxHash).
		Build()
}

func persistError(fp fingerprint.Fingerprint, err error) error {
	return errors.New(fmt.Errorf("persist inspections: %w", err)).
		Component("recording").
		Category(errors.CategoryDatabase).
		Context("fingerprint", string(fp)).
		Build()
}

func missingDep(name string) error {
	return errors.Newf("recording: %s is required", name).
		Component("recording").
		Category(errors.CategoryConfiguration).
		Build()
}

func submitErrorType(err error) string {
	switch {
	case errors.Is(err, dedup.ErrCheckFailed):
		return "dedup"
	case errors.Is(err, ErrSubmissionInFlight):
		return "in_flight"
	case errors.Is(err, ErrReviewedMismatch):
		return "reviewed_mismatch"
	case errors.IsCategory(err, errors.CategoryDetector), errors.IsCategory(err, errors.CategoryTimeout):
		return "detector"
	case errors.IsCategory(err, errors.CategoryDatabase):
		return "persist"
	case errors.IsCategory(err, errors.CategoryValidation):
		return "validation"
	default:
		return "other"
	}
}

package recording

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/dedup"
	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/detector"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/fingerprint"
	"github.com/rxledger/rxledger/internal/ledger"
	"github.com/rxledger/rxledger/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubmitTwoRegionsRecordsOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	img := testImage(t, 1)
	lot := "lot-7"

	out, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img, LotID: &lot})
	require.NoError(t, err)

	fp := fingerprint.Of(img)
	assert.Equal(t, KindRecorded, out.Kind)
	assert.Equal(t, fp, out.Fingerprint)
	require.NotNil(t, out.Record)
	require.NoError(t, out.Reason)
	assert.False(t, out.Inconsistent())

	rows := h.rows(t, fp)
	require.Len(t, rows, 2)
	assert.Equal(t, entities.StatusPending, rows[0].Status)
	assert.Equal(t, entities.StatusPending, rows[1].Status)
	assert.NotEqual(t, rows[0].BBox, rows[1].BBox)
	assert.Equal(t, detection.ResultGenuine, rows[0].Result)
	assert.Equal(t, detection.ResultCounterfeit, rows[1].Result)
	assert.InDelta(t, 0.83, rows[1].Confidence, 1e-9)
	assert.Equal(t, "lot-7", *rows[0].LotID)
	assert.Nil(t, rows[0].SubmittedBy)

	for _, row := range rows {
		require.NotNil(t, row.CropRef)
		_, err := os.Stat(*row.CropRef)
		require.NoError(t, err)
	}

	rec, ok := h.ledger.record(fp)
	require.True(t, ok)
	assert.Len(t, rec.Detections, 2)
	assert.Equal(t, int32(1), h.ledger.appends.Load())

	entry, ok := h.cache.Get(t.Context(), fp)
	require.True(t, ok)
	assert.Equal(t, rec.Index, entry.LedgerIndex)
	assert.Equal(t, 1, h.metrics.GetOperationCount(metrics.OpSubmit, KindRecorded.String()))
}

func TestSubmitNoDetections(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.detector.detections = []detection.Detection{}
	img := testImage(t, 2)

	out, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.NoError(t, err)

	assert.Equal(t, KindNoDetections, out.Kind)
	assert.Empty(t, out.Fingerprint)
	assert.Empty(t, h.rows(t, fingerprint.Of(img)))
	assert.Zero(t, h.ledger.appends.Load())
	assert.Zero(t, h.ledger.lookups.Load())
}

func TestResubmitIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	img := testImage(t, 3)

	first, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.NoError(t, err)
	require.Equal(t, KindRecorded, first.Kind)

	second, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.NoError(t, err)
	assert.Equal(t, KindAlreadyVerified, second.Kind)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Record.Index, second.Record.Index)
	assert.Empty(t, second.Inspections)

	assert.Equal(t, int32(1), h.ledger.appends.Load())
	assert.Len(t, h.rows(t, fingerprint.Of(img)), 2)
}

func TestResubmitWithClearedCacheAsksLedger(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	img := testImage(t, 4)

	_, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.NoError(t, err)
	_, err = h.cache.Clear(t.Context())
	require.NoError(t, err)

	out, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.NoError(t, err)
	assert.Equal(t, KindAlreadyVerified, out.Kind)
	assert.False(t, out.FromCache)
	assert.Equal(t, int32(1), h.ledger.appends.Load())
}

func TestLedgerUnreachableKeepsInspections(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ledger.appendErr = fmt.Errorf("%w: dial tcp: connection refused", ledger.ErrUnavailable)
	img := testImage(t, 5)
	fp := fingerprint.Of(img)

	out, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.NoError(t, err)
	assert.Equal(t, KindRecordingFailed, out.Kind)
	require.ErrorIs(t, out.Reason, ledger.ErrUnavailable)
	assert.Nil(t, out.Record)

	rows := h.rows(t, fp)
	require.Len(t, rows, 2)
	assert.Equal(t, entities.StatusPending, rows[0].Status)

	res, err := h.resolver.ResolveFresh(t.Context(), fp)
	require.NoError(t, err)
	assert.False(t, res.Hit)
}

func TestRetryAfterFailureReusesInspections(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ledger.appendErr = fmt.Errorf("%w: node down", ledger.ErrUnavailable)
	img := testImage(t, 6)
	fp := fingerprint.Of(img)

	_, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.NoError(t, err)
	before := h.rows(t, fp)
	require.Len(t, before, 2)

	h.ledger.appendErr = nil
	lot, user := "lot-42", "inspector-3"
	out, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img, LotID: &lot, SubmittedBy: &user})
	require.NoError(t, err)
	assert.Equal(t, KindRecorded, out.Kind)

	after := h.rows(t, fp)
	require.Len(t, after, 2)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, before[1].ID, after[1].ID)
	assert.Equal(t, "lot-42", *after[0].LotID)
	assert.Equal(t, "inspector-3", *after[1].SubmittedBy)
	require.Len(t, out.Inspections, 2)
	assert.Equal(t, int32(2), h.ledger.appends.Load())
}

func TestRetryWithChangedDetectionsReplacesInspections(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ledger.appendErr = fmt.Errorf("%w: node down", ledger.ErrUnavailable)
	img := testImage(t, 40)
	fp := fingerprint.Of(img)
	lot := "lot-9"

	out, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img, LotID: &lot})
	require.NoError(t, err)
	require.Equal(t, KindRecordingFailed, out.Kind)
	before := h.rows(t, fp)
	require.Len(t, before, 2)

	h.ledger.appendErr = nil
	h.detector.detections = twoRegions()[1:]
	out, err = h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.NoError(t, err)
	assert.Equal(t, KindRecorded, out.Kind)

	rec, ok := h.ledger.record(fp)
	require.True(t, ok)
	require.Len(t, rec.Detections, 1)

	after := h.rows(t, fp)
	require.Len(t, after, 1)
	assert.NotEqual(t, before[0].ID, after[0].ID)
	assert.Equal(t, rec.Detections[0].BBox, after[0].BBox)
	assert.Equal(t, detection.ResultCounterfeit, after[0].Result)
	assert.Equal(t, "lot-9", *after[0].LotID)
	require.Len(t, out.Inspections, 1)
	assert.Equal(t, after[0].ID, out.Inspections[0].ID)
}

func TestRetryWithChangedDetectionsAfterReviewFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ledger.appendErr = fmt.Errorf("%w: node down", ledger.ErrUnavailable)
	img := testImage(t, 41)
	fp := fingerprint.Of(img)

	_, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.NoError(t, err)
	before := h.rows(t, fp)
	n, err := h.db.Inspections().TransitionStatus(t.Context(), before[0].ID, entities.StatusPending, entities.StatusApproved)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	h.ledger.appendErr = nil
	h.detector.detections = twoRegions()[:1]
	_, err = h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.ErrorIs(t, err, ErrReviewedMismatch)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	_, ok := h.ledger.record(fp)
	assert.False(t, ok)
	assert.Len(t, h.rows(t, fp), 2)
	assert.Equal(t, int32(1), h.ledger.appends.Load())
}

func TestWaitingDuplicateHonoursDeadline(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ledger.appendLatency = 400 * time.Millisecond
	img := testImage(t, 42)

	first := make(chan *Outcome, 1)
	go func() {
		out, err := h.orch.Submit(context.WithoutCancel(t.Context()), SubmitRequest{Image: img})
		assert.NoError(t, err)
		first <- out
	}()
	require.Eventually(t, func() bool { return h.ledger.appends.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := h.orch.Submit(ctx, SubmitRequest{Image: img})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrSubmissionInFlight)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 300*time.Millisecond)

	out := <-first
	require.NotNil(t, out)
	assert.Equal(t, KindRecorded, out.Kind)
	assert.Equal(t, int32(1), h.ledger.appends.Load())
	assert.Zero(t, h.orch.locks.size())
}

func TestDedupCheckFailureAbortsBeforeWrite(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ledger.lookupErr = fmt.Errorf("%w: rpc timeout", ledger.ErrUnavailable)
	img := testImage(t, 7)

	out, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.ErrorIs(t, err, dedup.ErrCheckFailed)
	assert.Nil(t, out)
	assert.Zero(t, h.ledger.appends.Load())
	assert.Empty(t, h.rows(t, fingerprint.Of(img)))
	assert.Equal(t, 1, h.metrics.GetErrorCount(metrics.OpSubmit, "dedup"))
}

func TestDetectorFailurePropagates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.detector.err = errors.New(fmt.Errorf("%w: connection refused", detector.ErrUnreachable)).
		Category(errors.CategoryDetector).
		Build()
	img := testImage(t, 8)

	_, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.ErrorIs(t, err, detector.ErrUnreachable)
	assert.Zero(t, h.ledger.lookups.Load())
	assert.Empty(t, h.rows(t, fingerprint.Of(img)))
	assert.Equal(t, 1, h.metrics.GetErrorCount(metrics.OpSubmit, "detector"))
}

func TestRejectedAppendBecomesAlreadyVerified(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ledger.raceWinner = true
	img := testImage(t, 9)
	fp := fingerprint.Of(img)

	out, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.NoError(t, err)
	assert.Equal(t, KindAlreadyVerified, out.Kind)
	require.NoError(t, out.Reason)
	assert.Equal(t, otherWriter, out.Record.Submitter)

	// The fresh lookup refreshed the cache.
	_, ok := h.cache.Get(t.Context(), fp)
	assert.True(t, ok)
}

func TestTimedOutAppendThatLandedIsRecorded(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ledger.appendErr = fmt.Errorf("%w: no receipt", ledger.ErrTimeout)
	h.ledger.landAnyway = true
	img := testImage(t, 10)

	out, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.NoError(t, err)
	assert.Equal(t, KindRecorded, out.Kind)
	require.NotNil(t, out.Record)
	require.NoError(t, out.Reason)
	assert.Len(t, out.Inspections, 2)
}

func TestTimedOutAppendNotLandedFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ledger.appendErr = fmt.Errorf("%w: no receipt", ledger.ErrTimeout)
	img := testImage(t, 11)

	out, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.NoError(t, err)
	assert.Equal(t, KindRecordingFailed, out.Kind)
	require.ErrorIs(t, out.Reason, ledger.ErrTimeout)
	assert.Equal(t, int32(2), h.ledger.lookups.Load())
}

func TestCacheFailureAfterAppendIsInconsistency(t *testing.T) {
	t.Parallel()
	h := newHarness(t, withCacheWriter(failingCache{}))
	img := testImage(t, 12)

	out, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
	require.NoError(t, err)
	assert.Equal(t, KindRecorded, out.Kind)
	assert.True(t, out.Inconsistent())
	require.ErrorIs(t, out.Reason, ErrLocalInconsistency)
	assert.True(t, errors.IsCategory(out.Reason, errors.CategoryInconsistency))

	var ee *errors.EnhancedError
	require.ErrorAs(t, out.Reason, &ee)
	assert.Equal(t, errors.PriorityCritical, ee.GetPriority())
	assert.Equal(t, 1, h.metrics.GetErrorCount(metrics.OpSubmit, "inconsistency"))
}

func TestConcurrentDuplicateSubmissionsAppendOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ledger.appendLatency = 20 * time.Millisecond
	img := testImage(t, 13)

	const writers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		kinds = map[Kind]int{}
	)
	for range writers {
		wg.Go(func() {
			out, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			kinds[out.Kind]++
			mu.Unlock()
		})
	}
	wg.Wait()

	assert.Equal(t, 1, kinds[KindRecorded])
	assert.Equal(t, writers-1, kinds[KindAlreadyVerified])
	assert.Equal(t, int32(1), h.ledger.appends.Load())
	assert.Len(t, h.rows(t, fingerprint.Of(img)), 2)
	assert.Zero(t, h.orch.locks.size())
}

func TestConcurrentDistinctSubmissions(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := range 5 {
		img := testImage(t, uint8(20+i))
		wg.Go(func() {
			out, err := h.orch.Submit(t.Context(), SubmitRequest{Image: img})
			if assert.NoError(t, err) {
				assert.Equal(t, KindRecorded, out.Kind)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(5), h.ledger.appends.Load())
	pending, err := h.db.Inspections().ListByStatus(t.Context(), entities.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 10)
}

func TestEmptyImageRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.orch.Submit(t.Context(), SubmitRequest{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Zero(t, h.detector.calls.Load())
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

package review

import (
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxledger/rxledger/internal/conf"
	"github.com/rxledger/rxledger/internal/datastore"
	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/logger"
	"github.com/rxledger/rxledger/internal/observability/metrics"
)

const testFP = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

type fixture struct {
	svc     *Service
	db      *datastore.DB
	metrics *metrics.TestRecorder
	ids     []string
	lot     *entities.Lot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, nil)
	db, err := datastore.Open(conf.DatabaseSettings{
		SQLite: conf.SQLiteSettings{Path: filepath.Join(t.TempDir(), "rx.db")},
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	recs := []*entities.InspectionRecord{
		{Fingerprint: testFP, Position: 0, Result: detection.ResultGenuine, Confidence: 0.9, BBox: detection.BBox{X2: 10, Y2: 10}},
		{Fingerprint: testFP, Position: 1, Result: detection.ResultCounterfeit, Confidence: 0.8, BBox: detection.BBox{X1: 10, X2: 20, Y2: 10}},
	}
	require.NoError(t, db.Inspections().CreateBatch(t.Context(), recs))

	f := &fixture{db: db, metrics: metrics.NewTestRecorder()}
	f.svc = NewService(db.Inspections(), db.Lots(), log, f.metrics)
	f.ids = []string{recs[0].ID, recs[1].ID}
	f.lot = &entities.Lot{LotNumber: "LOT-2024-17", ProductName: "Metformin 850mg"}
	require.NoError(t, f.svc.RegisterLot(t.Context(), f.lot))
	return f
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	a, err := ParseAction(" Approve ")
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, a)

	a, err = ParseAction("reject")
	require.NoError(t, err)
	assert.Equal(t, ActionReject, a)

	_, err = ParseAction("verify")
	require.ErrorIs(t, err, ErrInvalidAction)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestDecideTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		first   Action
		second  Action
		want    entities.ReviewStatus
		wantErr error
	}{
		{"approve twice is a no-op", ActionApprove, ActionApprove, entities.StatusApproved, nil},
		{"reject twice is a no-op", ActionReject, ActionReject, entities.StatusRejected, nil},
		{"approve then reject", ActionApprove, ActionReject, entities.StatusApproved, ErrInvalidTransition},
		{"reject then approve", ActionReject, ActionApprove, entities.StatusRejected, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := t.Context()
			id := f.ids[0]

			rec, err := f.svc.Decide(ctx, id, tt.first)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Status)

			rec, err = f.svc.Decide(ctx, id, tt.second)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, errors.IsCategory(err, errors.CategoryState))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, rec.Status)
			}

			stored, err := f.svc.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Status)
			assert.NotEqual(t, entities.StatusPending, stored.Status)
		})
	}
}

func TestDecideLeavesSiblingsPending(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Approve(t.Context(), f.ids[0])
	require.NoError(t, err)

	sibling, err := f.svc.Get(t.Context(), f.ids[1])
	require.NoError(t, err)
	assert.Equal(t, entities.StatusPending, sibling.Status)
	assert.Equal(t, 1, f.metrics.GetOperationCount("approve", "applied"))
}

func TestDecideUnknownID(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Reject(t.Context(), "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, errors.IsNotFound(err))
}

func TestDecideInvalidAction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Decide(t.Context(), f.ids[0], Action("escalate"))
	require.ErrorIs(t, err, ErrInvalidAction)
}

func TestConcurrentOppositeDecisions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.ids[0]

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied []entities.ReviewStatus
		invalid int
	)
	for i := range 10 {
		action := ActionApprove
		if i%2 == 1 {
			action = ActionReject
		}
		wg.Go(func() {
			rec, err := f.svc.Decide(t.Context(), id, action)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied = append(applied, rec.Status)
			case errors.Is(err, ErrInvalidTransition):
				invalid++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
	wg.Wait()

	final, err := f.svc.Get(t.Context(), id)
	require.NoError(t, err)
	require.True(t, final.Status.IsTerminal())
	for _, s := range applied {
		assert.Equal(t, final.Status, s)
	}
	assert.Equal(t, 5, invalid)
}

func TestLinkIsIndependentOfStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := t.Context()

	rec, err := f.svc.Link(ctx, f.ids[0], f.lot.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusPending, rec.Status)
	require.NotNil(t, rec.LotID)
	assert.Equal(t, f.lot.ID, *rec.LotID)

	_, err = f.svc.Approve(ctx, f.ids[0])
	require.NoError(t, err)
	rec, err = f.svc.Link(ctx, f.ids[0], f.lot.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusApproved, rec.Status)
}

func TestLinkUnknownIDs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Link(t.Context(), f.ids[0], "no-such-lot")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Link(t.Context(), "no-such-inspection", f.lot.ID)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, f.metrics.GetOperationCount("link", "not_found"))
}

func TestListings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := t.Context()

	_, err := f.svc.Link(ctx, f.ids[0], f.lot.ID)
	require.NoError(t, err)
	_, err = f.svc.Link(ctx, f.ids[1], f.lot.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.ids[1])
	require.NoError(t, err)

	approved, err := f.svc.ListByLot(ctx, f.lot.ID, true)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, f.ids[1], approved[0].ID)

	all, err := f.svc.ListByLot(ctx, f.lot.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := f.svc.ListByStatus(ctx, entities.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, f.ids[0], pending[0].ID)

	unlinked, err := f.svc.ListUnlinked(ctx)
	require.NoError(t, err)
	assert.Empty(t, unlinked)

	_, err = f.svc.ListByLot(ctx, "no-such-lot", true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterLotErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.svc.RegisterLot(t.Context(), &entities.Lot{LotNumber: f.lot.LotNumber, ProductName: "dup"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	err = f.svc.RegisterLot(t.Context(), &entities.Lot{ProductName: "no number"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	lot, err := f.svc.GetLot(t.Context(), f.lot.ID)
	require.NoError(t, err)
	assert.Equal(t, "LOT-2024-17", lot.LotNumber)
}

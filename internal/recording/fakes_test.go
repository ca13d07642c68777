package recording

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/rxledger/rxledger/internal/cache"
	"github.com/rxledger/rxledger/internal/conf"
	"github.com/rxledger/rxledger/internal/datastore"
	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/dedup"
	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/fingerprint"
	"github.com/rxledger/rxledger/internal/ledger"
	"github.com/rxledger/rxledger/internal/logger"
	"github.com/rxledger/rxledger/internal/observability/metrics"
)

var otherWriter = common.HexToAddress("0x00000000000000000000000000000000000000b0")

// fakeLedger is an in-memory contract with the duplicate-hash guard.
type fakeLedger struct {
	mu      sync.Mutex
	records map[fingerprint.Fingerprint]ledger.Record
	next    uint64

	appends atomic.Int32
	lookups atomic.Int32

	appendErr     error // returned by Append without writing
	landAnyway    bool  // with appendErr, the record is written regardless
	raceWinner    bool  // Append finds a record written by another process
	lookupErr     error
	appendLatency time.Duration
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[fingerprint.Fingerprint]ledger.Record)}
}

func (l *fakeLedger) Append(_ context.Context, fp fingerprint.Fingerprint, ds []detection.Detection) (*ledger.Record, error) {
	l.appends.Add(1)
	if l.appendLatency > 0 {
		time.Sleep(l.appendLatency)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.raceWinner {
		l.storeLocked(fp, ds, otherWriter)
	}
	if _, dup := l.records[fp]; dup {
		return nil, fmt.Errorf("%w: already recorded", ledger.ErrRejected)
	}
	if l.appendErr != nil {
		if l.landAnyway {
			l.storeLocked(fp, ds, common.Address{})
		}
		return nil, l.appendErr
	}
	rec := l.storeLocked(fp, ds, common.Address{})
	return &rec, nil
}

func (l *fakeLedger) storeLocked(fp fingerprint.Fingerprint, ds []detection.Detection, submitter common.Address) ledger.Record {
	rec := ledger.Record{
		Index:       l.next,
		Fingerprint: fp,
		Detections:  ds,
		Timestamp:   time.Now().UTC(),
		Submitter:   submitter,
		TxHash:      fmt.Sprintf("0x%064x", l.next+1),
		BlockNumber: 100 + l.next,
	}
	l.records[fp] = rec
	l.next++
	return rec
}

func (l *fakeLedger) Lookup(_ context.Context, fp fingerprint.Fingerprint) (*ledger.Record, bool, error) {
	l.lookups.Add(1)
	if l.lookupErr != nil {
		return nil, false, l.lookupErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[fp]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (l *fakeLedger) record(fp fingerprint.Fingerprint) (ledger.Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[fp]
	return rec, ok
}

type fakeDetector struct {
	detections []detection.Detection
	err        error
	calls      atomic.Int32
}

func (d *fakeDetector) Detect(context.Context, []byte) ([]detection.Detection, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return d.detections, nil
}

type failingCache struct{}

func (failingCache) Put(context.Context, entities.CacheEntry) error {
	return errors.NewStd("database is locked")
}

// twoRegions is one genuine and one counterfeit package on a 100x80 image.
func twoRegions() []detection.Detection {
	return []detection.Detection{
		{BBox: detection.BBox{X1: 5, Y1: 5, X2: 45, Y2: 70}, Stage1Label: "package", Stage1Confidence: 0.97, Stage2Label: "genuine", Stage2Confidence: 0.91, Combined: detection.ResultGenuine},
		{BBox: detection.BBox{X1: 55, Y1: 10, X2: 95, Y2: 75}, Stage1Label: "package", Stage1Confidence: 0.95, Stage2Label: "counterfeit", Stage2Confidence: 0.83, Combined: detection.ResultCounterfeit},
	}
}

// testImage returns a distinct PNG per seed.
func testImage(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	for y := range 80 {
		for x := range 100 {
			img.Set(x, y, color.RGBA{R: uint8(x) + seed, G: uint8(y), B: seed, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type harness struct {
	orch     *Orchestrator
	ledger   *fakeLedger
	detector *fakeDetector
	db       *datastore.DB
	cache    *cache.FingerprintCache
	resolver *dedup.Resolver
	metrics  *metrics.TestRecorder
	cropDir  string
}

type harnessOption func(*Deps)

func withCacheWriter(c CacheWriter) harnessOption {
	return func(d *Deps) { d.Cache = c }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, nil)
	dir := t.TempDir()

	db, err := datastore.Open(conf.DatabaseSettings{
		Type:   "sqlite",
		SQLite: conf.SQLiteSettings{Path: filepath.Join(dir, "rx.db")},
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		ledger:   newFakeLedger(),
		detector: &fakeDetector{detections: twoRegions()},
		db:       db,
		cache:    cache.New(db.Cache(), conf.CacheSettings{TTL: time.Minute}, log),
		metrics:  metrics.NewTestRecorder(),
		cropDir:  filepath.Join(dir, "crops"),
	}
	h.resolver = dedup.NewResolver(h.cache, h.ledger, log, nil)

	deps := Deps{
		Detector:    h.detector,
		Resolver:    h.resolver,
		Ledger:      h.ledger,
		Inspections: db.Inspections(),
		Cache:       h.cache,
		Crops:       NewCropStore(h.cropDir),
		Logger:      log,
		Metrics:     h.metrics,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.orch, err = New(deps)
	require.NoError(t, err)
	return h
}

func (h *harness) rows(t *testing.T, fp fingerprint.Fingerprint) []entities.InspectionRecord {
	t.Helper()
	rows, err := h.db.Inspections().ListByFingerprint(t.Context(), string(fp))
	require.NoError(t, err)
	return rows
}

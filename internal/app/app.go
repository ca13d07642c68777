// Package app assembles the rxledger components from Settings. Commands
// build an App once, use its fields, and Close it on exit.
package app

import (
	"context"
	"fmt"

	"github.com/rxledger/rxledger/internal/buildinfo"
	"github.com/rxledger/rxledger/internal/cache"
	"github.com/rxledger/rxledger/internal/conf"
	"github.com/rxledger/rxledger/internal/datastore"
	"github.com/rxledger/rxledger/internal/dedup"
	"github.com/rxledger/rxledger/internal/detector"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/ledger"
	"github.com/rxledger/rxledger/internal/logger"
	"github.com/rxledger/rxledger/internal/observability"
	"github.com/rxledger/rxledger/internal/recording"
	"github.com/rxledger/rxledger/internal/review"
	"github.com/rxledger/rxledger/internal/telemetry"
)

// Store is the local persistence half of the application: database and
// fingerprint cache. Commands that never talk to the ledger only need this.
type Store struct {
	DB    *datastore.DB
	Cache *cache.FingerprintCache
}

// OpenStore opens the database and the fingerprint cache.
func OpenStore(settings *conf.Settings, log logger.Logger) (*Store, error) {
	db, err := datastore.Open(settings.Database, log.Module("datastore"))
	if err != nil {
		return nil, err
	}
	return &Store{
		DB:    db,
		Cache: cache.New(db.Cache(), settings.Cache, log.Module("cache")),
	}, nil
}

// Close stops the cache janitor and closes the database.
func (s *Store) Close() error {
	if s.Cache != nil {
		s.Cache.Close()
	}
	return s.DB.Close()
}

// App holds every long-lived component.
type App struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	Log      logger.Logger
	Metrics  *observability.Metrics

	*Store
	Ledger   *ledger.Client
	Detector *detector.Client
	Resolver *dedup.Resolver
	Recorder *recording.Orchestrator
	Review   *review.Service

	flushTelemetry func()
}

// New builds the full application. ctx bounds the ledger dial.
func New(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, log logger.Logger) (_ *App, err error) {
	a := &App{Settings: settings, Build: build, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.flushTelemetry, err = telemetry.InitSentry(&settings.Telemetry, telemetry.Options{Release: build.GetVersion()}, log.Module("telemetry"))
	if err != nil {
		return nil, err
	}

	if a.Metrics, err = observability.NewMetrics(); err != nil {
		return nil, errors.New(fmt.Errorf("init metrics: %w", err)).
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if a.Store, err = OpenStore(settings, log); err != nil {
		return nil, err
	}

	a.Ledger, err = ledger.Open(ctx, settings.Ledger, log, ledger.WithRecorder(a.Metrics.Ledger))
	if err != nil {
		return nil, err
	}

	a.Detector, err = detector.New(detector.Config{
		URL:       settings.Detector.URL,
		Timeout:   settings.Detector.Timeout,
		RateLimit: settings.Detector.RateLimit,
		RateBurst: settings.Detector.RateBurst,
	}, log, a.Metrics.Detector)
	if err != nil {
		return nil, err
	}

	a.Resolver = dedup.NewResolver(a.Cache, a.Ledger, log.Module("dedup"), a.Metrics.Dedup)
	a.Review = review.NewService(a.DB.Inspections(), a.DB.Lots(), log.Module("review"), a.Metrics.Review)

	a.Recorder, err = recording.New(recording.Deps{
		Detector:    a.Detector,
		Resolver:    a.Resolver,
		Ledger:      a.Ledger,
		Inspections: a.DB.Inspections(),
		Cache:       a.Cache,
		Crops:       recording.NewCropStore(settings.Media.CropDir),
		Logger:      log.Module("recording"),
		Metrics:     a.Metrics.Recording,
	})
	if err != nil {
		return nil, err
	}

	log.Info("application initialized",
		logger.String("version", build.GetVersion()),
		logger.String("database", a.DB.Backend()),
		logger.String("ledger_account", a.Ledger.Account().Hex()),
		logger.String("detector", a.Detector.BaseURL()))
	return a, nil
}

// Close releases components in reverse order of construction.
func (a *App) Close() error {
	var errs []error
	if a.Detector != nil {
		a.Detector.Close()
	}
	if a.Ledger != nil {
		a.Ledger.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close datastore: %w", err))
		}
	}
	if a.flushTelemetry != nil {
		a.flushTelemetry()
	}
	if a.Log != nil {
		if err := a.Log.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush logs: %w", err))
		}
	}
	return errors.Join(errs...)
}

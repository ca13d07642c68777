// Package api implements the rxledger JSON API under /api/v1.
//
// Handlers are thin: they parse input, call one core operation and render
// the result. All error rendering goes through HandleError.
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/fingerprint"
	"github.com/rxledger/rxledger/internal/ledger"
	"github.com/rxledger/rxledger/internal/logger"
	"github.com/rxledger/rxledger/internal/recording"
	"github.com/rxledger/rxledger/internal/review"
)

// Submitter runs verification submissions.
type Submitter interface {
	Submit(ctx context.Context, req recording.SubmitRequest) (*recording.Outcome, error)
}

// LedgerReader is the read side of the ledger client.
type LedgerReader interface {
	IsConnected(ctx context.Context) bool
	Lookup(ctx context.Context, fp fingerprint.Fingerprint) (*ledger.Record, bool, error)
	GetByIndex(ctx context.Context, i uint64) (*ledger.Record, error)
	ListAll(ctx context.Context) ([]ledger.Record, error)
}

// DetectorProbe checks the detection service.
type DetectorProbe interface {
	Health(ctx context.Context) error
}

// Reviewer is the review workflow.
type Reviewer interface {
	Decide(ctx context.Context, id string, action review.Action) (*entities.InspectionRecord, error)
	Link(ctx context.Context, id, lotID string) (*entities.InspectionRecord, error)
	Get(ctx context.Context, id string) (*entities.InspectionRecord, error)
	ListByStatus(ctx context.Context, status entities.ReviewStatus) ([]entities.InspectionRecord, error)
	ListUnlinked(ctx context.Context) ([]entities.InspectionRecord, error)
	ListByLot(ctx context.Context, lotID string, approvedOnly bool) ([]entities.InspectionRecord, error)
	RegisterLot(ctx context.Context, lot *entities.Lot) error
	GetLot(ctx context.Context, id string) (*entities.Lot, error)
}

// Controller manages the API routes and handlers.
type Controller struct {
	Group *echo.Group

	submitter Submitter
	ledger    LedgerReader
	detector  DetectorProbe
	reviewer  Reviewer
	log       logger.Logger
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Submitter Submitter
	Ledger    LedgerReader
	Detector  DetectorProbe
	Reviewer  Reviewer
	Logger    logger.Logger
}

// New creates the controller and registers its routes on e.
func New(e *echo.Echo, d Deps) *Controller {
	log := d.Logger
	if log == nil {
		log = logger.Global().Module("api")
	}
	c := &Controller{
		Group:     e.Group("/api/v1"),
		submitter: d.Submitter,
		ledger:    d.Ledger,
		detector:  d.Detector,
		reviewer:  d.Reviewer,
		log:       log,
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.Health)

	c.Group.POST("/verify", c.Verify)

	c.Group.GET("/ledger/verifications", c.ListVerifications)
	c.Group.GET("/ledger/verifications/:index", c.GetVerification)
	c.Group.GET("/ledger/fingerprints/:fp", c.LookupFingerprint)

	c.Group.GET("/inspections", c.ListInspections)
	c.Group.GET("/inspections/:id", c.GetInspection)
	c.Group.POST("/inspections/:id/decision", c.DecideInspection)
	c.Group.PUT("/inspections/:id/lot", c.LinkInspection)

	c.Group.POST("/lots", c.CreateLot)
	c.Group.GET("/lots/:id", c.GetLot)
	c.Group.GET("/lots/:id/inspections", c.ListLotInspections)
}

// Package review implements the inspection review lifecycle and lot linking.
//
// Status moves from PENDING to APPROVED or REJECTED and never leaves a
// terminal state. The lot reference is an independent axis and may be set in
// any status.
package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/datastore/repository"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/logger"
	"github.com/rxledger/rxledger/internal/observability/metrics"
)

// Sentinel errors.
var (
	ErrNotFound          = errors.NewStd("not found")
	ErrInvalidTransition = errors.NewStd("invalid review transition")
	ErrInvalidAction     = errors.NewStd("invalid review action")
)

// Action is a review decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"

	actionLink = "link"
)

// ParseAction accepts approve or reject, case-insensitively.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject:
		return a, nil
	default:
		return "", errors.New(fmt.Errorf("%w: %q", ErrInvalidAction, s)).
			Component("review").
			Category(errors.CategoryValidation).
			Build()
	}
}

// Target returns the status the action moves a PENDING record to.
func (a Action) Target() (entities.ReviewStatus, bool) {
	switch a {
	case ActionApprove:
		return entities.StatusApproved, true
	case ActionReject:
		return entities.StatusRejected, true
	default:
		return "", false
	}
}

// Service applies review actions through conditional single-row updates.
type Service struct {
	inspections repository.InspectionRepository
	lots        repository.LotRepository
	log         logger.Logger
	metrics     metrics.Recorder
}

// NewService creates a review Service. recorder may be nil.
func NewService(inspections repository.InspectionRepository, lots repository.LotRepository, log logger.Logger, recorder metrics.Recorder) *Service {
	if log == nil {
		log = logger.Global().Module("review")
	}
	return &Service{
		inspections: inspections,
		lots:        lots,
		log:         log,
		metrics:     metrics.OrNoOp(recorder),
	}
}

// Decide applies action to a PENDING record. Re-applying the action that
// produced the current terminal state returns the record unchanged; the
// opposite action fails with ErrInvalidTransition.
func (s *Service) Decide(ctx context.Context, id string, action Action) (*entities.InspectionRecord, error) {
	target, ok := action.Target()
	if !ok {
		s.metrics.RecordOperation(string(action), "invalid")
		return nil, errors.New(fmt.Errorf("%w: %q", ErrInvalidAction, action)).
			Component("review").
			Category(errors.CategoryValidation).
			Build()
	}
	op := string(action)

	n, err := s.inspections.TransitionStatus(ctx, id, entities.StatusPending, target)
	if err != nil {
		return nil, s.storeError(op, id, err)
	}

	rec, err := s.inspections.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrInspectionNotFound) {
			s.metrics.RecordOperation(op, "not_found")
			return nil, notFound("inspection", id)
		}
		return nil, s.storeError(op, id, err)
	}

	switch {
	case n > 0:
		s.metrics.RecordOperation(op, "applied")
		s.log.Info("inspection reviewed",
			logger.String("inspection_id", id),
			logger.String("status", rec.Status.String()))
		return rec, nil
	case rec.Status == target:
		s.metrics.RecordOperation(op, "noop")
		return rec, nil
	default:
		s.metrics.RecordOperation(op, "invalid")
		return nil, errors.New(fmt.Errorf("%w: %s is %s, cannot %s", ErrInvalidTransition, id, rec.Status, action)).
			Component("review").
			Category(errors.CategoryState).
			Context("inspection_id", id).
			Context("status", rec.Status.String()).
			Context("action", op).
			Build()
	}
}

// Approve is Decide with ActionApprove.
func (s *Service) Approve(ctx context.Context, id string) (*entities.InspectionRecord, error) {
	return s.Decide(ctx, id, ActionApprove)
}

// Reject is Decide with ActionReject.
func (s *Service) Reject(ctx context.Context, id string) (*entities.InspectionRecord, error) {
	return s.Decide(ctx, id, ActionReject)
}

// Link attaches a record to a lot. Status is not touched.
func (s *Service) Link(ctx context.Context, id, lotID string) (*entities.InspectionRecord, error) {
	if _, err := s.lots.Get(ctx, lotID); err != nil {
		if errors.Is(err, repository.ErrLotNotFound) {
			s.metrics.RecordOperation(actionLink, "not_found")
			return nil, notFound("lot", lotID)
		}
		return nil, s.storeError(actionLink, id, err)
	}

	if err := s.inspections.SetLot(ctx, id, &lotID); err != nil {
		if errors.Is(err, repository.ErrInspectionNotFound) {
			s.metrics.RecordOperation(actionLink, "not_found")
			return nil, notFound("inspection", id)
		}
		return nil, s.storeError(actionLink, id, err)
	}

	rec, err := s.inspections.Get(ctx, id)
	if err != nil {
		return nil, s.storeError(actionLink, id, err)
	}
	s.metrics.RecordOperation(actionLink, "applied")
	s.log.Info("inspection linked to lot",
		logger.String("inspection_id", id),
		logger.String("lot_id", lotID))
	return rec, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (*entities.InspectionRecord, error) {
	rec, err := s.inspections.Get(ctx, id)
	if errors.Is(err, repository.ErrInspectionNotFound) {
		return nil, notFound("inspection", id)
	}
	return rec, err
}

// ListByStatus returns records in one status.
func (s *Service) ListByStatus(ctx context.Context, status entities.ReviewStatus) ([]entities.InspectionRecord, error) {
	return s.inspections.ListByStatus(ctx, status)
}

// ListUnlinked returns records with no lot.
func (s *Service) ListUnlinked(ctx context.Context) ([]entities.InspectionRecord, error) {
	return s.inspections.ListUnlinked(ctx)
}

// ListByLot returns a lot's records. With approvedOnly, records that are
// not APPROVED are left out; use this for anything shown as proof of
// authenticity.
func (s *Service) ListByLot(ctx context.Context, lotID string, approvedOnly bool) ([]entities.InspectionRecord, error) {
	if _, err := s.lots.Get(ctx, lotID); err != nil {
		if errors.Is(err, repository.ErrLotNotFound) {
			return nil, notFound("lot", lotID)
		}
		return nil, err
	}
	var status *entities.ReviewStatus
	if approvedOnly {
		approved := entities.StatusApproved
		status = &approved
	}
	return s.inspections.ListByLot(ctx, lotID, status)
}

// RegisterLot stores a lot so inspections can be linked to it.
func (s *Service) RegisterLot(ctx context.Context, lot *entities.Lot) error {
	err := s.lots.Create(ctx, lot)
	switch {
	case errors.Is(err, repository.ErrDuplicateKey):
		return errors.New(fmt.Errorf("lot number %q already registered: %w", lot.LotNumber, err)).
			Component("review").
			Category(errors.CategoryConflict).
			Context("lot_number", lot.LotNumber).
			Build()
	case errors.Is(err, repository.ErrInvalidInput):
		return errors.New(fmt.Errorf("lot number is required: %w", err)).
			Component("review").
			Category(errors.CategoryValidation).
			Build()
	case err != nil:
		return s.storeError("register_lot", lot.LotNumber, err)
	}
	return nil
}

// GetLot returns one lot.
func (s *Service) GetLot(ctx context.Context, id string) (*entities.Lot, error) {
	lot, err := s.lots.Get(ctx, id)
	if errors.Is(err, repository.ErrLotNotFound) {
		return nil, notFound("lot", id)
	}
	return lot, err
}

func notFound(kind, id string) error {
	return errors.New(fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)).
		Component("review").
		Category(errors.CategoryNotFound).
		Context("kind", kind).
		Context("id", id).
		Build()
}

func (s *Service) storeError(op, id string, err error) error {
	s.metrics.RecordError(op, "database")
	s.log.Error("review store operation failed",
		logger.String("operation", op),
		logger.String("id", id),
		logger.Error(err))
	return errors.New(err).
		Component("review").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rxledger/rxledger/internal/datastore/entities"
	"github.com/rxledger/rxledger/internal/review"
)

// ListInspections handles GET /api/v1/inspections?status=&unlinked=true.
// status defaults to PENDING.
func (c *Controller) ListInspections(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	if unlinked, _ := strconv.ParseBool(ctx.QueryParam("unlinked")); unlinked {
		recs, err := c.reviewer.ListUnlinked(reqCtx)
		if err != nil {
			return c.HandleError(ctx, err, "failed to list inspections")
		}
		return ctx.JSON(http.StatusOK, newList(recs))
	}

	status := entities.StatusPending
	if raw := ctx.QueryParam("status"); raw != "" {
		var err error
		if status, err = entities.ParseReviewStatus(raw); err != nil {
			return c.badRequest(ctx, "status must be PENDING, APPROVED or REJECTED", err)
		}
	}
	recs, err := c.reviewer.ListByStatus(reqCtx, status)
	if err != nil {
		return c.HandleError(ctx, err, "failed to list inspections")
	}
	return ctx.JSON(http.StatusOK, newList(recs))
}

// GetInspection handles GET /api/v1/inspections/:id.
func (c *Controller) GetInspection(ctx echo.Context) error {
	rec, err := c.reviewer.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "failed to get inspection")
	}
	return ctx.JSON(http.StatusOK, rec)
}

// DecideInspection handles POST /api/v1/inspections/:id/decision.
func (c *Controller) DecideInspection(ctx echo.Context) error {
	var body DecisionRequest
	if err := ctx.Bind(&body); err != nil {
		return c.badRequest(ctx, "invalid request body", err)
	}
	action, err := review.ParseAction(body.Action)
	if err != nil {
		return c.HandleError(ctx, err, "action must be approve or reject")
	}
	rec, err := c.reviewer.Decide(ctx.Request().Context(), ctx.Param("id"), action)
	if err != nil {
		return c.HandleError(ctx, err, "review decision failed")
	}
	return ctx.JSON(http.StatusOK, rec)
}

// LinkInspection handles PUT /api/v1/inspections/:id/lot.
func (c *Controller) LinkInspection(ctx echo.Context) error {
	var body LinkRequest
	if err := ctx.Bind(&body); err != nil {
		return c.badRequest(ctx, "invalid request body", err)
	}
	lotID := strings.TrimSpace(body.LotID)
	if lotID == "" {
		return c.badRequest(ctx, "lot_id is required", nil)
	}
	rec, err := c.reviewer.Link(ctx.Request().Context(), ctx.Param("id"), lotID)
	if err != nil {
		return c.HandleError(ctx, err, "lot link failed")
	}
	return ctx.JSON(http.StatusOK, rec)
}

// CreateLot handles POST /api/v1/lots.
func (c *Controller) CreateLot(ctx echo.Context) error {
	var body LotRequest
	if err := ctx.Bind(&body); err != nil {
		return c.badRequest(ctx, "invalid request body", err)
	}
	lot := &entities.Lot{
		LotNumber:   strings.TrimSpace(body.LotNumber),
		ProductName: strings.TrimSpace(body.ProductName),
		ProductCode: strings.TrimSpace(body.ProductCode),
	}
	if err := c.reviewer.RegisterLot(ctx.Request().Context(), lot); err != nil {
		return c.HandleError(ctx, err, "failed to register lot")
	}
	return ctx.JSON(http.StatusCreated, lot)
}

// GetLot handles GET /api/v1/lots/:id.
func (c *Controller) GetLot(ctx echo.Context) error {
	lot, err := c.reviewer.GetLot(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "failed to get lot")
	}
	return ctx.JSON(http.StatusOK, lot)
}

// ListLotInspections handles GET /api/v1/lots/:id/inspections. Only APPROVED
// records are returned unless all=true.
func (c *Controller) ListLotInspections(ctx echo.Context) error {
	all, _ := strconv.ParseBool(ctx.QueryParam("all"))
	recs, err := c.reviewer.ListByLot(ctx.Request().Context(), ctx.Param("id"), !all)
	if err != nil {
		return c.HandleError(ctx, err, "failed to list lot inspections")
	}
	return ctx.JSON(http.StatusOK, newList(recs))
}

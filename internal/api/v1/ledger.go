package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rxledger/rxledger/internal/fingerprint"
)

// ListVerifications handles GET /api/v1/ledger/verifications.
func (c *Controller) ListVerifications(ctx echo.Context) error {
	records, err := c.ledger.ListAll(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "failed to list ledger records")
	}
	return ctx.JSON(http.StatusOK, newList(records))
}

// GetVerification handles GET /api/v1/ledger/verifications/:index.
func (c *Controller) GetVerification(ctx echo.Context) error {
	index, err := strconv.ParseUint(ctx.Param("index"), 10, 64)
	if err != nil {
		return c.badRequest(ctx, "index must be a non-negative integer", err)
	}
	rec, err := c.ledger.GetByIndex(ctx.Request().Context(), index)
	if err != nil {
		return c.HandleError(ctx, err, "failed to read ledger record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

// LookupFingerprint handles GET /api/v1/ledger/fingerprints/:fp.
func (c *Controller) LookupFingerprint(ctx echo.Context) error {
	fp, err := fingerprint.Parse(ctx.Param("fp"))
	if err != nil {
		return c.badRequest(ctx, "invalid fingerprint", err)
	}
	rec, found, err := c.ledger.Lookup(ctx.Request().Context(), fp)
	if err != nil {
		return c.HandleError(ctx, err, "ledger lookup failed")
	}
	if !found {
		return c.handleErrorCode(ctx, nil, "fingerprint not recorded", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, rec)
}

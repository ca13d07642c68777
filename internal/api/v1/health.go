package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health handles GET /api/v1/health. Both the ledger node and the detector
// must answer for a 200.
func (c *Controller) Health(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	resp := HealthResponse{Status: "healthy", Ledger: "up", Detector: "up"}

	if !c.ledger.IsConnected(reqCtx) {
		resp.Ledger = "down"
		resp.Status = "degraded"
	}
	if err := c.detector.Health(reqCtx); err != nil {
		resp.Detector = "down"
		resp.Status = "degraded"
		resp.Error = err.Error()
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, resp)
}

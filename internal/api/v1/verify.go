package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rxledger/rxledger/internal/recording"
)

// maxImageBytes caps the multipart image read.
const maxImageBytes = 10 << 20

// Verify handles POST /api/v1/verify: multipart field image, optional form
// values lot_id and submitted_by.
func (c *Controller) Verify(ctx echo.Context) error {
	file, err := ctx.FormFile("image")
	if err != nil {
		return c.badRequest(ctx, "multipart field 'image' is required", err)
	}
	src, err := file.Open()
	if err != nil {
		return c.badRequest(ctx, "cannot read uploaded image", err)
	}
	defer src.Close()

	img, err := io.ReadAll(io.LimitReader(src, maxImageBytes+1))
	if err != nil {
		return c.badRequest(ctx, "cannot read uploaded image", err)
	}
	if len(img) > maxImageBytes {
		return c.handleErrorCode(ctx, nil, fmt.Sprintf("image exceeds %d bytes", maxImageBytes), http.StatusRequestEntityTooLarge)
	}
	if len(img) == 0 {
		return c.badRequest(ctx, "image is empty", nil)
	}

	req := recording.SubmitRequest{
		Image:       img,
		LotID:       optionalForm(ctx, "lot_id"),
		SubmittedBy: optionalForm(ctx, "submitted_by"),
	}
	if req.LotID != nil {
		if _, err := c.reviewer.GetLot(ctx.Request().Context(), *req.LotID); err != nil {
			return c.HandleError(ctx, err, "unknown lot")
		}
	}

	out, err := c.submitter.Submit(ctx.Request().Context(), req)
	if err != nil {
		return c.HandleError(ctx, err, "verification failed")
	}

	status := http.StatusOK
	switch out.Kind {
	case recording.KindRecorded:
		status = http.StatusCreated
	case recording.KindRecordingFailed:
		// Inspections are stored; the ledger write can be retried by resubmitting.
		status = http.StatusAccepted
	}
	return ctx.JSON(status, NewOutcomeResponse(out))
}

func optionalForm(ctx echo.Context, name string) *string {
	v := strings.TrimSpace(ctx.FormValue(name))
	if v == "" {
		return nil
	}
	return &v
}

package api

import (
	"crypto/rand"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rxledger/rxledger/internal/dedup"
	"github.com/rxledger/rxledger/internal/detector"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/ledger"
	"github.com/rxledger/rxledger/internal/logger"
	"github.com/rxledger/rxledger/internal/recording"
	"github.com/rxledger/rxledger/internal/review"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response.
func NewErrorResponse(err error, message string, code int, correlationID string) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	if correlationID == "" {
		correlationID = generateCorrelationID()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	}
}

// generateCorrelationID creates an 8 character id for requests that arrive
// without X-Request-ID.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// StatusFor maps core errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, review.ErrNotFound), errors.Is(err, ledger.ErrNotFound), errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, review.ErrInvalidTransition), errors.IsCategory(err, errors.CategoryConflict):
		return http.StatusConflict
	case errors.Is(err, detector.ErrTimeout), errors.Is(err, ledger.ErrTimeout), errors.Is(err, recording.ErrSubmissionInFlight):
		return http.StatusGatewayTimeout
	case errors.Is(err, detector.ErrUnreachable), errors.Is(err, detector.ErrProtocol):
		return http.StatusBadGateway
	case errors.Is(err, dedup.ErrCheckFailed), errors.Is(err, ledger.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HandleError logs err and renders it with the mapped status.
func (c *Controller) HandleError(ctx echo.Context, err error, message string) error {
	return c.handleErrorCode(ctx, err, message, StatusFor(err))
}

func (c *Controller) handleErrorCode(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code, ctx.Response().Header().Get(echo.HeaderXRequestID))

	log := c.log.WithContext(ctx.Request().Context())
	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		log.Error("API error", fields...)
	} else {
		log.Debug("API client error", fields...)
	}

	return ctx.JSON(code, resp)
}

// badRequest renders a 400 for malformed input.
func (c *Controller) badRequest(ctx echo.Context, message string, err error) error {
	return c.handleErrorCode(ctx, err, message, http.StatusBadRequest)
}

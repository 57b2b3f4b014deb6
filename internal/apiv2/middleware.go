package apiv2

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jkaninda/okapi"
)

// ErrorHandler converts any error escaping a handler into the V2 error
// envelope. One instance is shared across the gateway.
type ErrorHandler struct {
	Formatter  *Formatter
	Logger     *slog.Logger
	Production bool // Redact database/internal messages when true.
}

// NewErrorHandler creates an ErrorHandler.
func NewErrorHandler(f *Formatter, logger *slog.Logger, production bool) *ErrorHandler {
	return &ErrorHandler{Formatter: f, Logger: logger, Production: production}
}

// Middleware catches handler errors and panics, classifies them, logs them
// with the generated error_id, and writes the error envelope. If rendering
// itself fails, a hard-coded 500 body is written as a last resort.
func (h *ErrorHandler) Middleware() okapi.Middleware {
	return func(next okapi.HandlerFunc) okapi.HandlerFunc {
		return func(c *okapi.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = h.respond(c, fmt.Errorf("panic: %v", r))
				}
			}()

			if err := next(c); err != nil {
				return h.respond(c, err)
			}
			return nil
		}
	}
}

func (h *ErrorHandler) respond(c *okapi.Context, err error) error {
	apiErr := Classify(err, h.Production)
	r := c.Request()

	reqCtx := RequestContext{
		RequestID: c.GetString("requestID"),
		Path:      r.URL.Path,
		Method:    r.Method,
	}

	if h.Logger != nil {
		h.Logger.Error("request failed",
			slog.String("error_id", apiErr.ErrorID),
			slog.String("error_type", apiErr.Type),
			slog.Int("status", apiErr.StatusCode),
			slog.String("request_id", reqCtx.RequestID),
			slog.String("path", reqCtx.Path),
			slog.String("method", reqCtx.Method),
			slog.String("error", err.Error()),
		)
	}

	envelope := h.Formatter.Error(apiErr, reqCtx)
	if writeErr := c.JSON(apiErr.StatusCode, envelope); writeErr != nil {
		// Last-resort fallback: the formatter or writer failed.
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"success":    false,
			"error":      "internal server error",
			"error_code": http.StatusInternalServerError,
		})
	}
	return nil
}

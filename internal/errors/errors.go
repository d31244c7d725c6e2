package errors

import (
	"context"
	"errors"
)

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Debug(ctx context.Context, msg string, fields ...interface{})
}

// ErrorHandler logs failures that must not propagate: a bad push frame or a
// failed fetch is reported and the page is left as it was.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle processes an error with appropriate logging.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var pe *PreviewError
	if !errors.As(err, &pe) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch {
	case errors.Is(pe, ErrSuperseded):
		h.logger.Debug(ctx, "Discarded superseded response", "path", pe.Path)
	case pe.Type == ErrorTypeProtocol, pe.Type == ErrorTypeNavigation:
		h.logger.Warn(ctx, pe, "Ignored client event",
			"type", pe.Type,
			"code", pe.Code,
			"path", pe.Path)
	case pe.Type == ErrorTypeNetwork:
		h.logger.Warn(ctx, pe, "Network error occurred",
			"type", pe.Type,
			"code", pe.Code,
			"path", pe.Path)
	case IsRecoverable(pe):
		h.logger.Warn(ctx, pe, "Recovered from error",
			"type", pe.Type,
			"code", pe.Code,
			"path", pe.Path)
	default:
		h.logger.Error(ctx, pe, "Error occurred",
			"type", pe.Type,
			"code", pe.Code,
			"path", pe.Path)
	}
}

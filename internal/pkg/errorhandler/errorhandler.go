package errorhandler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
	"github.com/bannerforge/bannerforge-api/internal/pkg/response"
)

// CategorizedError is implemented by domain errors that carry a stable,
// machine-readable category and the HTTP shape used to report them.
type CategorizedError interface {
	error
	Category() string
	HTTPStatus() int
	PublicMessage() string
	RetryAfter() time.Duration
	Details() map[string]string
}

// HandleError logs err and writes the standard error envelope.
// Errors that are not CategorizedError become a generic 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error) {
	var cerr CategorizedError
	if !errors.As(err, &cerr) {
		logger.FromContext(ctx).Error().
			Str("request_id", logger.RequestID(ctx)).
			Err(err).
			Msg("Request error")
		response.InternalError(w)
		return
	}

	status := cerr.HTTPStatus()
	event := logger.FromContext(ctx).Warn()
	if status >= http.StatusInternalServerError {
		event = logger.FromContext(ctx).Error()
	}
	event.
		Str("request_id", logger.RequestID(ctx)).
		Str("error_code", cerr.Category()).
		Int("status_code", status).
		Err(err).
		Msg("Request error")

	response.ErrorWithRetry(w, status, cerr.Category(), cerr.PublicMessage(), cerr.RetryAfter(), cerr.Details())
}

// HandleValidation logs field errors and writes a 422 envelope.
func HandleValidation(ctx context.Context, w http.ResponseWriter, fieldErrors map[string]string) {
	logger.FromContext(ctx).Warn().
		Str("request_id", logger.RequestID(ctx)).
		Interface("validation_errors", fieldErrors).
		Msg("Validation error")
	response.ValidationError(w, fieldErrors)
}

// LogExternalServiceError logs errors from external service calls
func LogExternalServiceError(ctx context.Context, service string, endpoint string, statusCode int, err error, body string) {
	logger.FromContext(ctx).Error().
		Str("request_id", logger.RequestID(ctx)).
		Str("external_service", service).
		Str("endpoint", endpoint).
		Int("status_code", statusCode).
		Err(err).
		Str("response_body", truncateString(body, 1000)).
		Msg("External service error")
}

func truncateString(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "...<truncated>"
	}
	return s
}

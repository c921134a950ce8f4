package errorhandler

import (
	"context"
	"net/http"

	"github.com/mural/mural-api/internal/pkg/logger"
	"github.com/mural/mural-api/internal/pkg/response"
)

// HandleError logs the failure with the request-scoped logger and writes the
// error response. The underlying error is never sent to the client.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := logger.FromContext(ctx).Error().
		Str("error_code", code).
		Str("error_message", message).
		Int("status_code", status)

	if err != nil {
		event.Err(err)
	}

	event.Msg("Request error")

	response.Error(w, status, code, message)
}

// LogExternalServiceError logs errors from external service calls
func LogExternalServiceError(ctx context.Context, service string, operation string, err error) {
	logger.FromContext(ctx).Warn().
		Str("external_service", service).
		Str("operation", operation).
		Err(err).
		Msg("External service error")
}

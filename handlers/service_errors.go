package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/llm-fallback-router/services"
	"github.com/upb/llm-fallback-router/services/routing"
	"github.com/upb/llm-fallback-router/utils"
)

// HandleServiceError maps domain errors to HTTP responses.
// Failed runs always carry the full attempt list under details.attempts.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var (
		status  int
		message string
	)

	switch {
	case services.IsValidationError(err):
		status, message = http.StatusBadRequest, domainMessage(err)

	case services.IsConfigurationError(err):
		status, message = http.StatusServiceUnavailable, "No AI provider is configured"

	case services.IsExternalError(err):
		status, message = http.StatusBadGateway, "All AI providers are unavailable at the moment"

	case services.IsCanceledError(err):
		status, message = http.StatusServiceUnavailable, "Request canceled before a provider answered"

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		status, message = http.StatusInternalServerError, "An internal error occurred"

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		status, message = http.StatusInternalServerError, "An unexpected error occurred"
	}

	if err := utils.WriteError(w, status, message, errorDetails(err)); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		details := utils.FieldsAsDetails(utils.GetValidationFields(err))
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

func domainMessage(err error) string {
	var de *services.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// errorDetails exposes attempt diagnostics and the run ID; other details stay internal
func errorDetails(err error) map[string]interface{} {
	details := map[string]interface{}{}

	if attempts := routing.AttemptsFromError(err); attempts != nil {
		details["attempts"] = NewAttemptViews(attempts)
	}
	if runID, ok := services.GetErrorDetails(err)["run_id"].(string); ok && runID != "" {
		details["run_id"] = runID
	}

	if len(details) == 0 {
		return nil
	}
	return details
}

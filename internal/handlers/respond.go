package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/middleware"
)

type successEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
	Success    bool   `json:"success"`
}

type errorEnvelope struct {
	StatusCode int                 `json:"statusCode"`
	Message    string              `json:"message"`
	Success    bool                `json:"success"`
	Errors     []apperr.FieldError `json:"errors,omitempty"`
}

func respondData(ctx context.Context, w http.ResponseWriter, status int, message string, data any) {
	respondJSON(ctx, w, status, successEnvelope{
		StatusCode: status,
		Message:    message,
		Data:       data,
		Success:    true,
	})
}

// RespondError translates err into a status code and the error envelope. Internal
// causes are logged and never written to the client.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(ctx).Error("request failed", "status", status, "error", err)
	}
	respondJSON(ctx, w, status, body)
}

func errorResponse(err error) (int, errorEnvelope) {
	if errors.Is(err, middleware.ErrRateLimited) {
		return http.StatusTooManyRequests, errorEnvelope{
			StatusCode: http.StatusTooManyRequests,
			Message:    "too many requests",
		}
	}

	appErr, ok := apperr.As(err)
	if !ok {
		return http.StatusInternalServerError, errorEnvelope{
			StatusCode: http.StatusInternalServerError,
			Message:    "internal server error",
		}
	}

	status := statusForKind(appErr.Kind)
	message := appErr.Message
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	return status, errorEnvelope{
		StatusCode: status,
		Message:    message,
		Errors:     appErr.Fields,
	}
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindInvalidID, apperr.KindSelfReference:
		return http.StatusBadRequest
	case apperr.KindInvalidCredential:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindDuplicate:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		logging.FromContext(ctx).Warn("request returned client error", "status", status)
	}
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"artreview/internal/auth"
	"artreview/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// errorStatus maps a service error to its HTTP status and public code. Every
// share-link failure looks the same to the caller so tokens cannot be probed.
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrExpiredLink),
		errors.Is(err, domain.ErrScopeMismatch):
		return http.StatusNotFound, "link_unavailable", "link unavailable"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_failed", err.Error()
	case errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, auth.ErrNoToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrRevokedToken):
		return http.StatusUnauthorized, "unauthenticated", "authentication required"
	case errors.Is(err, domain.ErrNotAuthorizedApprover):
		return http.StatusForbidden, "not_authorized_approver", err.Error()
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden", "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, domain.ErrRequestClosed):
		return http.StatusConflict, "request_closed", err.Error()
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state", err.Error()
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict", "conflicting update, retry the request"
	case errors.Is(err, domain.ErrStorage):
		return http.StatusBadGateway, "storage_unavailable", "blob storage failed"
	}
	return http.StatusInternalServerError, "internal", "internal error"
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, code, message)
}

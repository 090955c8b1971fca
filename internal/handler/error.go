// Package handler holds the HTTP helpers shared by the API and webhook
// handlers: error rendering, JSON encoding and request validation.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/middleware"
)

// ErrorResponse renders err as {"error":{"code","message"}} with the status
// its code maps to. Internal messages are replaced by a generic one. Clients
// that explicitly ask for HTML get plain text.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	status := ErrorCodeToHTTPStatus(code)

	logger := middleware.GetLogger(r.Context())
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"status", status,
	}
	if op := domain.ErrorOp(err); op != "" {
		attrs = append(attrs, "op", op)
	}

	switch {
	case status >= 500:
		logger.ErrorContext(r.Context(), "request failed", attrs...)
	case status == http.StatusPaymentRequired || status == http.StatusConflict:
		logger.InfoContext(r.Context(), "request refused", attrs...)
	default:
		logger.WarnContext(r.Context(), "request rejected", attrs...)
	}

	if wantsHTML(r) {
		http.Error(w, message, status)
		return
	}

	WriteJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// ValidationErrorResponse renders field errors under error.fields. Any other
// error falls back to ErrorResponse.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	fields := domain.GetValidationFields(err)
	if fields == nil {
		ErrorResponse(w, r, err)
		return
	}

	middleware.GetLogger(r.Context()).InfoContext(r.Context(), "validation failed", "fields", fields)

	WriteJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"code":    domain.EINVALID,
			"message": "Validation failed",
			"fields":  fields,
		},
	})
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EPAYMENT:
		return http.StatusPaymentRequired
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.ETOOLARGE:
		return http.StatusRequestEntityTooLarge
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests
	case domain.ENOTIMPL:
		return http.StatusNotImplemented
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}

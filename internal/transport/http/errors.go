package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/NavanKen/Eventify/internal/domain"
)

const (
	codeMethodNotAllowed     = "method_not_allowed"
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeInvalidQuery         = "invalid_query"
	codeInvalidStartsAt      = "invalid_starts_at"
	codeInvalidID            = "invalid_id"
	codeEventNameRequired    = "event_name_required"
	codeTicketNameRequired   = "ticket_name_required"
	codeInvalidQuantity      = "invalid_quantity"
	codeInvalidPrice         = "invalid_price"
	codeInvalidQuota         = "invalid_quota"
	codeInvalidStatus        = "invalid_status"
	codeOrderCodeMismatch    = "order_code_mismatch"
	codeSoldOut              = "sold_out"
	codeOrderCodeConflict    = "order_code_conflict"
	codePurchaseInProgress   = "purchase_in_progress"
	codeInvalidTransition    = "invalid_status_transition"
	codeQuotaBelowSold       = "quota_below_sold"
	codeTicketTypeInUse      = "ticket_type_in_use"
	codeTicketTypeExists     = "ticket_type_already_exists"
	codeTicketTypeNotFound   = "ticket_type_not_found"
	codeEventNotFound        = "event_not_found"
	codeEventInUse           = "event_in_use"
	codeTransactionNotFound  = "transaction_not_found"
	codeUnauthenticated      = "unauthenticated"
	codeForbidden            = "forbidden"
	codeRateLimited          = "rate_limited"
	codePersistenceFailed    = "persistence_failed"
	codePassGenerationFailed = "pass_generation_failed"
	codeInternalError        = "internal_error"
	msgTryAgain              = "purchase could not be completed, please try again"
	msgInternal              = "internal error"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Available *int   `json:"available,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorResponse(w, status, errorResponse{Error: msg, Code: code})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(resp)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters only where one error wraps another; the purchase failures
// wrap their cause, so they come first.
var errorMappings = []errorMapping{
	{domain.ErrPersistenceFailed, http.StatusServiceUnavailable, codePersistenceFailed},
	{domain.ErrPassGenerationFailed, http.StatusServiceUnavailable, codePassGenerationFailed},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, codeInvalidQuantity},
	{domain.ErrInvalidPrice, http.StatusBadRequest, codeInvalidPrice},
	{domain.ErrInvalidQuota, http.StatusBadRequest, codeInvalidQuota},
	{domain.ErrInvalidStatus, http.StatusBadRequest, codeInvalidStatus},
	{domain.ErrEventNameRequired, http.StatusBadRequest, codeEventNameRequired},
	{domain.ErrTicketNameRequired, http.StatusBadRequest, codeTicketNameRequired},
	{domain.ErrInvalidID, http.StatusNotFound, codeInvalidID},
	{domain.ErrTicketTypeNotFound, http.StatusNotFound, codeTicketTypeNotFound},
	{domain.ErrEventNotFound, http.StatusNotFound, codeEventNotFound},
	{domain.ErrTransactionNotFound, http.StatusNotFound, codeTransactionNotFound},
	{domain.ErrOrderCodeConflict, http.StatusConflict, codeOrderCodeConflict},
	{domain.ErrPurchaseInProgress, http.StatusConflict, codePurchaseInProgress},
	{domain.ErrInvalidStatusTransition, http.StatusConflict, codeInvalidTransition},
	{domain.ErrQuotaBelowSold, http.StatusConflict, codeQuotaBelowSold},
	{domain.ErrTicketTypeInUse, http.StatusConflict, codeTicketTypeInUse},
	{domain.ErrEventInUse, http.StatusConflict, codeEventInUse},
	{domain.ErrTicketTypeAlreadyExists, http.StatusConflict, codeTicketTypeExists},
	{domain.ErrForbidden, http.StatusForbidden, codeForbidden},
}

// writeServiceError maps a service error to a response. Store and driver
// details never reach the client; unknown errors are logged instead.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var soldOut *domain.SoldOutError
	if errors.As(err, &soldOut) {
		available := soldOut.Available
		writeErrorResponse(w, http.StatusConflict, errorResponse{
			Error:     domain.ErrSoldOut.Error(),
			Code:      codeSoldOut,
			Available: &available,
		})
		return
	}

	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.target.Error()
		if m.status >= http.StatusInternalServerError {
			logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
			msg = msgTryAgain
		}
		writeError(w, m.status, m.code, msg)
		return
	}

	logger.ErrorContext(r.Context(), "unexpected error", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, codeInternalError, msgInternal)
}

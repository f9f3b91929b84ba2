package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/NavanKen/Eventify/internal/app"
	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/go-chi/chi/v5"
)

// TransactionManager covers the transaction endpoints.
type TransactionManager interface {
	Get(ctx context.Context, actor domain.Actor, id string) (app.TransactionDetail, error)
	List(ctx context.Context, actor domain.Actor, filter domain.TransactionFilter) (app.TransactionPage, error)
	UpdateStatus(ctx context.Context, actor domain.Actor, id string, next domain.TransactionStatus) (domain.Transaction, error)
	Delete(ctx context.Context, actor domain.Actor, id string) error
}

type transactionPageResponse struct {
	Items  []transactionResponse `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

func HandleListTransactions(svc TransactionManager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := actorFromContext(r.Context())
		q := r.URL.Query()

		limit, ok := queryInt(q.Get("limit"))
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, "limit must be a number")
			return
		}
		offset, ok := queryInt(q.Get("offset"))
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, "offset must be a number")
			return
		}

		page, err := svc.List(r.Context(), actor, domain.TransactionFilter{
			Search: strings.TrimSpace(q.Get("search")),
			Status: domain.TransactionStatus(q.Get("status")),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		resp := transactionPageResponse{
			Items:  make([]transactionResponse, 0, len(page.Items)),
			Total:  page.Total,
			Limit:  page.Limit,
			Offset: page.Offset,
		}
		for _, txn := range page.Items {
			resp.Items = append(resp.Items, newTransactionResponse(txn, nil))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func queryInt(raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

func HandleGetTransaction(svc TransactionManager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := actorFromContext(r.Context())
		detail, err := svc.Get(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newTransactionResponse(detail.Transaction, detail.Passes))
	}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func HandleUpdateTransactionStatus(svc TransactionManager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := actorFromContext(r.Context())

		var req updateStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		next, err := domain.ParseTransactionStatus(strings.TrimSpace(req.Status))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		txn, err := svc.UpdateStatus(r.Context(), actor, chi.URLParam(r, "id"), next)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newTransactionResponse(txn, nil))
	}
}

func HandleDeleteTransaction(svc TransactionManager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := actorFromContext(r.Context())
		if err := svc.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

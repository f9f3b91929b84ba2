package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/NavanKen/Eventify/internal/app"
	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const idempotencyHeader = "Idempotency-Key"

// Purchaser is the minimal interface needed to sell tickets.
type Purchaser interface {
	Purchase(ctx context.Context, in app.PurchaseInput) (app.PurchaseResult, error)
}

// TicketTypeReader serves availability reads.
type TicketTypeReader interface {
	GetTicketType(ctx context.Context, id string) (domain.TicketType, error)
}

type purchaseRequest struct {
	OrderCode    string          `json:"order_code"`
	TicketTypeID string          `json:"ticket_type_id"`
	Quantity     int             `json:"quantity"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	CustomerName string          `json:"customer_name"`
	Status       string          `json:"status"`
}

// HandlePurchase sells tickets to the caller. A repeated order code answers
// 200 with the original transaction instead of 201.
func HandlePurchase(svc Purchaser, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := actorFromContext(r.Context())

		var req purchaseRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		orderCode := strings.TrimSpace(req.OrderCode)
		if key := strings.TrimSpace(r.Header.Get(idempotencyHeader)); key != "" {
			if orderCode != "" && orderCode != key {
				writeError(w, http.StatusBadRequest, codeOrderCodeMismatch, "order_code does not match Idempotency-Key")
				return
			}
			orderCode = key
		}

		res, err := svc.Purchase(r.Context(), app.PurchaseInput{
			OrderCode:    orderCode,
			TicketTypeID: strings.TrimSpace(req.TicketTypeID),
			Quantity:     req.Quantity,
			TotalPrice:   req.TotalPrice,
			Actor:        actor,
			CustomerName: strings.TrimSpace(req.CustomerName),
			Status:       domain.TransactionStatus(req.Status),
		})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, newTransactionResponse(res.Transaction, res.Passes))
	}
}

func HandleGetTicketType(svc TicketTypeReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tt, err := svc.GetTicketType(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newTicketTypeResponse(tt))
	}
}

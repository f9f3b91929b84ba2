package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type ticketTypeResponse struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quota       int             `json:"quota"`
	Sold        int             `json:"sold"`
	Available   int             `json:"available"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func newTicketTypeResponse(tt domain.TicketType) ticketTypeResponse {
	return ticketTypeResponse{
		ID:          tt.ID,
		EventID:     tt.EventID,
		Name:        tt.Name,
		Description: tt.Description,
		Price:       tt.Price,
		Quota:       tt.Quota,
		Sold:        tt.Sold,
		Available:   tt.Available(),
		UpdatedAt:   tt.UpdatedAt,
	}
}

type transactionResponse struct {
	ID           string          `json:"id"`
	OrderCode    string          `json:"order_code"`
	UserID       string          `json:"user_id"`
	CustomerName string          `json:"customer_name"`
	EventID      string          `json:"event_id"`
	TicketTypeID string          `json:"ticket_type_id"`
	Quantity     int             `json:"quantity"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	Status       string          `json:"status"`
	InitiatedBy  string          `json:"initiated_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Passes       []passResponse  `json:"passes,omitempty"`
}

type passResponse struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

func newTransactionResponse(txn domain.Transaction, passes []domain.TicketPass) transactionResponse {
	resp := transactionResponse{
		ID:           txn.ID,
		OrderCode:    txn.OrderCode,
		UserID:       txn.UserID,
		CustomerName: txn.CustomerName,
		EventID:      txn.EventID,
		TicketTypeID: txn.TicketTypeID,
		Quantity:     txn.Quantity,
		TotalPrice:   txn.TotalPrice,
		Status:       string(txn.Status),
		InitiatedBy:  string(txn.InitiatedBy),
		CreatedAt:    txn.CreatedAt,
		UpdatedAt:    txn.UpdatedAt,
	}
	for _, p := range passes {
		resp.Passes = append(resp.Passes, passResponse{ID: p.ID, Token: p.Token, CreatedAt: p.CreatedAt})
	}
	return resp
}

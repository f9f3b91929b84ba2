package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/NavanKen/Eventify/internal/app"
	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// CatalogAdmin is the interface needed for the admin catalog endpoints.
type CatalogAdmin interface {
	CreateEvent(ctx context.Context, in app.CreateEventInput) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	UpdateEvent(ctx context.Context, in app.UpdateEventInput) (domain.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	CreateTicketType(ctx context.Context, in app.CreateTicketTypeInput) (domain.TicketType, error)
	ListTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error)
	GetTicketType(ctx context.Context, id string) (domain.TicketType, error)
	UpdateTicketType(ctx context.Context, in app.UpdateTicketTypeInput) (domain.TicketType, error)
	DeleteTicketType(ctx context.Context, id string) error
}

type createEventRequest struct {
	Name     string `json:"name"`
	StartsAt string `json:"starts_at,omitempty"`
}

type eventResponse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
}

func HandleListEvents(svc CatalogAdmin, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := svc.ListEvents(r.Context())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		resp := make([]eventResponse, 0, len(events))
		for _, event := range events {
			resp = append(resp, eventResponse{ID: event.ID, Name: event.Name, StartsAt: event.StartsAt})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func HandleCreateEvent(svc CatalogAdmin, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createEventRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		var startsAt *time.Time
		if req.StartsAt != "" {
			parsed, err := time.Parse(time.RFC3339, req.StartsAt)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidStartsAt, "invalid starts_at format")
				return
			}
			startsAt = &parsed
		}

		event, err := svc.CreateEvent(r.Context(), app.CreateEventInput{Name: req.Name, StartsAt: startsAt})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, eventResponse{ID: event.ID, Name: event.Name, StartsAt: event.StartsAt})
	}
}

type updateEventRequest struct {
	Name     *string `json:"name"`
	StartsAt *string `json:"starts_at"`
}

func HandleUpdateEvent(svc CatalogAdmin, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateEventRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		in := app.UpdateEventInput{ID: chi.URLParam(r, "eventID"), Name: req.Name}
		if req.StartsAt != nil {
			parsed, err := time.Parse(time.RFC3339, *req.StartsAt)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidStartsAt, "invalid starts_at format")
				return
			}
			in.StartsAt = &parsed
		}

		event, err := svc.UpdateEvent(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, eventResponse{ID: event.ID, Name: event.Name, StartsAt: event.StartsAt})
	}
}

func HandleDeleteEvent(svc CatalogAdmin, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteEvent(r.Context(), chi.URLParam(r, "eventID")); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type createTicketTypeRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quota       int             `json:"quota"`
}

func HandleListTicketTypes(svc CatalogAdmin, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := svc.ListTicketTypes(r.Context(), chi.URLParam(r, "eventID"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		resp := make([]ticketTypeResponse, 0, len(types))
		for _, tt := range types {
			resp = append(resp, newTicketTypeResponse(tt))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func HandleCreateTicketType(svc CatalogAdmin, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTicketTypeRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		tt, err := svc.CreateTicketType(r.Context(), app.CreateTicketTypeInput{
			EventID:     chi.URLParam(r, "eventID"),
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Quota:       req.Quota,
		})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, newTicketTypeResponse(tt))
	}
}

// updateTicketTypeRequest is a partial update; omitted fields keep their value.
type updateTicketTypeRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Quota       *int             `json:"quota"`
}

func HandleUpdateTicketType(svc CatalogAdmin, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateTicketTypeRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		tt, err := svc.UpdateTicketType(r.Context(), app.UpdateTicketTypeInput{
			ID:          chi.URLParam(r, "id"),
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Quota:       req.Quota,
		})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newTicketTypeResponse(tt))
	}
}

func HandleDeleteTicketType(svc CatalogAdmin, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteTicketType(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NavanKen/Eventify/internal/app"
	"github.com/NavanKen/Eventify/internal/clock"
	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/NavanKen/Eventify/internal/metrics"
	"github.com/NavanKen/Eventify/internal/storage/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var (
	admin    = domain.Actor{UserID: "admin-1", Name: "Root", Role: domain.RoleAdmin}
	staff    = domain.Actor{UserID: "staff-1", Name: "Box Office", Role: domain.RoleStaff}
	customer = domain.Actor{UserID: "user-1", Name: "Ana", Role: domain.RoleCustomer}
	other    = domain.Actor{UserID: "user-2", Name: "Ben", Role: domain.RoleCustomer}
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testAPI struct {
	handler http.Handler
}

func newTestAPI(t *testing.T, limiter *rate.Limiter) *testAPI {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC))
	store := memory.NewStore(clk)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	handler := NewRouter(RouterConfig{
		Purchases:       app.NewPurchaseService(store, store, store, clk, app.WithPurchaseMetrics(m), app.WithPurchaseLogger(quietLogger)),
		Catalog:         app.NewAdminService(store, clk),
		Transactions:    app.NewTransactionService(store, store, store, clk, app.WithTransactionLogger(quietLogger)),
		Gatherer:        reg,
		PurchaseLimiter: limiter,
		CORSOrigins:     []string{"http://localhost:5173"},
		Logger:          quietLogger,
	})
	return &testAPI{handler: handler}
}

func (a *testAPI) do(t *testing.T, method, path string, actor *domain.Actor, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor != nil {
		req.Header.Set(headerUserID, actor.UserID)
		req.Header.Set(headerUserRole, string(actor.Role))
		req.Header.Set(headerUserName, actor.Name)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

// seedCatalog creates an event and one ticket type through the admin API.
func (a *testAPI) seedCatalog(t *testing.T, quota int) ticketTypeResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/admin/events", &admin, `{"name":"Concert","starts_at":"2025-04-01T20:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decodeBody[eventResponse](t, rec)

	rec = a.do(t, http.MethodPost, "/admin/events/"+event.ID+"/ticket-types", &admin,
		fmt.Sprintf(`{"name":"General","description":"Standing","price":"25.00","quota":%d}`, quota))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[ticketTypeResponse](t, rec)
}

func purchaseBody(ticketTypeID string, qty int) string {
	return fmt.Sprintf(`{"ticket_type_id":%q,"quantity":%d,"total_price":"50.00"}`, ticketTypeID, qty)
}

func TestRouter_PurchaseFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	tt := api.seedCatalog(t, 3)
	assert.Equal(t, 3, tt.Available)

	rec := api.do(t, http.MethodPost, "/purchases", &customer, purchaseBody(tt.ID, 2), idempotencyHeader, "ORD-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[transactionResponse](t, rec)
	assert.Equal(t, "ORD-1", created.OrderCode)
	assert.Equal(t, "completed", created.Status)
	assert.Equal(t, "Ana", created.CustomerName)
	assert.Len(t, created.Passes, 2)

	t.Run("replay returns the original", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/purchases", &customer, purchaseBody(tt.ID, 2), idempotencyHeader, "ORD-1")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, created.ID, decodeBody[transactionResponse](t, rec).ID)
	})

	t.Run("availability read", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/ticket-types/"+tt.ID, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeBody[ticketTypeResponse](t, rec)
		assert.Equal(t, 2, got.Sold)
		assert.Equal(t, 1, got.Available)
	})

	t.Run("sold out carries available", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/purchases", &other, purchaseBody(tt.ID, 2))
		require.Equal(t, http.StatusConflict, rec.Code)
		resp := decodeBody[errorResponse](t, rec)
		assert.Equal(t, codeSoldOut, resp.Code)
		require.NotNil(t, resp.Available)
		assert.Equal(t, 1, *resp.Available)
	})

	t.Run("order code reused for different purchase", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/purchases", &customer, purchaseBody(tt.ID, 1), idempotencyHeader, "ORD-1")
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, codeOrderCodeConflict, decodeBody[errorResponse](t, rec).Code)
	})

	t.Run("owner reads with passes", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/transactions/"+created.ID, &customer, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[transactionResponse](t, rec).Passes, 2)
	})

	t.Run("other customer cannot see it", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/transactions/"+created.ID, &other, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = api.do(t, http.MethodGet, "/transactions", &other, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, decodeBody[transactionPageResponse](t, rec).Total)
	})

	t.Run("customer cannot cancel", func(t *testing.T) {
		rec := api.do(t, http.MethodPatch, "/transactions/"+created.ID+"/status", &customer, `{"status":"cancelled"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("staff cancel returns units", func(t *testing.T) {
		rec := api.do(t, http.MethodPatch, "/transactions/"+created.ID+"/status", &staff, `{"status":"cancelled"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "cancelled", decodeBody[transactionResponse](t, rec).Status)

		rec = api.do(t, http.MethodGet, "/ticket-types/"+tt.ID, nil, "")
		assert.Equal(t, 3, decodeBody[ticketTypeResponse](t, rec).Available)

		rec = api.do(t, http.MethodPatch, "/transactions/"+created.ID+"/status", &staff, `{"status":"completed"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("admin lists and deletes", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/transactions?search=ORD&limit=5", &admin, "")
		require.Equal(t, http.StatusOK, rec.Code)
		page := decodeBody[transactionPageResponse](t, rec)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, 5, page.Limit)

		rec = api.do(t, http.MethodDelete, "/transactions/"+created.ID, &staff, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = api.do(t, http.MethodDelete, "/transactions/"+created.ID, &admin, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = api.do(t, http.MethodGet, "/transactions/"+created.ID, &admin, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouter_PurchaseValidation(t *testing.T) {
	api := newTestAPI(t, nil)
	tt := api.seedCatalog(t, 10)

	tests := []struct {
		name       string
		actor      *domain.Actor
		body       string
		headers    []string
		wantStatus int
		wantCode   string
	}{
		{"anonymous", nil, purchaseBody(tt.ID, 1), nil, http.StatusUnauthorized, codeUnauthenticated},
		{"bad json", &customer, `{"ticket_type_id":`, nil, http.StatusBadRequest, codeInvalidRequestBody},
		{"unknown field", &customer, `{"ticket_type_id":"x","quantity":1,"seat":"A1"}`, nil, http.StatusBadRequest, codeInvalidRequestBody},
		{"zero quantity", &customer, purchaseBody(tt.ID, 0), nil, http.StatusBadRequest, codeInvalidQuantity},
		{"huge quantity", &customer, fmt.Sprintf(`{"ticket_type_id":%q,"quantity":9223372036854775807}`, tt.ID), nil, http.StatusBadRequest, codeInvalidQuantity},
		{"quantity past int32", &customer, purchaseBody(tt.ID, 3_000_000_000), nil, http.StatusBadRequest, codeInvalidQuantity},
		{"negative price", &customer, fmt.Sprintf(`{"ticket_type_id":%q,"quantity":1,"total_price":"-1"}`, tt.ID), nil, http.StatusBadRequest, codeInvalidPrice},
		{"unknown ticket type", &customer, purchaseBody("missing", 1), nil, http.StatusNotFound, codeTicketTypeNotFound},
		{"customer pending", &customer, fmt.Sprintf(`{"ticket_type_id":%q,"quantity":1,"status":"pending"}`, tt.ID), nil, http.StatusForbidden, codeForbidden},
		{"bad status", &staff, fmt.Sprintf(`{"ticket_type_id":%q,"quantity":1,"status":"paid"}`, tt.ID), nil, http.StatusBadRequest, codeInvalidStatus},
		{"key mismatch", &customer, fmt.Sprintf(`{"order_code":"A","ticket_type_id":%q,"quantity":1}`, tt.ID), []string{idempotencyHeader, "B"}, http.StatusBadRequest, codeOrderCodeMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/purchases", tc.actor, tc.body, tc.headers...)
			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tc.wantCode, decodeBody[errorResponse](t, rec).Code)
		})
	}

	rec := api.do(t, http.MethodGet, "/ticket-types/"+tt.ID, nil, "")
	assert.Zero(t, decodeBody[ticketTypeResponse](t, rec).Sold)
}

func TestRouter_Admin(t *testing.T) {
	api := newTestAPI(t, nil)
	tt := api.seedCatalog(t, 5)

	t.Run("requires admin", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/admin/events", nil, "").Code)
		assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/admin/events", &staff, "").Code)
	})

	t.Run("lists events and ticket types", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/admin/events", &admin, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[[]eventResponse](t, rec), 1)

		rec = api.do(t, http.MethodGet, "/admin/events/"+tt.EventID+"/ticket-types", &admin, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[[]ticketTypeResponse](t, rec), 1)

		rec = api.do(t, http.MethodGet, "/admin/events/missing/ticket-types", &admin, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("create validation", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/admin/events", &admin, `{"name":" "}`)
		assert.Equal(t, codeEventNameRequired, decodeBody[errorResponse](t, rec).Code)

		rec = api.do(t, http.MethodPost, "/admin/events", &admin, `{"name":"Gala","starts_at":"tomorrow"}`)
		assert.Equal(t, codeInvalidStartsAt, decodeBody[errorResponse](t, rec).Code)

		rec = api.do(t, http.MethodPost, "/admin/events/"+tt.EventID+"/ticket-types", &admin, `{"name":"General","price":"10","quota":5}`)
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = api.do(t, http.MethodPost, "/admin/events/"+tt.EventID+"/ticket-types", &admin, `{"name":"VIP","price":"10","quota":-1}`)
		assert.Equal(t, codeInvalidQuota, decodeBody[errorResponse](t, rec).Code)
	})

	t.Run("quota cannot drop below sold", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/purchases", &customer, purchaseBody(tt.ID, 4))
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = api.do(t, http.MethodPut, "/admin/ticket-types/"+tt.ID, &admin, `{"quota":3}`)
		assert.Equal(t, codeQuotaBelowSold, decodeBody[errorResponse](t, rec).Code)

		rec = api.do(t, http.MethodPut, "/admin/ticket-types/"+tt.ID, &admin, `{"quota":8,"price":"30.00"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		updated := decodeBody[ticketTypeResponse](t, rec)
		assert.Equal(t, 4, updated.Available)
		assert.Equal(t, "30", updated.Price.String())
	})

	t.Run("delete refused while sold", func(t *testing.T) {
		rec := api.do(t, http.MethodDelete, "/admin/ticket-types/"+tt.ID, &admin, "")
		assert.Equal(t, codeTicketTypeInUse, decodeBody[errorResponse](t, rec).Code)

		rec = api.do(t, http.MethodDelete, "/admin/events/"+tt.EventID, &admin, "")
		assert.Equal(t, codeEventInUse, decodeBody[errorResponse](t, rec).Code)
	})

	t.Run("update and delete an event", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/admin/events", &admin, `{"name":"Matinee"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		event := decodeBody[eventResponse](t, rec)

		rec = api.do(t, http.MethodPut, "/admin/events/"+event.ID, &admin, `{"starts_at":"later"}`)
		assert.Equal(t, codeInvalidStartsAt, decodeBody[errorResponse](t, rec).Code)

		rec = api.do(t, http.MethodPut, "/admin/events/"+event.ID, &admin, `{"name":"Evening","starts_at":"2025-05-02T19:30:00Z"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		updated := decodeBody[eventResponse](t, rec)
		assert.Equal(t, "Evening", updated.Name)
		assert.Equal(t, time.Date(2025, 5, 2, 19, 30, 0, 0, time.UTC), updated.StartsAt)

		rec = api.do(t, http.MethodDelete, "/admin/events/"+event.ID, &admin, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = api.do(t, http.MethodPut, "/admin/events/"+event.ID, &admin, `{"name":"Again"}`)
		assert.Equal(t, codeEventNotFound, decodeBody[errorResponse](t, rec).Code)
		rec = api.do(t, http.MethodDelete, "/admin/events/"+event.ID, &admin, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouter_RateLimit(t *testing.T) {
	api := newTestAPI(t, rate.NewLimiter(rate.Limit(0.001), 1))
	tt := api.seedCatalog(t, 10)

	rec := api.do(t, http.MethodPost, "/purchases", &customer, purchaseBody(tt.ID, 1))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodPost, "/purchases", &customer, purchaseBody(tt.ID, 1))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, codeRateLimited, decodeBody[errorResponse](t, rec).Code)

	rec = api.do(t, http.MethodGet, "/ticket-types/"+tt.ID, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_MetricsAndHealth(t *testing.T) {
	api := newTestAPI(t, nil)
	tt := api.seedCatalog(t, 1)
	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/purchases", &customer, purchaseBody(tt.ID, 1)).Code)

	rec := api.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `checkout_purchases_total{outcome="completed"} 1`)

	rec = api.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, "ok", rec.Body.String())

	rec = api.do(t, http.MethodPost, "/health", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, codeMethodNotAllowed, decodeBody[errorResponse](t, rec).Code)

	rec = api.do(t, http.MethodGet, "/missing", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, decodeBody[errorResponse](t, rec).Code)
}

func TestRouter_UnknownRole(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(t, http.MethodGet, "/transactions", nil, "", headerUserID, "u-1", headerUserRole, "superuser")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type failingPurchaser struct{ err error }

func (f failingPurchaser) Purchase(context.Context, app.PurchaseInput) (app.PurchaseResult, error) {
	return app.PurchaseResult{}, f.err
}

func TestHandlePurchase_HidesStoreErrors(t *testing.T) {
	storeErr := errors.New(`pq: relation "transactions" connection reset by peer`)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"persistence", fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, storeErr), http.StatusServiceUnavailable, codePersistenceFailed},
		{"pass generation", fmt.Errorf("%w: %w", domain.ErrPassGenerationFailed, storeErr), http.StatusServiceUnavailable, codePassGenerationFailed},
		{"unknown", storeErr, http.StatusInternalServerError, codeInternalError},
		{"in progress", domain.ErrPurchaseInProgress, http.StatusConflict, codePurchaseInProgress},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewRouter(RouterConfig{Purchases: failingPurchaser{err: tc.err}, Logger: quietLogger})
			req := httptest.NewRequest(http.MethodPost, "/purchases", strings.NewReader(`{"ticket_type_id":"t","quantity":1}`))
			req.Header.Set(headerUserID, customer.UserID)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			assert.NotContains(t, rec.Body.String(), "connection reset")
			assert.Equal(t, tc.wantCode, decodeBody[errorResponse](t, rec).Code)
		})
	}
}

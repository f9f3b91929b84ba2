// Package http exposes the checkout API over HTTP with a chi router.
package http

import (
	"log/slog"
	"net/http"

	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

type RouterConfig struct {
	Purchases    Purchaser
	Catalog      CatalogAdmin
	Transactions TransactionManager
	// Gatherer backs /metrics. Nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
	// PurchaseLimiter throttles POST /purchases. Nil disables it.
	PurchaseLimiter *rate.Limiter
	CORSOrigins     []string
	Logger          *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.CORSOrigins))
	r.Use(Identify)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/ticket-types/{id}", HandleGetTicketType(cfg.Catalog, logger))

	r.With(RequireRole(), RateLimit(cfg.PurchaseLimiter, logger)).
		Post("/purchases", HandlePurchase(cfg.Purchases, logger))

	r.Route("/transactions", func(r chi.Router) {
		r.Use(RequireRole())
		r.Get("/", HandleListTransactions(cfg.Transactions, logger))
		r.Get("/{id}", HandleGetTransaction(cfg.Transactions, logger))
		r.With(RequireRole(domain.RoleStaff, domain.RoleAdmin)).
			Patch("/{id}/status", HandleUpdateTransactionStatus(cfg.Transactions, logger))
		r.With(RequireRole(domain.RoleAdmin)).
			Delete("/{id}", HandleDeleteTransaction(cfg.Transactions, logger))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireRole(domain.RoleAdmin))
		r.Get("/events", HandleListEvents(cfg.Catalog, logger))
		r.Post("/events", HandleCreateEvent(cfg.Catalog, logger))
		r.Put("/events/{eventID}", HandleUpdateEvent(cfg.Catalog, logger))
		r.Delete("/events/{eventID}", HandleDeleteEvent(cfg.Catalog, logger))
		r.Get("/events/{eventID}/ticket-types", HandleListTicketTypes(cfg.Catalog, logger))
		r.Post("/events/{eventID}/ticket-types", HandleCreateTicketType(cfg.Catalog, logger))
		r.Put("/ticket-types/{id}", HandleUpdateTicketType(cfg.Catalog, logger))
		r.Delete("/ticket-types/{id}", HandleDeleteTicketType(cfg.Catalog, logger))
	})

	return r
}

package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/veloswap/market/internal/auth"
	"github.com/veloswap/market/internal/database"
)

// RouterConfig collects what the router needs. Metrics and DB are optional.
type RouterConfig struct {
	Handler  *Handler
	Verifier *auth.Verifier
	Metrics  *Metrics
	DB       database.Pinger
	Logger   *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(WithMetrics(cfg.Metrics))
	}
	r.Use(WithAccessLog(cfg.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.DB != nil {
			if err := database.CheckHealth(r.Context(), cfg.DB); err != nil {
				cfg.Logger.WarnContext(r.Context(), "readiness check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	h := cfg.Handler
	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Verifier, cfg.Logger))

		r.Post("/offers", h.createOffer)
		r.Get("/offers/{id}", h.getOffer)
		r.Post("/offers/{id}/accept", h.acceptOffer)
		r.Post("/offers/{id}/reject", h.rejectOffer)

		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)

		r.Route("/admin/orders/{id}", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Post("/confirm-payment", h.confirmPayment)
			r.Post("/approve", h.approveSale)
			r.Post("/reject", h.rejectSale)
		})
	})

	return r
}

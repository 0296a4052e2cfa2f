package api

import (
	"net/http"

	"github.com/fastprodman/billwallet/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Auth           *Authenticator
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
}

// NewRouter constructs a chi router with all API endpoints registered.
func NewRouter(h *HandlerProvider, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observe(cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Post("/wallet", h.EnsureWalletHandler)
		r.Get("/wallet", h.GetBalanceHandler)
		r.Put("/wallet/pin", h.SetPINHandler)
		r.With(RequireScope(ScopeFund)).Post("/wallet/fund", h.FundHandler)
		r.Post("/wallet/transfer", h.TransferHandler)
		r.Get("/wallet/events", h.EventsHandler)

		r.Post("/purchases/{category}", h.PurchaseHandler)

		r.Get("/transactions", h.HistoryHandler)
		r.Get("/transactions/{reference}", h.GetTransactionHandler)
	})

	return r
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, metricsHandler http.Handler, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(m.Compress)
	r.Use(m.Timeout(15 * time.Second))
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	// v1 API routes
	r.Route("/v1", func(r chi.Router) {
		// Asset registry
		r.Route("/assets", func(r chi.Router) {
			r.Post("/", h.RegisterAsset)
			r.Get("/", h.ListAssets)
			r.Get("/{symbol}/price", h.GetAssetPrice)
		})

		// Pool operations
		r.Route("/pool", func(r chi.Router) {
			r.Post("/stake", h.Stake)
			r.Post("/unstake", h.Unstake)
			r.Post("/mint", h.Mint)
			r.Post("/burn", h.Burn)
			r.Get("/debt", h.GetGlobalDebt)
		})

		// User reporting
		r.Route("/users", func(r chi.Router) {
			r.Get("/{account}/summary", h.GetUserSummary)
			r.Get("/{account}/balances", h.GetUserBalances)
			r.Get("/{account}/history", h.GetUserHistory)
		})

		if h.faucet != nil {
			r.Post("/faucet", h.Faucet)
		}
	})

	return r
}

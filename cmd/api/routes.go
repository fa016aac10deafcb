package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumenart/backend/internal/accounts"
	"github.com/lumenart/backend/internal/config"
	"github.com/lumenart/backend/internal/generation"
	"github.com/lumenart/backend/internal/ledger"
	"github.com/lumenart/backend/internal/middleware"
)

// RegisterRoutes wires the v1 API. Everything under /v1 requires a bearer
// token; /healthz and /metrics are open.
func RegisterRoutes(mux *http.ServeMux, cfg config.Config, accountRepo *accounts.Repository, gen *generation.Handler, credits *ledger.Handler) {
	auth := middleware.BearerAuth([]byte(cfg.AuthSecret), accountRepo)

	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux.Handle("POST /v1/generations", protected(gen.Submit))
	mux.Handle("GET /v1/generations", protected(gen.List))
	mux.Handle("GET /v1/generations/{id}", protected(gen.Get))
	mux.Handle("GET /v1/generations/{id}/events", protected(gen.StreamEvents))
	mux.Handle("GET /v1/credits", protected(credits.GetCredits))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

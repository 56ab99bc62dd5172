/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logging:    Structured (slog) access log carrying the request ID
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the UI

ROUTE GROUPS:
  /api/workers/*    Workers and salary history
  /api/days/*       Day-level record commands
  /api/records/*    Record edits, net pay, deferred advances
  /api/accounts/*   Two-party accounts and reconciliation
  /api/scenarios/*  Demo scenarios

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(StructuredLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Worker routes
		r.Route("/workers", func(r chi.Router) {
			r.Get("/", h.ListWorkers)
			r.Post("/", h.CreateWorker)
			r.Get("/{id}", h.GetWorker)
			r.Put("/{id}/status", h.SetWorkerStatus)
			r.Post("/{id}/rates", h.UpsertRateEntry)
			r.Get("/{id}/rate", h.ResolveRate)
			r.Get("/{id}/records", h.WorkerRecords)
			r.Get("/{id}/summary", h.WorkerSummary)
		})

		// Day routes
		r.Route("/days/{date}", func(r chi.Router) {
			r.Get("/", h.GetDay)
			r.Put("/", h.ReplaceDay)
			r.Post("/schedule", h.ScheduleDay)
			r.Post("/merge", h.MergeInto)
		})

		// Record routes
		r.Route("/records/{id}", func(r chi.Router) {
			r.Get("/", h.GetRecord)
			r.Patch("/", h.UpdateRecord)
			r.Get("/pay", h.GetPay)
			r.Post("/advances", h.AddDeferredAdvance)
			r.Put("/advances/{entryID}", h.EditDeferredAdvance)
			r.Delete("/advances/{entryID}", h.RemoveDeferredAdvance)
		})

		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetAccount)
				r.Get("/balance", h.GetBalance)
				r.Get("/transactions", h.ListTransactions)
				r.Post("/transactions", h.AddTransaction)
				r.Put("/transactions/{txID}", h.EditTransaction)
				r.Delete("/transactions/{txID}", h.DeleteTransaction)
				r.Post("/transactions/{txID}/cash", h.MarkChequeCashed)
				r.Get("/checkpoints", h.ListCheckpoints)
				r.Get("/segment", h.ListActiveSegment)
				r.Get("/cheques/pending", h.ListPendingCheques)
				r.Post("/reconcile", h.Reconcile)
			})
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetState)
		})
	})

	return r
}

// StructuredLogger logs one line per request with the chi request ID.
func StructuredLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("latency", time.Since(start)),
			)
		})
	}
}

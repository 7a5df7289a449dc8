/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (zerolog)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/health                                        Liveness
  /api/clients/*                                     Clients, provider groups, snapshots, contracts
  /api/clients/{clientID}/contracts/{contractID}/*   Fees, periods, history, compliance
  /api/clients/{clientID}/payments/*                 Payment lifecycle
  /api/reconcile                                     Ad-hoc variance check
  /api/compliance                                    Latest monitor sweep
  /api/seed                                          Load YAML seed data

SECURITY NOTE:
  No authentication middleware. Ownership of contracts and payments is
  checked against the client in the path, not against a caller identity.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// DefaultCORSOrigins are used when no origins are configured.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/reconcile", h.Reconcile)
		r.Get("/compliance", h.ListCompliance)
		r.Post("/seed", h.LoadSeed)

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Post("/", h.CreateClient)
			r.Get("/by-provider", h.ClientsByProvider)
			r.Get("/{clientID}/snapshot", h.GetSnapshot)

			r.Route("/{clientID}/contracts", func(r chi.Router) {
				r.Get("/", h.ListContracts)
				r.Post("/", h.CreateContract)

				r.Route("/{contractID}", func(r chi.Router) {
					r.Get("/", h.GetContract)
					r.Delete("/", h.EndContract)
					r.Post("/revise", h.ReviseContract)
					r.Get("/fees", h.GetFeeSummary)
					r.Get("/periods", h.GetPeriods)
					r.Get("/expected", h.GetExpectedFee)
					r.Get("/payments", h.ListPayments)
					r.Get("/metrics", h.GetMetrics)
					r.Get("/compliance", h.GetCompliance)
				})
			})

			r.Route("/{clientID}/payments", func(r chi.Router) {
				r.Post("/", h.SubmitPayment)
				r.Get("/{paymentID}", h.GetPayment)
				r.Patch("/{paymentID}", h.UpdatePayment)
				r.Put("/{paymentID}/periods", h.ReplacePeriods)
				r.Delete("/{paymentID}", h.DeletePayment)
			})
		})
	})

	return r
}

// requestLogger logs each request with status, size and duration.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
